// Package seed populates a demo user with 90 days of sample activity. The
// generator is deterministic, so repeated runs produce the same data set,
// and all writes go through one store transaction so the account balance
// always matches the inserted transactions.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/store"
)

const (
	demoExternalID = "seed-demo-user"
	demoEmail      = "demo@welth.app"
	demoName       = "Demo User"

	// Fixed source so every run regenerates the identical data set.
	randSeed = 42

	days           = 90
	monthlyBudget  = 5000
	incomeOdds     = 0.4
	maxPerDay      = 3
	startingAmount = 0
)

type categoryRange struct {
	name string
	min  int
	max  int
}

var incomeCategories = []categoryRange{
	{"salary", 5000, 8000},
	{"freelance", 1000, 3000},
	{"investments", 500, 2000},
	{"other-income", 100, 1000},
}

var expenseCategories = []categoryRange{
	{"housing", 1000, 2000},
	{"transportation", 100, 500},
	{"groceries", 200, 600},
	{"utilities", 100, 300},
	{"entertainment", 50, 200},
	{"food", 50, 150},
	{"shopping", 100, 500},
	{"healthcare", 100, 1000},
	{"education", 200, 1000},
	{"travel", 500, 2000},
}

// Service seeds the demo data set.
type Service struct {
	store store.Store
	log   zerolog.Logger
}

// New creates a seeding service.
func New(st store.Store, log zerolog.Logger) *Service {
	return &Service{store: st, log: log}
}

// Result summarizes a seeding run.
type Result struct {
	UserID       uuid.UUID       `json:"user_id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Transactions int             `json:"transactions"`
	Balance      decimal.Decimal `json:"balance"`
}

// Run creates the demo user and default account if missing, replaces any
// previous demo transactions with a fresh deterministic 90-day history, and
// sets a monthly budget. The account balance ends equal to the signed sum
// of the inserted transactions.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	var result *Result
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		user, err := s.ensureUser(ctx, tx)
		if err != nil {
			return err
		}
		account, err := s.ensureAccount(ctx, tx, user.ID)
		if err != nil {
			return err
		}

		// Drop any previous run and retract its balance contribution.
		existing, err := tx.ListUserTransactions(ctx, user.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			ids := make([]uuid.UUID, 0, len(existing))
			undo := decimal.Zero
			for i := range existing {
				ids = append(ids, existing[i].ID)
				undo = undo.Sub(existing[i].SignedAmount())
			}
			if _, err := tx.DeleteTransactionsByIDs(ctx, ids, user.ID); err != nil {
				return err
			}
			if err := tx.AddToBalance(ctx, account.ID, undo); err != nil {
				return err
			}
		}

		transactions := generate(user.ID, account.ID)
		total := decimal.NewFromInt(startingAmount)
		for i := range transactions {
			if err := tx.CreateTransaction(ctx, &transactions[i]); err != nil {
				return err
			}
			total = total.Add(transactions[i].SignedAmount())
		}
		if err := tx.AddToBalance(ctx, account.ID, total); err != nil {
			return err
		}

		if _, err := tx.UpsertBudget(ctx, user.ID, decimal.NewFromInt(monthlyBudget)); err != nil {
			return err
		}

		result = &Result{
			UserID:       user.ID,
			AccountID:    account.ID,
			Transactions: len(transactions),
			Balance:      total,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed demo data: %w", err)
	}

	s.log.Info().
		Str("user_id", result.UserID.String()).
		Int("transactions", result.Transactions).
		Str("balance", result.Balance.String()).
		Msg("Demo data seeded")
	return result, nil
}

func (s *Service) ensureUser(ctx context.Context, tx store.Store) (*domain.User, error) {
	user, err := tx.GetUserByExternalID(ctx, demoExternalID)
	if err == nil {
		return user, nil
	}
	user = &domain.User{
		ID:         uuid.New(),
		ExternalID: demoExternalID,
		Email:      demoEmail,
		Name:       demoName,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := tx.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) ensureAccount(ctx context.Context, tx store.Store, userID uuid.UUID) (*domain.Account, error) {
	account, err := tx.GetDefaultAccount(ctx, userID)
	if err == nil {
		return account, nil
	}
	account = &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "Personal",
		Type:      domain.AccountTypeCurrent,
		Balance:   decimal.NewFromInt(startingAmount),
		IsDefault: true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := tx.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// generate produces the deterministic 90-day history: one to three
// transactions per day, roughly 40% income.
func generate(userID, accountID uuid.UUID) []domain.Transaction {
	rng := rand.New(rand.NewSource(randSeed))
	now := time.Now()

	var out []domain.Transaction
	for d := days - 1; d >= 0; d-- {
		date := now.AddDate(0, 0, -d)
		perDay := 1 + rng.Intn(maxPerDay)
		for i := 0; i < perDay; i++ {
			typ := domain.TransactionTypeExpense
			pool := expenseCategories
			if rng.Float64() < incomeOdds {
				typ = domain.TransactionTypeIncome
				pool = incomeCategories
			}
			cat := pool[rng.Intn(len(pool))]
			amount := decimal.NewFromFloat(float64(cat.min) + rng.Float64()*float64(cat.max-cat.min)).Round(2)

			out = append(out, domain.Transaction{
				ID:          uuid.New(),
				UserID:      userID,
				AccountID:   accountID,
				Type:        typ,
				Amount:      amount,
				Description: fmt.Sprintf("%s %s", describe(typ), cat.name),
				Date:        date,
				Category:    cat.name,
				Status:      domain.TransactionStatusCompleted,
				CreatedAt:   date,
				UpdatedAt:   date,
			})
		}
	}
	return out
}

func describe(typ domain.TransactionType) string {
	if typ == domain.TransactionTypeIncome {
		return "Received"
	}
	return "Paid for"
}
