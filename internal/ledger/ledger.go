// Package ledger owns every mutation of account balances. The invariant it
// maintains: an account's cached balance equals the signed sum of the
// account's transactions. All four mutation paths run inside one store
// transaction, and balance writes are expressed as in-place deltas so
// concurrent operations on the same account cannot lose updates.
//
// No other package may write the balance column.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/ratelimit"
	"github.com/welthhq/welth/internal/store"
)

// RecurringSuffix marks transactions generated from a recurring template.
const RecurringSuffix = " (Recurring)"

// RateLimiter gates transaction creation. A denied request must not reach
// the store.
type RateLimiter interface {
	Allow(key string) ratelimit.Decision
}

// Service implements the balance ledger operations.
type Service struct {
	store   store.Store
	limiter RateLimiter
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a ledger service. limiter may be nil, which disables the
// creation quota (used by the worker and by seeding).
func New(st store.Store, limiter RateLimiter, log zerolog.Logger) *Service {
	return &Service{
		store:   st,
		limiter: limiter,
		log:     log,
		now:     time.Now,
	}
}

// TransactionDraft is the caller-supplied content of a transaction. Amount
// must be positive; the sign is derived from Type.
type TransactionDraft struct {
	AccountID         uuid.UUID
	Type              domain.TransactionType
	Amount            decimal.Decimal
	Description       string
	Date              time.Time
	Category          string
	ReceiptURL        *string
	IsRecurring       bool
	RecurringInterval *domain.RecurringInterval
}

func (d *TransactionDraft) validate() error {
	if d.AccountID == uuid.Nil {
		return fmt.Errorf("%w: account is required", domain.ErrValidation)
	}
	if d.Type != domain.TransactionTypeIncome && d.Type != domain.TransactionTypeExpense {
		return fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, d.Type)
	}
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if d.Date.IsZero() {
		return fmt.Errorf("%w: date is required", domain.ErrValidation)
	}
	if d.Category == "" {
		return fmt.Errorf("%w: category is required", domain.ErrValidation)
	}
	if d.IsRecurring {
		if d.RecurringInterval == nil || !domain.ValidInterval(*d.RecurringInterval) {
			return fmt.Errorf("%w: recurring transactions require a valid interval", domain.ErrValidation)
		}
	}
	return nil
}

func signedAmount(typ domain.TransactionType, amount decimal.Decimal) decimal.Decimal {
	if typ == domain.TransactionTypeExpense {
		return amount.Neg()
	}
	return amount
}

// CreateTransaction inserts a transaction and applies its signed amount to
// the owning account's balance in one atomic unit. Creation is gated by the
// per-user rate limit; a denied request performs no mutation.
func (s *Service) CreateTransaction(ctx context.Context, userID uuid.UUID, draft TransactionDraft) (*domain.Transaction, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}

	if s.limiter != nil {
		if d := s.limiter.Allow(userID.String()); !d.Allowed {
			s.log.Warn().
				Str("user_id", userID.String()).
				Dur("retry_after", d.RetryAfter).
				Msg("Transaction creation rate limited")
			return nil, &domain.RateLimitError{Remaining: d.Remaining, RetryAfter: d.RetryAfter}
		}
	}

	now := s.now()
	t := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		AccountID:   draft.AccountID,
		Type:        draft.Type,
		Amount:      draft.Amount,
		Description: draft.Description,
		Date:        draft.Date,
		Category:    strings.ToLower(draft.Category),
		ReceiptURL:  draft.ReceiptURL,
		IsRecurring: draft.IsRecurring,
		Status:      domain.TransactionStatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if draft.IsRecurring {
		t.RecurringInterval = draft.RecurringInterval
		next := NextOccurrence(draft.Date, *draft.RecurringInterval)
		t.NextRecurringDate = &next
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		if _, err := tx.GetAccount(ctx, draft.AccountID, userID); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		return tx.AddToBalance(ctx, draft.AccountID, t.SignedAmount())
	})
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.log.Info().
		Str("transaction_id", t.ID.String()).
		Str("account_id", t.AccountID.String()).
		Str("type", string(t.Type)).
		Str("amount", t.Amount.String()).
		Msg("Transaction created")
	return t, nil
}

// UpdateTransaction replaces a transaction's fields and applies the net
// signed difference to the account balance in one atomic unit. The
// transaction cannot be moved between accounts.
func (s *Service) UpdateTransaction(ctx context.Context, userID, id uuid.UUID, draft TransactionDraft) (*domain.Transaction, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}

	var updated *domain.Transaction
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		orig, err := tx.GetUserTransaction(ctx, id, userID)
		if err != nil {
			return err
		}
		if draft.AccountID != orig.AccountID {
			return fmt.Errorf("%w: transactions cannot change accounts", domain.ErrValidation)
		}

		oldSigned := orig.SignedAmount()
		newSigned := signedAmount(draft.Type, draft.Amount)
		net := newSigned.Sub(oldSigned)

		t := *orig
		t.Type = draft.Type
		t.Amount = draft.Amount
		t.Description = draft.Description
		t.Date = draft.Date
		t.Category = strings.ToLower(draft.Category)
		t.ReceiptURL = draft.ReceiptURL
		t.IsRecurring = draft.IsRecurring
		t.RecurringInterval = nil
		t.NextRecurringDate = nil
		if draft.IsRecurring {
			t.RecurringInterval = draft.RecurringInterval
			next := NextOccurrence(draft.Date, *draft.RecurringInterval)
			t.NextRecurringDate = &next
		}
		t.UpdatedAt = s.now()

		if err := tx.UpdateTransaction(ctx, &t); err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, orig.AccountID, net); err != nil {
			return err
		}
		updated = &t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}

	s.log.Info().
		Str("transaction_id", id.String()).
		Str("amount", updated.Amount.String()).
		Msg("Transaction updated")
	return updated, nil
}

// DeleteTransactions removes the given transactions and restores their net
// contribution to each affected account, all in one atomic unit. Ids that
// do not resolve to a transaction of the caller are silently dropped. The
// returned count reflects only rows actually removed; an empty batch is a
// no-op success.
func (s *Service) DeleteTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		owned, err := tx.ListUserTransactionsByIDs(ctx, ids, userID)
		if err != nil {
			return err
		}
		if len(owned) == 0 {
			return nil
		}

		// Removing a transaction negates its contribution: deleting an
		// EXPENSE adds the amount back, deleting an INCOME retracts it.
		// One net update per account.
		deltas := make(map[uuid.UUID]decimal.Decimal)
		ownedIDs := make([]uuid.UUID, 0, len(owned))
		for i := range owned {
			t := &owned[i]
			deltas[t.AccountID] = deltas[t.AccountID].Sub(t.SignedAmount())
			ownedIDs = append(ownedIDs, t.ID)
		}

		n, err := tx.DeleteTransactionsByIDs(ctx, ownedIDs, userID)
		if err != nil {
			return err
		}
		for accountID, delta := range deltas {
			if err := tx.AddToBalance(ctx, accountID, delta); err != nil {
				return err
			}
		}
		deleted = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Int("requested", len(ids)).
		Int64("deleted", deleted).
		Msg("Transactions deleted")
	return deleted, nil
}

// PostRecurring posts one occurrence of a due recurring template: it
// inserts a non-recurring clone, applies its signed amount to the account
// balance exactly once, and advances the template's schedule, all in one
// atomic unit. A template that is missing, no longer recurring or not yet
// due is a no-op; the posted transaction is nil in that case.
func (s *Service) PostRecurring(ctx context.Context, transactionID uuid.UUID, now time.Time) (*domain.Transaction, error) {
	var posted *domain.Transaction
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Store) error {
		tmpl, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}
		if !IsDue(tmpl, now) {
			return nil
		}

		clone := &domain.Transaction{
			ID:          uuid.New(),
			UserID:      tmpl.UserID,
			AccountID:   tmpl.AccountID,
			Type:        tmpl.Type,
			Amount:      tmpl.Amount,
			Description: tmpl.Description + RecurringSuffix,
			Date:        now,
			Category:    tmpl.Category,
			Status:      domain.TransactionStatusCompleted,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateTransaction(ctx, clone); err != nil {
			return err
		}
		if err := tx.AddToBalance(ctx, tmpl.AccountID, clone.SignedAmount()); err != nil {
			return err
		}

		next := NextOccurrence(now, *tmpl.RecurringInterval)
		if err := tx.MarkRecurringProcessed(ctx, tmpl.ID, now, next); err != nil {
			return err
		}
		posted = clone
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("post recurring transaction: %w", err)
	}

	if posted != nil {
		s.log.Info().
			Str("template_id", transactionID.String()).
			Str("posted_id", posted.ID.String()).
			Msg("Recurring transaction posted")
	}
	return posted, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
