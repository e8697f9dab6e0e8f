// Package storetest provides an in-memory store.Store for tests. It mimics
// the postgres implementation's contract: RunInTx serializes writers and
// rolls the whole unit back on error, AddToBalance applies deltas in place.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu           sync.Mutex
	users        map[uuid.UUID]domain.User
	accounts     map[uuid.UUID]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	budgets      map[uuid.UUID]domain.Budget // keyed by user ID

	inTx bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]domain.User),
		accounts:     make(map[uuid.UUID]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
		budgets:      make(map[uuid.UUID]domain.Budget),
	}
}

var _ store.Store = (*Store)(nil)

// RunInTx serializes the whole unit under one lock and restores the prior
// state if fn fails, so partial application is never observable.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	snapshot := s.snapshot()
	s.mu.Unlock()

	tx := &Store{
		users:        s.users,
		accounts:     s.accounts,
		transactions: s.transactions,
		budgets:      s.budgets,
		inTx:         true,
	}
	if err := fn(ctx, tx); err != nil {
		s.mu.Lock()
		s.restore(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

type state struct {
	users        map[uuid.UUID]domain.User
	accounts     map[uuid.UUID]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	budgets      map[uuid.UUID]domain.Budget
}

func (s *Store) snapshot() state {
	st := state{
		users:        make(map[uuid.UUID]domain.User, len(s.users)),
		accounts:     make(map[uuid.UUID]domain.Account, len(s.accounts)),
		transactions: make(map[uuid.UUID]domain.Transaction, len(s.transactions)),
		budgets:      make(map[uuid.UUID]domain.Budget, len(s.budgets)),
	}
	for k, v := range s.users {
		st.users[k] = v
	}
	for k, v := range s.accounts {
		st.accounts[k] = v
	}
	for k, v := range s.transactions {
		st.transactions[k] = v
	}
	for k, v := range s.budgets {
		st.budgets[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	clear(s.users)
	clear(s.accounts)
	clear(s.transactions)
	clear(s.budgets)
	for k, v := range st.users {
		s.users[k] = v
	}
	for k, v := range st.accounts {
		s.accounts[k] = v
	}
	for k, v := range st.transactions {
		s.transactions[k] = v
	}
	for k, v := range st.budgets {
		s.budgets[k] = v
	}
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	for _, u := range s.users {
		if u.ExternalID == externalID {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", externalID, domain.ErrNotFound)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- accounts ---

func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	s.accounts[a.ID] = *a
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id, userID uuid.UUID) (*domain.Account, error) {
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	var out []domain.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetDefaultAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	for _, a := range s.accounts {
		if a.UserID == userID && a.IsDefault {
			a := a
			return &a, nil
		}
	}
	return nil, fmt.Errorf("default account for user %s: %w", userID, domain.ErrNotFound)
}

func (s *Store) ClearDefaultAccount(ctx context.Context, userID uuid.UUID) error {
	for id, a := range s.accounts {
		if a.UserID == userID && a.IsDefault {
			a.IsDefault = false
			s.accounts[id] = a
		}
	}
	return nil
}

func (s *Store) MarkDefaultAccount(ctx context.Context, id, userID uuid.UUID) error {
	a, ok := s.accounts[id]
	if !ok || a.UserID != userID {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	a.IsDefault = true
	s.accounts[id] = a
	return nil
}

func (s *Store) AddToBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = time.Now()
	s.accounts[accountID] = a
	return nil
}

// --- transactions ---

func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	s.transactions[t.ID] = *t
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) GetUserTransaction(ctx context.Context, id, userID uuid.UUID) (*domain.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok || t.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	if _, ok := s.transactions[t.ID]; !ok {
		return fmt.Errorf("transaction %s: %w", t.ID, domain.ErrNotFound)
	}
	s.transactions[t.ID] = *t
	return nil
}

func (s *Store) ListAccountTransactions(ctx context.Context, accountID, userID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID && t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) ListUserTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Store) ListUserTransactionsByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, id := range ids {
		if t, ok := s.transactions[id]; ok && t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) DeleteTransactionsByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if t, ok := s.transactions[id]; ok && t.UserID == userID {
			delete(s.transactions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListDueRecurring(ctx context.Context, now time.Time) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range s.transactions {
		if !t.IsRecurring {
			continue
		}
		if t.LastProcessed == nil || (t.NextRecurringDate != nil && !t.NextRecurringDate.After(now)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) MarkRecurringProcessed(ctx context.Context, id uuid.UUID, processedAt, next time.Time) error {
	t, ok := s.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	t.LastProcessed = &processedAt
	t.NextRecurringDate = &next
	s.transactions[id] = t
	return nil
}

func (s *Store) SumExpenses(ctx context.Context, userID, accountID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range s.transactions {
		if t.UserID != userID || t.AccountID != accountID || t.Type != domain.TransactionTypeExpense {
			continue
		}
		if t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		sum = sum.Add(t.Amount)
	}
	return sum, nil
}

func (s *Store) MonthlySummary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*store.MonthSummary, error) {
	sum := &store.MonthSummary{
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		ByCategory:    make(map[string]decimal.Decimal),
	}
	for _, t := range s.transactions {
		if t.UserID != userID || t.Date.Before(from) || t.Date.After(to) {
			continue
		}
		sum.Count++
		if t.Type == domain.TransactionTypeIncome {
			sum.TotalIncome = sum.TotalIncome.Add(t.Amount)
		} else {
			sum.TotalExpenses = sum.TotalExpenses.Add(t.Amount)
			sum.ByCategory[t.Category] = sum.ByCategory[t.Category].Add(t.Amount)
		}
	}
	return sum, nil
}

// --- budgets ---

func (s *Store) UpsertBudget(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Budget, error) {
	b, ok := s.budgets[userID]
	if !ok {
		b = domain.Budget{ID: uuid.New(), UserID: userID, CreatedAt: time.Now()}
	}
	b.Amount = amount
	b.UpdatedAt = time.Now()
	s.budgets[userID] = b
	return &b, nil
}

func (s *Store) GetBudget(ctx context.Context, userID uuid.UUID) (*domain.Budget, error) {
	b, ok := s.budgets[userID]
	if !ok {
		return nil, fmt.Errorf("budget for user %s: %w", userID, domain.ErrNotFound)
	}
	return &b, nil
}

func (s *Store) ListBudgets(ctx context.Context) ([]domain.Budget, error) {
	out := make([]domain.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SetLastAlertSent(ctx context.Context, budgetID uuid.UUID, at time.Time) error {
	for userID, b := range s.budgets {
		if b.ID == budgetID {
			b.LastAlertSent = &at
			s.budgets[userID] = b
			return nil
		}
	}
	return fmt.Errorf("budget %s: %w", budgetID, domain.ErrNotFound)
}
