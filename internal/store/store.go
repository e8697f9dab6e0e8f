// Package store defines the repository contracts the rest of the system is
// written against. The postgres subpackage provides the production
// implementation; storetest provides an in-memory one for tests.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/domain"
)

// Store aggregates the repositories plus atomic transaction execution.
//
// RunInTx runs fn against a Store bound to a single database transaction:
// every write fn performs is applied entirely or not at all, isolated from
// concurrent writers. All balance-affecting operations must go through it.
type Store interface {
	UserRepository
	AccountRepository
	TransactionRepository
	BudgetRepository

	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// UserRepository persists application users.
type UserRepository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// AccountRepository persists accounts. Balance writes are expressed as
// in-place deltas (AddToBalance) rather than read-modify-write so that
// concurrent mutations on the same account serialize at the row.
type AccountRepository interface {
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, id, userID uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	GetDefaultAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error)

	// ClearDefaultAccount unsets is_default on every account of the user.
	ClearDefaultAccount(ctx context.Context, userID uuid.UUID) error
	// MarkDefaultAccount sets is_default on one account of the user.
	MarkDefaultAccount(ctx context.Context, id, userID uuid.UUID) error

	// AddToBalance atomically applies delta to the account's cached balance.
	// Only the ledger package may call this.
	AddToBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error
}

// TransactionRepository persists transactions.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetUserTransaction(ctx context.Context, id, userID uuid.UUID) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	ListAccountTransactions(ctx context.Context, accountID, userID uuid.UUID) ([]domain.Transaction, error)
	ListUserTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)

	// ListUserTransactionsByIDs returns the subset of ids that exist and
	// belong to userID. Unknown or foreign ids are absent from the result,
	// not an error.
	ListUserTransactionsByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]domain.Transaction, error)

	// DeleteTransactionsByIDs deletes the given transactions of the user and
	// reports how many rows were actually removed.
	DeleteTransactionsByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error)

	// ListDueRecurring returns recurring templates that are due at now:
	// never processed, or next_recurring_date <= now.
	ListDueRecurring(ctx context.Context, now time.Time) ([]domain.Transaction, error)

	// MarkRecurringProcessed records a posting: last_processed = processedAt
	// and next_recurring_date = next.
	MarkRecurringProcessed(ctx context.Context, id uuid.UUID, processedAt, next time.Time) error

	// SumExpenses returns the total EXPENSE amount for the user's account in
	// [from, to].
	SumExpenses(ctx context.Context, userID, accountID uuid.UUID, from, to time.Time) (decimal.Decimal, error)

	// MonthlySummary aggregates the user's transactions in [from, to]:
	// income total, expense total, and expense totals per category.
	MonthlySummary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*MonthSummary, error)
}

// BudgetRepository persists the one-budget-per-user rows.
type BudgetRepository interface {
	UpsertBudget(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Budget, error)
	GetBudget(ctx context.Context, userID uuid.UUID) (*domain.Budget, error)
	ListBudgets(ctx context.Context) ([]domain.Budget, error)

	// SetLastAlertSent is written only by the budget-alert job, after a
	// successful send.
	SetLastAlertSent(ctx context.Context, budgetID uuid.UUID, at time.Time) error
}

// MonthSummary is the aggregate used for monthly reports.
type MonthSummary struct {
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	ByCategory    map[string]decimal.Decimal
	Count         int
}
