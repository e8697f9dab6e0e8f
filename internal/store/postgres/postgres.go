// Package postgres is the production store.Store implementation on pgx.
// All methods run against either the pool or an open transaction through
// the DBTX interface; RunInTx hands callers a Store bound to one pgx.Tx so
// the whole unit commits or rolls back together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/store"
)

// DBTX is the query surface shared by pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store on Postgres.
type Store struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewStore creates a store bound to the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

var _ store.Store = (*Store)(nil)

// RunInTx runs fn against a Store bound to one transaction. Nested calls
// reuse the open transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if s.pool == nil {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &Store{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, external_id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.ExternalID, u.Email, u.Name, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = "id, external_id, email, name, created_at, updated_at"

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %s", id))
	}
	return u, nil
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %q", externalID))
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// --- accounts ---

const accountColumns = "id, user_id, name, type, balance, is_default, created_at, updated_at"

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO accounts (id, user_id, name, type, balance, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.UserID, a.Name, a.Type, a.Balance, a.IsDefault, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id, userID uuid.UUID) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("account %s", id))
	}
	return a, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Balance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetDefaultAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	a, err := scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND is_default`, userID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("default account for user %s", userID))
	}
	return a, nil
}

func (s *Store) ClearDefaultAccount(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE accounts SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default`, userID)
	if err != nil {
		return fmt.Errorf("clear default account: %w", err)
	}
	return nil
}

func (s *Store) MarkDefaultAccount(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE accounts SET is_default = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark default account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// AddToBalance applies the delta in place. The row update serializes
// concurrent writers on the same account, which is what keeps the cached
// balance consistent without read-modify-write races.
func (s *Store) AddToBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2`, delta, accountID)
	if err != nil {
		return fmt.Errorf("add to balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

// --- transactions ---

const transactionColumns = `id, user_id, account_id, type, amount, description, date, category,
	receipt_url, is_recurring, recurring_interval, next_recurring_date, last_processed, status,
	created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Type, &t.Amount, &t.Description, &t.Date,
		&t.Category, &t.ReceiptURL, &t.IsRecurring, &t.RecurringInterval, &t.NextRecurringDate,
		&t.LastProcessed, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Type, &t.Amount, &t.Description,
			&t.Date, &t.Category, &t.ReceiptURL, &t.IsRecurring, &t.RecurringInterval,
			&t.NextRecurringDate, &t.LastProcessed, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (id, user_id, account_id, type, amount, description, date, category,
			receipt_url, is_recurring, recurring_interval, next_recurring_date, last_processed, status,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, t.ID, t.UserID, t.AccountID, t.Type, t.Amount, t.Description, t.Date, t.Category,
		t.ReceiptURL, t.IsRecurring, t.RecurringInterval, t.NextRecurringDate, t.LastProcessed,
		t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("transaction %s", id))
	}
	return t, nil
}

func (s *Store) GetUserTransaction(ctx context.Context, id, userID uuid.UUID) (*domain.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("transaction %s", id))
	}
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions
		SET type = $2, amount = $3, description = $4, date = $5, category = $6, receipt_url = $7,
			is_recurring = $8, recurring_interval = $9, next_recurring_date = $10,
			last_processed = $11, status = $12, updated_at = $13
		WHERE id = $1
	`, t.ID, t.Type, t.Amount, t.Description, t.Date, t.Category, t.ReceiptURL,
		t.IsRecurring, t.RecurringInterval, t.NextRecurringDate, t.LastProcessed, t.Status, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) ListAccountTransactions(ctx context.Context, accountID, userID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1 AND user_id = $2 ORDER BY date DESC
	`, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("query account transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (s *Store) ListUserTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY date DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (s *Store) ListUserTransactionsByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = ANY($1) AND user_id = $2
	`, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions by ids: %w", err)
	}
	return scanTransactions(rows)
}

func (s *Store) DeleteTransactionsByIDs(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM transactions WHERE id = ANY($1) AND user_id = $2`, ids, userID)
	if err != nil {
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListDueRecurring(ctx context.Context, now time.Time) ([]domain.Transaction, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE is_recurring AND (last_processed IS NULL OR next_recurring_date <= $1)
	`, now)
	if err != nil {
		return nil, fmt.Errorf("query due recurring transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (s *Store) MarkRecurringProcessed(ctx context.Context, id uuid.UUID, processedAt, next time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions
		SET last_processed = $2, next_recurring_date = $3, updated_at = NOW()
		WHERE id = $1
	`, id, processedAt, next)
	if err != nil {
		return fmt.Errorf("mark recurring processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) SumExpenses(ctx context.Context, userID, accountID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE user_id = $1 AND account_id = $2 AND type = 'EXPENSE' AND date BETWEEN $3 AND $4
	`, userID, accountID, from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	return sum, nil
}

func (s *Store) MonthlySummary(ctx context.Context, userID uuid.UUID, from, to time.Time) (*store.MonthSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT type, category, SUM(amount), COUNT(*) FROM transactions
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
		GROUP BY type, category
	`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query month summary: %w", err)
	}
	defer rows.Close()

	summary := &store.MonthSummary{
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		ByCategory:    make(map[string]decimal.Decimal),
	}
	for rows.Next() {
		var (
			typ      domain.TransactionType
			category string
			amount   decimal.Decimal
			count    int
		)
		if err := rows.Scan(&typ, &category, &amount, &count); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summary.Count += count
		if typ == domain.TransactionTypeIncome {
			summary.TotalIncome = summary.TotalIncome.Add(amount)
		} else {
			summary.TotalExpenses = summary.TotalExpenses.Add(amount)
			summary.ByCategory[category] = summary.ByCategory[category].Add(amount)
		}
	}
	return summary, rows.Err()
}

// --- budgets ---

const budgetColumns = "id, user_id, amount, last_alert_sent, created_at, updated_at"

func (s *Store) UpsertBudget(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (*domain.Budget, error) {
	var b domain.Budget
	err := s.db.QueryRow(ctx, `
		INSERT INTO budgets (id, user_id, amount, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()
		RETURNING `+budgetColumns+`
	`, uuid.New(), userID, amount).Scan(&b.ID, &b.UserID, &b.Amount, &b.LastAlertSent, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert budget: %w", err)
	}
	return &b, nil
}

func (s *Store) GetBudget(ctx context.Context, userID uuid.UUID) (*domain.Budget, error) {
	var b domain.Budget
	err := s.db.QueryRow(ctx,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1`, userID).
		Scan(&b.ID, &b.UserID, &b.Amount, &b.LastAlertSent, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("budget for user %s", userID))
	}
	return &b, nil
}

func (s *Store) ListBudgets(ctx context.Context) ([]domain.Budget, error) {
	rows, err := s.db.Query(ctx, `SELECT `+budgetColumns+` FROM budgets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []domain.Budget
	for rows.Next() {
		var b domain.Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.Amount, &b.LastAlertSent, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) SetLastAlertSent(ctx context.Context, budgetID uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE budgets SET last_alert_sent = $2, updated_at = NOW() WHERE id = $1`, budgetID, at)
	if err != nil {
		return fmt.Errorf("set last alert sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("budget %s: %w", budgetID, domain.ErrNotFound)
	}
	return nil
}
