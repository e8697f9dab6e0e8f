package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies an account.
type AccountType string

const (
	AccountTypeCurrent AccountType = "CURRENT"
	AccountTypeSavings AccountType = "SAVINGS"
)

// TransactionType determines the sign a transaction contributes to its
// account balance: INCOME adds, EXPENSE subtracts. The stored amount is
// always non-negative.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "INCOME"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// TransactionStatus is the processing status of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// RecurringInterval is the recurrence cadence of a recurring transaction.
type RecurringInterval string

const (
	RecurringDaily   RecurringInterval = "DAILY"
	RecurringWeekly  RecurringInterval = "WEEKLY"
	RecurringMonthly RecurringInterval = "MONTHLY"
	RecurringYearly  RecurringInterval = "YEARLY"
)

// ValidInterval reports whether s is one of the recognized recurrence
// intervals.
func ValidInterval(s RecurringInterval) bool {
	switch s {
	case RecurringDaily, RecurringWeekly, RecurringMonthly, RecurringYearly:
		return true
	}
	return false
}

// User is an application user. ExternalID is the identity assigned by the
// hosted auth provider; the rest of the system keys on the internal ID.
type User struct {
	ID         uuid.UUID
	ExternalID string
	Email      string
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Account holds a cached balance that must always equal the signed sum of
// the account's transactions. The balance column is only ever written by
// the ledger package.
type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Type      AccountType
	Balance   decimal.Decimal
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is a single ledger entry. Amount is stored positive; the
// sign is derived from Type. UserID is denormalized from the account for
// ownership checks.
type Transaction struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	AccountID         uuid.UUID
	Type              TransactionType
	Amount            decimal.Decimal
	Description       string
	Date              time.Time
	Category          string
	ReceiptURL        *string
	IsRecurring       bool
	RecurringInterval *RecurringInterval
	NextRecurringDate *time.Time
	LastProcessed     *time.Time
	Status            TransactionStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SignedAmount returns the transaction's contribution to its account
// balance: +Amount for INCOME, -Amount for EXPENSE.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Budget is a per-user monthly spending budget. One row per user.
// LastAlertSent rate-limits budget alerts to once per calendar month and is
// written only by the budget-alert job.
type Budget struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Amount        decimal.Decimal
	LastAlertSent *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
