package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/ledger"
	"github.com/welthhq/welth/internal/ratelimit"
	"github.com/welthhq/welth/internal/store/storetest"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	store   *storetest.Store
	svc     *ledger.Service
	userID  uuid.UUID
	account *domain.Account
}

func newFixture(t *testing.T, balance string) *fixture {
	t.Helper()
	st := storetest.New()
	userID := uuid.New()
	if err := st.CreateUser(context.Background(), &domain.User{ID: userID, Email: "t@example.com"}); err != nil {
		t.Fatal(err)
	}
	acct := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "Main",
		Type:      domain.AccountTypeCurrent,
		Balance:   dec(balance),
		IsDefault: true,
	}
	if err := st.CreateAccount(context.Background(), acct); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		store:   st,
		svc:     ledger.New(st, nil, zerolog.Nop()),
		userID:  userID,
		account: acct,
	}
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), f.account.ID, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	return a.Balance
}

func expenseDraft(accountID uuid.UUID, amount string) ledger.TransactionDraft {
	return ledger.TransactionDraft{
		AccountID: accountID,
		Type:      domain.TransactionTypeExpense,
		Amount:    dec(amount),
		Date:      time.Date(2024, time.June, 10, 0, 0, 0, 0, time.UTC),
		Category:  "Groceries",
	}
}

func TestCreateUpdateDeleteRoundTrip(t *testing.T) {
	f := newFixture(t, "500.00")
	ctx := context.Background()

	tr, err := f.svc.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "100.00"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := f.balance(t); !got.Equal(dec("400.00")) {
		t.Fatalf("balance after create = %s, want 400.00", got)
	}
	if tr.Category != "groceries" {
		t.Errorf("category = %q, want lower-cased", tr.Category)
	}

	_, err = f.svc.UpdateTransaction(ctx, f.userID, tr.ID, expenseDraft(f.account.ID, "150.00"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.balance(t); !got.Equal(dec("350.00")) {
		t.Fatalf("balance after update = %s, want 350.00", got)
	}

	n, err := f.svc.DeleteTransactions(ctx, f.userID, []uuid.UUID{tr.ID})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted count = %d, want 1", n)
	}
	if got := f.balance(t); !got.Equal(dec("500.00")) {
		t.Fatalf("balance after delete = %s, want 500.00", got)
	}
}

func TestCreateIncomeAddsToBalance(t *testing.T) {
	f := newFixture(t, "100.00")

	draft := expenseDraft(f.account.ID, "25.50")
	draft.Type = domain.TransactionTypeIncome
	if _, err := f.svc.CreateTransaction(context.Background(), f.userID, draft); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t); !got.Equal(dec("125.50")) {
		t.Fatalf("balance = %s, want 125.50", got)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*ledger.TransactionDraft)
	}{
		{"zero amount", func(d *ledger.TransactionDraft) { d.Amount = decimal.Zero }},
		{"negative amount", func(d *ledger.TransactionDraft) { d.Amount = dec("-5") }},
		{"unknown type", func(d *ledger.TransactionDraft) { d.Type = "TRANSFER" }},
		{"missing category", func(d *ledger.TransactionDraft) { d.Category = "" }},
		{"recurring without interval", func(d *ledger.TransactionDraft) { d.IsRecurring = true }},
		{"recurring with bad interval", func(d *ledger.TransactionDraft) {
			d.IsRecurring = true
			bad := domain.RecurringInterval("HOURLY")
			d.RecurringInterval = &bad
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := expenseDraft(f.account.ID, "10.00")
			tt.mutate(&draft)
			_, err := f.svc.CreateTransaction(ctx, f.userID, draft)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}

	if got := f.balance(t); !got.IsZero() {
		t.Errorf("balance mutated by rejected input: %s", got)
	}
}

func TestCreateUnknownAccountIsNotFound(t *testing.T) {
	f := newFixture(t, "100.00")
	_, err := f.svc.CreateTransaction(context.Background(), f.userID, expenseDraft(uuid.New(), "10.00"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateForeignAccountIsNotFound(t *testing.T) {
	f := newFixture(t, "100.00")
	stranger := uuid.New()
	_, err := f.svc.CreateTransaction(context.Background(), stranger, expenseDraft(f.account.ID, "10.00"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := f.balance(t); !got.Equal(dec("100.00")) {
		t.Fatalf("balance mutated by rejected create: %s", got)
	}
}

func TestCreateRateLimited(t *testing.T) {
	f := newFixture(t, "100.00")
	limited := ledger.New(f.store, ratelimit.New(5, time.Minute, 5), zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := limited.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "1.00")); err != nil {
			t.Fatalf("create %d: %v", i+1, err)
		}
	}

	_, err := limited.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "1.00"))
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	var rle *domain.RateLimitError
	if !errors.As(err, &rle) || rle.RetryAfter <= 0 {
		t.Fatalf("expected RateLimitError with positive retry-after, got %v", err)
	}
	// Denied request must not have touched the store.
	if got := f.balance(t); !got.Equal(dec("95.00")) {
		t.Fatalf("balance = %s, want 95.00", got)
	}
}

func TestUpdateTypeFlipAppliesNetChange(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	tr, err := f.svc.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "40.00"))
	if err != nil {
		t.Fatal(err)
	}

	draft := expenseDraft(f.account.ID, "40.00")
	draft.Type = domain.TransactionTypeIncome
	if _, err := f.svc.UpdateTransaction(ctx, f.userID, tr.ID, draft); err != nil {
		t.Fatal(err)
	}
	// -40 became +40, so the net change is +80.
	if got := f.balance(t); !got.Equal(dec("40.00")) {
		t.Fatalf("balance = %s, want 40.00", got)
	}
}

func TestUpdateMissingTransactionIsNotFound(t *testing.T) {
	f := newFixture(t, "100.00")
	_, err := f.svc.UpdateTransaction(context.Background(), f.userID, uuid.New(), expenseDraft(f.account.ID, "10.00"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateCannotMoveAccounts(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	other := &domain.Account{ID: uuid.New(), UserID: f.userID, Name: "Savings", Type: domain.AccountTypeSavings}
	if err := f.store.CreateAccount(ctx, other); err != nil {
		t.Fatal(err)
	}
	tr, err := f.svc.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "10.00"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.UpdateTransaction(ctx, f.userID, tr.ID, expenseDraft(other.ID, "10.00"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestBulkDeleteAggregatesPerAccount(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	expense, err := f.svc.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "30.00"))
	if err != nil {
		t.Fatal(err)
	}
	incomeDraft := expenseDraft(f.account.ID, "20.00")
	incomeDraft.Type = domain.TransactionTypeIncome
	income, err := f.svc.CreateTransaction(ctx, f.userID, incomeDraft)
	if err != nil {
		t.Fatal(err)
	}
	// 1000 - 30 + 20 = 990 before the delete.
	if got := f.balance(t); !got.Equal(dec("990.00")) {
		t.Fatalf("balance before delete = %s, want 990.00", got)
	}

	n, err := f.svc.DeleteTransactions(ctx, f.userID, []uuid.UUID{expense.ID, income.ID})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	// Removing the expense restores 30, removing the income retracts 20.
	if got := f.balance(t); !got.Equal(dec("1000.00")) {
		t.Fatalf("balance after delete = %s, want 1000.00", got)
	}
}

func TestBulkDeleteNetFromSeededRows(t *testing.T) {
	// Rows seeded directly, so the starting balance stays 1000: deleting an
	// EXPENSE 30 and an INCOME 20 must land on 1010 as one net +10 update.
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	expense := &domain.Transaction{
		ID: uuid.New(), UserID: f.userID, AccountID: f.account.ID,
		Type: domain.TransactionTypeExpense, Amount: dec("30.00"),
	}
	income := &domain.Transaction{
		ID: uuid.New(), UserID: f.userID, AccountID: f.account.ID,
		Type: domain.TransactionTypeIncome, Amount: dec("20.00"),
	}
	for _, tr := range []*domain.Transaction{expense, income} {
		if err := f.store.CreateTransaction(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	n, err := f.svc.DeleteTransactions(ctx, f.userID, []uuid.UUID{expense.ID, income.ID})
	if err != nil || n != 2 {
		t.Fatalf("delete = (%d, %v), want (2, nil)", n, err)
	}
	if got := f.balance(t); !got.Equal(dec("1010.00")) {
		t.Fatalf("balance = %s, want 1010.00", got)
	}
}

func TestBulkDeleteDropsUnknownAndForeignIDs(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	tr, err := f.svc.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "10.00"))
	if err != nil {
		t.Fatal(err)
	}

	// Another user's transaction must survive and not affect our balance.
	stranger := uuid.New()
	foreignAcct := &domain.Account{ID: uuid.New(), UserID: stranger, Balance: dec("50.00")}
	if err := f.store.CreateAccount(ctx, foreignAcct); err != nil {
		t.Fatal(err)
	}
	foreign := &domain.Transaction{
		ID: uuid.New(), UserID: stranger, AccountID: foreignAcct.ID,
		Type: domain.TransactionTypeExpense, Amount: dec("5.00"),
	}
	if err := f.store.CreateTransaction(ctx, foreign); err != nil {
		t.Fatal(err)
	}

	n, err := f.svc.DeleteTransactions(ctx, f.userID, []uuid.UUID{tr.ID, uuid.New(), foreign.ID})
	if err != nil {
		t.Fatalf("bulk delete with unknown ids must not error: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if _, err := f.store.GetTransaction(ctx, foreign.ID); err != nil {
		t.Fatal("foreign transaction was deleted")
	}
	fa, err := f.store.GetAccount(ctx, foreignAcct.ID, stranger)
	if err != nil {
		t.Fatal(err)
	}
	if !fa.Balance.Equal(dec("50.00")) {
		t.Fatalf("foreign balance mutated: %s", fa.Balance)
	}
}

func TestBulkDeleteEmptyAndRepeatedIsNoOp(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()

	if n, err := f.svc.DeleteTransactions(ctx, f.userID, nil); err != nil || n != 0 {
		t.Fatalf("empty delete = (%d, %v), want (0, nil)", n, err)
	}

	tr, err := f.svc.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "10.00"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.DeleteTransactions(ctx, f.userID, []uuid.UUID{tr.ID}); err != nil {
		t.Fatal(err)
	}
	// Deleting the same id again: no error, no count, no balance change.
	n, err := f.svc.DeleteTransactions(ctx, f.userID, []uuid.UUID{tr.ID})
	if err != nil || n != 0 {
		t.Fatalf("repeat delete = (%d, %v), want (0, nil)", n, err)
	}
	if got := f.balance(t); !got.Equal(dec("100.00")) {
		t.Fatalf("balance = %s, want 100.00", got)
	}
}

func TestPostRecurringPostsOnceAndAdvancesSchedule(t *testing.T) {
	f := newFixture(t, "1000.00")
	ctx := context.Background()

	interval := domain.RecurringMonthly
	draft := expenseDraft(f.account.ID, "200.00")
	draft.Description = "Rent"
	draft.IsRecurring = true
	draft.RecurringInterval = &interval
	tmpl, err := f.svc.CreateTransaction(ctx, f.userID, draft)
	if err != nil {
		t.Fatal(err)
	}
	// Creating the template itself applied -200.
	if got := f.balance(t); !got.Equal(dec("800.00")) {
		t.Fatalf("balance after template create = %s, want 800.00", got)
	}

	now := time.Date(2024, time.July, 10, 8, 0, 0, 0, time.UTC)
	posted, err := f.svc.PostRecurring(ctx, tmpl.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	if posted == nil {
		t.Fatal("expected a posted transaction")
	}
	if posted.IsRecurring {
		t.Error("posted occurrence must not itself be recurring")
	}
	if posted.Description != "Rent"+ledger.RecurringSuffix {
		t.Errorf("description = %q", posted.Description)
	}
	if got := f.balance(t); !got.Equal(dec("600.00")) {
		t.Fatalf("balance after post = %s, want 600.00", got)
	}

	stored, err := f.store.GetTransaction(ctx, tmpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastProcessed == nil || !stored.LastProcessed.Equal(now) {
		t.Errorf("lastProcessed = %v, want %v", stored.LastProcessed, now)
	}
	wantNext := time.Date(2024, time.August, 10, 8, 0, 0, 0, time.UTC)
	if stored.NextRecurringDate == nil || !stored.NextRecurringDate.Equal(wantNext) {
		t.Errorf("nextRecurringDate = %v, want %v", stored.NextRecurringDate, wantNext)
	}

	// Immediately posting again is a no-op: the schedule has advanced.
	again, err := f.svc.PostRecurring(ctx, tmpl.ID, now)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Fatal("template posted twice in one period")
	}
	if got := f.balance(t); !got.Equal(dec("600.00")) {
		t.Fatalf("balance after repeat post = %s, want 600.00", got)
	}
}

func TestPostRecurringIgnoresStoppedAndMissingTemplates(t *testing.T) {
	f := newFixture(t, "100.00")
	ctx := context.Background()
	now := time.Now()

	// Missing template: no-op, not an error (the job may race a delete).
	posted, err := f.svc.PostRecurring(ctx, uuid.New(), now)
	if err != nil || posted != nil {
		t.Fatalf("missing template = (%v, %v), want (nil, nil)", posted, err)
	}

	// A template edited to stop recurring must never post again.
	tr, err := f.svc.CreateTransaction(ctx, f.userID, expenseDraft(f.account.ID, "10.00"))
	if err != nil {
		t.Fatal(err)
	}
	posted, err = f.svc.PostRecurring(ctx, tr.ID, now)
	if err != nil || posted != nil {
		t.Fatalf("non-recurring template = (%v, %v), want (nil, nil)", posted, err)
	}
	if got := f.balance(t); !got.Equal(dec("90.00")) {
		t.Fatalf("balance = %s, want 90.00", got)
	}
}

func TestBalanceEqualsSignedSumAfterMixedSequence(t *testing.T) {
	f := newFixture(t, "0")
	ctx := context.Background()

	amounts := []struct {
		typ    domain.TransactionType
		amount string
	}{
		{domain.TransactionTypeIncome, "1000.00"},
		{domain.TransactionTypeExpense, "250.25"},
		{domain.TransactionTypeExpense, "74.75"},
		{domain.TransactionTypeIncome, "19.99"},
	}
	var ids []uuid.UUID
	for _, a := range amounts {
		draft := expenseDraft(f.account.ID, a.amount)
		draft.Type = a.typ
		tr, err := f.svc.CreateTransaction(ctx, f.userID, draft)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, tr.ID)
	}

	// Delete one expense, then reconcile against the remaining rows.
	if _, err := f.svc.DeleteTransactions(ctx, f.userID, ids[2:3]); err != nil {
		t.Fatal(err)
	}

	remaining, err := f.store.ListUserTransactions(ctx, f.userID)
	if err != nil {
		t.Fatal(err)
	}
	sum := decimal.Zero
	for i := range remaining {
		sum = sum.Add(remaining[i].SignedAmount())
	}
	if got := f.balance(t); !got.Equal(sum) {
		t.Fatalf("balance %s does not reconcile with signed sum %s", got, sum)
	}
	if !sum.Equal(dec("769.74")) {
		t.Fatalf("signed sum = %s, want 769.74", sum)
	}
}
