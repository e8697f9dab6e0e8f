package seed

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/store/storetest"
)

func TestRunBalancesAccount(t *testing.T) {
	st := storetest.New()
	svc := New(st, zerolog.Nop())
	ctx := context.Background()

	result, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Transactions == 0 {
		t.Fatal("no transactions seeded")
	}

	account, err := st.GetAccount(ctx, result.AccountID, result.UserID)
	if err != nil {
		t.Fatal(err)
	}
	transactions, err := st.ListUserTransactions(ctx, result.UserID)
	if err != nil {
		t.Fatal(err)
	}

	sum := decimal.Zero
	for i := range transactions {
		sum = sum.Add(transactions[i].SignedAmount())
	}
	if !account.Balance.Equal(sum) {
		t.Errorf("balance = %s, signed sum = %s", account.Balance, sum)
	}

	if _, err := st.GetBudget(ctx, result.UserID); err != nil {
		t.Errorf("no budget after seeding: %v", err)
	}
}

func TestRunReplacesPreviousData(t *testing.T) {
	st := storetest.New()
	svc := New(st, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if second.UserID != first.UserID {
		t.Error("second run created a new demo user")
	}
	if second.Transactions != first.Transactions {
		t.Errorf("transaction counts differ between runs: %d vs %d", first.Transactions, second.Transactions)
	}

	transactions, err := st.ListUserTransactions(ctx, second.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(transactions) != second.Transactions {
		t.Errorf("store holds %d transactions, result says %d", len(transactions), second.Transactions)
	}

	account, err := st.GetAccount(ctx, second.AccountID, second.UserID)
	if err != nil {
		t.Fatal(err)
	}
	sum := decimal.Zero
	for i := range transactions {
		sum = sum.Add(transactions[i].SignedAmount())
	}
	if !account.Balance.Equal(sum) {
		t.Errorf("balance drifted after reseed: balance %s, signed sum %s", account.Balance, sum)
	}
}
