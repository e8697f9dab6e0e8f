package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/auth"
	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/ledger"
	"github.com/welthhq/welth/internal/ratelimit"
	"github.com/welthhq/welth/internal/store/storetest"
)

type env struct {
	store        *storetest.Store
	tokens       *auth.TokenService
	auth         *AuthHandler
	accounts     *AccountsHandler
	transactions *TransactionsHandler
	budgets      *BudgetsHandler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := storetest.New()
	tokens := auth.NewTokenService("test-secret", time.Hour)
	limiter := ratelimit.New(5, time.Minute, 5)
	lg := ledger.New(st, limiter, zerolog.Nop())
	return &env{
		store:        st,
		tokens:       tokens,
		auth:         NewAuthHandler(st, tokens, zerolog.Nop()),
		accounts:     NewAccountsHandler(st, zerolog.Nop()),
		transactions: NewTransactionsHandler(lg, st, zerolog.Nop()),
		budgets:      NewBudgetsHandler(st, zerolog.Nop()),
	}
}

func (e *env) seedUser(t *testing.T) uuid.UUID {
	t.Helper()
	u := &domain.User{ID: uuid.New(), ExternalID: "ext-1", Email: "ada@example.com", Name: "Ada"}
	if err := e.store.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u.ID
}

func (e *env) seedAccount(t *testing.T, userID uuid.UUID, balance string) uuid.UUID {
	t.Helper()
	a := &domain.Account{
		ID: uuid.New(), UserID: userID, Name: "Checking",
		Type: domain.AccountTypeCurrent, Balance: decimal.RequireFromString(balance), IsDefault: true,
	}
	if err := e.store.CreateAccount(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a.ID
}

// authedRequest builds a request that already passed RequireAuth.
func authedRequest(t *testing.T, tokens *auth.TokenService, userID uuid.UUID, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	token, err := tokens.GenerateToken(userID)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// through wraps a handler func with RequireAuth so the user ID lands in the
// context the way it does in production.
func through(tokens *auth.TokenService, h http.HandlerFunc) http.Handler {
	return middleware.RequireAuth(tokens)(h)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestRegisterThenLogin(t *testing.T) {
	e := newEnv(t)

	body := map[string]string{"external_id": "clerk-123", "email": "ada@example.com", "name": "Ada"}
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", encode(t, body))
	rec := httptest.NewRecorder()
	e.auth.Register(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body)
	}
	var registered struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &registered)
	if registered.Token == "" {
		t.Fatal("register returned no token")
	}

	// Registering the same identity again is a login, not a duplicate.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/register", encode(t, body))
	rec = httptest.NewRecorder()
	e.auth.Register(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat register status = %d", rec.Code)
	}

	users, err := e.store.ListUsers(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 {
		t.Fatalf("store holds %d users, want 1", len(users))
	}

	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", encode(t, map[string]string{"external_id": "clerk-123"}))
	rec = httptest.NewRecorder()
	e.auth.Login(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
}

func TestLoginUnknownIdentity(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", encode(t, map[string]string{"external_id": "nobody"}))
	rec := httptest.NewRecorder()
	e.auth.Login(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func encode(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestFirstAccountBecomesDefault(t *testing.T) {
	e := newEnv(t)
	userID := e.seedUser(t)

	req := authedRequest(t, e.tokens, userID, http.MethodPost, "/api/accounts",
		map[string]any{"name": "Checking", "type": "CURRENT", "balance": "100.00"})
	rec := httptest.NewRecorder()
	through(e.tokens, e.accounts.Create).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var first domain.Account
	decodeBody(t, rec, &first)
	if !first.IsDefault {
		t.Error("first account is not default")
	}

	// A second account flagged default demotes the first.
	req = authedRequest(t, e.tokens, userID, http.MethodPost, "/api/accounts",
		map[string]any{"name": "Savings", "type": "SAVINGS", "is_default": true})
	rec = httptest.NewRecorder()
	through(e.tokens, e.accounts.Create).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}

	accounts, err := e.store.ListAccounts(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	defaults := 0
	for _, a := range accounts {
		if a.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Errorf("%d default accounts, want exactly 1", defaults)
	}
}

func TestCreateTransactionMovesBalance(t *testing.T) {
	e := newEnv(t)
	userID := e.seedUser(t)
	accountID := e.seedAccount(t, userID, "500.00")

	req := authedRequest(t, e.tokens, userID, http.MethodPost, "/api/transactions", map[string]any{
		"account_id": accountID.String(),
		"type":       "EXPENSE",
		"amount":     "100.00",
		"date":       "2024-06-15",
		"category":   "Groceries",
	})
	rec := httptest.NewRecorder()
	through(e.tokens, e.transactions.Create).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	account, err := e.store.GetAccount(context.Background(), accountID, userID)
	if err != nil {
		t.Fatal(err)
	}
	if !account.Balance.Equal(decimal.RequireFromString("400.00")) {
		t.Errorf("balance = %s, want 400.00", account.Balance)
	}
}

func TestCreateTransactionRateLimited(t *testing.T) {
	e := newEnv(t)
	userID := e.seedUser(t)
	accountID := e.seedAccount(t, userID, "500.00")

	body := map[string]any{
		"account_id": accountID.String(),
		"type":       "EXPENSE",
		"amount":     "1.00",
		"date":       "2024-06-15",
		"category":   "snacks",
	}
	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := authedRequest(t, e.tokens, userID, http.MethodPost, "/api/transactions", body)
		last = httptest.NewRecorder()
		through(e.tokens, e.transactions.Create).ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth create status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("429 response has no Retry-After header")
	}
}

func TestBulkDeleteReportsDeletedCount(t *testing.T) {
	e := newEnv(t)
	userID := e.seedUser(t)
	accountID := e.seedAccount(t, userID, "1000.00")

	tx := &domain.Transaction{
		ID: uuid.New(), UserID: userID, AccountID: accountID,
		Type: domain.TransactionTypeExpense, Amount: decimal.RequireFromString("10.00"),
		Date: time.Now(), Category: "snacks", Status: domain.TransactionStatusCompleted,
	}
	if err := e.store.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatal(err)
	}

	req := authedRequest(t, e.tokens, userID, http.MethodDelete, "/api/transactions",
		map[string]any{"ids": []string{tx.ID.String(), uuid.New().String()}})
	rec := httptest.NewRecorder()
	through(e.tokens, e.transactions.BulkDelete).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Requested int   `json:"requested"`
		Deleted   int64 `json:"deleted"`
	}
	decodeBody(t, rec, &resp)
	if resp.Requested != 2 || resp.Deleted != 1 {
		t.Errorf("requested/deleted = %d/%d, want 2/1", resp.Requested, resp.Deleted)
	}

	account, err := e.store.GetAccount(context.Background(), accountID, userID)
	if err != nil {
		t.Fatal(err)
	}
	if !account.Balance.Equal(decimal.RequireFromString("1010.00")) {
		t.Errorf("balance = %s after delete, want 1010.00", account.Balance)
	}
}

func TestUpdateForeignTransactionIs404(t *testing.T) {
	e := newEnv(t)
	owner := e.seedUser(t)
	accountID := e.seedAccount(t, owner, "100.00")

	tx := &domain.Transaction{
		ID: uuid.New(), UserID: owner, AccountID: accountID,
		Type: domain.TransactionTypeExpense, Amount: decimal.RequireFromString("5.00"),
		Date: time.Now(), Category: "snacks", Status: domain.TransactionStatusCompleted,
	}
	if err := e.store.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatal(err)
	}

	intruder := uuid.New()
	if err := e.store.CreateUser(context.Background(), &domain.User{ID: intruder, ExternalID: "ext-2", Email: "eve@example.com", Name: "Eve"}); err != nil {
		t.Fatal(err)
	}

	req := authedRequest(t, e.tokens, intruder, http.MethodPut,
		fmt.Sprintf("/api/transactions/%s", tx.ID), map[string]any{
			"account_id": accountID.String(),
			"type":       "EXPENSE",
			"amount":     "5.00",
			"date":       "2024-06-15",
			"category":   "snacks",
		})
	rec := httptest.NewRecorder()
	through(e.tokens, func(w http.ResponseWriter, r *http.Request) {
		e.transactions.Update(w, r, tx.ID)
	}).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBudgetUpsertAndGet(t *testing.T) {
	e := newEnv(t)
	userID := e.seedUser(t)
	accountID := e.seedAccount(t, userID, "1000.00")

	now := time.Now()
	tx := &domain.Transaction{
		ID: uuid.New(), UserID: userID, AccountID: accountID,
		Type: domain.TransactionTypeExpense, Amount: decimal.RequireFromString("250.00"),
		Date: now, Category: "groceries", Status: domain.TransactionStatusCompleted,
	}
	if err := e.store.CreateTransaction(context.Background(), tx); err != nil {
		t.Fatal(err)
	}

	req := authedRequest(t, e.tokens, userID, http.MethodPut, "/api/budget",
		map[string]string{"amount": "2000.00"})
	rec := httptest.NewRecorder()
	through(e.tokens, e.budgets.Upsert).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert status = %d, body %s", rec.Code, rec.Body)
	}

	req = authedRequest(t, e.tokens, userID, http.MethodGet, "/api/budget", nil)
	rec = httptest.NewRecorder()
	through(e.tokens, e.budgets.Get).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var resp struct {
		Budget          *domain.Budget `json:"budget"`
		CurrentExpenses string         `json:"current_expenses"`
	}
	decodeBody(t, rec, &resp)
	if resp.Budget == nil || !resp.Budget.Amount.Equal(decimal.RequireFromString("2000.00")) {
		t.Errorf("budget = %+v, want amount 2000.00", resp.Budget)
	}
	if resp.CurrentExpenses != "250" {
		t.Errorf("current_expenses = %q, want 250", resp.CurrentExpenses)
	}
}

func TestMissingTokenRejected(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	rec := httptest.NewRecorder()
	through(e.tokens, e.accounts.List).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
