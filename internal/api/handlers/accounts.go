package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/store"
)

// AccountsHandler handles account endpoints.
type AccountsHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewAccountsHandler creates the accounts handler.
func NewAccountsHandler(st store.Store, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{store: st, log: log}
}

type createAccountRequest struct {
	Name      string `json:"name" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=CURRENT SAVINGS"`
	Balance   string `json:"balance"`
	IsDefault bool   `json:"is_default"`
}

// Create handles POST /api/accounts.
// The user's first account becomes the default regardless of the flag; an
// explicit default demotes the previous one.
func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	balance := decimal.Zero
	if req.Balance != "" {
		var err error
		balance, err = decimal.NewFromString(req.Balance)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "balance must be a decimal number")
			return
		}
	}

	now := time.Now()
	account := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      req.Name,
		Type:      domain.AccountType(req.Type),
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := h.store.RunInTx(r.Context(), func(ctx context.Context, tx store.Store) error {
		existing, err := tx.ListAccounts(ctx, userID)
		if err != nil {
			return err
		}
		account.IsDefault = req.IsDefault || len(existing) == 0
		if account.IsDefault {
			if err := tx.ClearDefaultAccount(ctx, userID); err != nil {
				return err
			}
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		if account.IsDefault {
			return tx.MarkDefaultAccount(ctx, account.ID, userID)
		}
		return nil
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create account")
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().
		Str("account_id", account.ID.String()).
		Str("user_id", userID.String()).
		Bool("is_default", account.IsDefault).
		Msg("Account created")
	middleware.WriteJSON(w, http.StatusCreated, account)
}

// List handles GET /api/accounts.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.store.ListAccounts(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteDomainError(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// Get handles GET /api/accounts/{id}: the account plus its transactions.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "/api/accounts/")
	if !ok {
		return
	}

	ctx := r.Context()
	account, err := h.store.GetAccount(ctx, accountID, userID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	transactions, err := h.store.ListAccountTransactions(ctx, accountID, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list account transactions")
		middleware.WriteDomainError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"account":      account,
		"transactions": transactions,
	})
}

// SetDefault handles PUT /api/accounts/{id}/default. Exactly one account is
// default afterwards.
func (h *AccountsHandler) SetDefault(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	err := h.store.RunInTx(r.Context(), func(ctx context.Context, tx store.Store) error {
		if _, err := tx.GetAccount(ctx, accountID, userID); err != nil {
			return err
		}
		if err := tx.ClearDefaultAccount(ctx, userID); err != nil {
			return err
		}
		return tx.MarkDefaultAccount(ctx, accountID, userID)
	})
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	account, err := h.store.GetAccount(r.Context(), accountID, userID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, account)
}
