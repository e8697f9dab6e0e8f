package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/ledger"
	"github.com/welthhq/welth/internal/store"
)

// TransactionsHandler handles transaction endpoints. Every mutation goes
// through the ledger service so account balances stay consistent.
type TransactionsHandler struct {
	ledger *ledger.Service
	store  store.Store
	log    zerolog.Logger
}

// NewTransactionsHandler creates the transactions handler.
func NewTransactionsHandler(lg *ledger.Service, st store.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{ledger: lg, store: st, log: log}
}

type transactionRequest struct {
	AccountID         string  `json:"account_id" validate:"required"`
	Type              string  `json:"type" validate:"required,oneof=INCOME EXPENSE"`
	Amount            string  `json:"amount" validate:"required"`
	Description       string  `json:"description"`
	Date              string  `json:"date" validate:"required"`
	Category          string  `json:"category" validate:"required"`
	ReceiptURL        *string `json:"receipt_url"`
	IsRecurring       bool    `json:"is_recurring"`
	RecurringInterval *string `json:"recurring_interval"`
}

func (req *transactionRequest) toDraft(w http.ResponseWriter) (ledger.TransactionDraft, bool) {
	var draft ledger.TransactionDraft

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "account_id must be a UUID")
		return draft, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be a decimal number")
		return draft, false
	}
	date, err := parseDate(req.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "date must be RFC 3339 or YYYY-MM-DD")
		return draft, false
	}

	draft = ledger.TransactionDraft{
		AccountID:   accountID,
		Type:        domain.TransactionType(req.Type),
		Amount:      amount,
		Description: req.Description,
		Date:        date,
		Category:    req.Category,
		ReceiptURL:  req.ReceiptURL,
		IsRecurring: req.IsRecurring,
	}
	if req.RecurringInterval != nil {
		interval := domain.RecurringInterval(*req.RecurringInterval)
		draft.RecurringInterval = &interval
	}
	return draft, true
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// Create handles POST /api/transactions.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	draft, ok := req.toDraft(w)
	if !ok {
		return
	}

	transaction, err := h.ledger.CreateTransaction(r.Context(), userID, draft)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, transaction)
}

// List handles GET /api/transactions, optionally filtered by account_id.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	var (
		transactions []domain.Transaction
		err          error
	)
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			middleware.WriteError(w, http.StatusBadRequest, "account_id must be a UUID")
			return
		}
		transactions, err = h.store.ListAccountTransactions(ctx, accountID, userID)
	} else {
		transactions, err = h.store.ListUserTransactions(ctx, userID)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteDomainError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// Get handles GET /api/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	transaction, err := h.store.GetUserTransaction(r.Context(), id, userID)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, transaction)
}

// Update handles PUT /api/transactions/{id}.
func (h *TransactionsHandler) Update(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	draft, ok := req.toDraft(w)
	if !ok {
		return
	}

	transaction, err := h.ledger.UpdateTransaction(r.Context(), userID, id, draft)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, transaction)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// BulkDelete handles DELETE /api/transactions. Unknown or foreign ids are
// dropped; the response reports how many rows were actually removed.
func (h *TransactionsHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "ids must be UUIDs")
			return
		}
		ids = append(ids, id)
	}

	deleted, err := h.ledger.DeleteTransactions(r.Context(), userID, ids)
	if err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"requested": len(ids),
		"deleted":   deleted,
	})
}
