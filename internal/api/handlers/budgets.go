package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/store"
)

// BudgetsHandler handles the one-budget-per-user endpoints.
type BudgetsHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewBudgetsHandler creates the budgets handler.
func NewBudgetsHandler(st store.Store, log zerolog.Logger) *BudgetsHandler {
	return &BudgetsHandler{store: st, log: log}
}

// Get handles GET /api/budget: the budget plus month-to-date spend on the
// default account. A user without a budget gets a null budget, not a 404.
func (h *BudgetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	budget, err := h.store.GetBudget(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		h.log.Error().Err(err).Msg("Failed to load budget")
		middleware.WriteDomainError(w, err)
		return
	}

	expenses := decimal.Zero
	if account, err := h.store.GetDefaultAccount(ctx, userID); err == nil {
		now := time.Now()
		startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		expenses, err = h.store.SumExpenses(ctx, userID, account.ID, startOfMonth, now)
		if err != nil {
			h.log.Error().Err(err).Msg("Failed to sum expenses")
			middleware.WriteDomainError(w, err)
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"budget":           budget,
		"current_expenses": expenses,
	})
}

type upsertBudgetRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// Upsert handles PUT /api/budget: creates or replaces the user's budget.
func (h *BudgetsHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUser(w, r)
	if !ok {
		return
	}

	var req upsertBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		middleware.WriteError(w, http.StatusBadRequest, "amount must be a positive decimal number")
		return
	}

	budget, err := h.store.UpsertBudget(r.Context(), userID, amount)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upsert budget")
		middleware.WriteDomainError(w, err)
		return
	}

	h.log.Info().
		Str("user_id", userID.String()).
		Str("amount", amount.String()).
		Msg("Budget updated")
	middleware.WriteJSON(w, http.StatusOK, budget)
}
