package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/jobs"
)

// functionInfo describes one dispatchable background function.
type functionInfo struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule,omitempty"`
	Trigger  string `json:"trigger"`
}

var functionCatalog = []functionInfo{
	{Name: "check_budget_alerts", Schedule: "0 */6 * * *", Trigger: "cron"},
	{Name: "trigger_recurring_transactions", Schedule: "0 0 * * *", Trigger: "cron"},
	{Name: "process_recurring_transaction", Trigger: "event"},
	{Name: "generate_monthly_reports", Schedule: "0 0 1 * *", Trigger: "cron"},
}

// JobsHandler exposes the background functions for manual dispatch and the
// job store for status inspection.
type JobsHandler struct {
	runner    *jobs.Runner
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewJobsHandler creates the jobs handler.
func NewJobsHandler(runner *jobs.Runner, publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{runner: runner, publisher: publisher, store: store, log: log}
}

// ListFunctions handles GET /api/functions.
func (h *JobsHandler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"functions": functionCatalog,
		"count":     len(functionCatalog),
	})
}

// Dispatch handles POST /api/functions/{name}/dispatch: runs one background
// function immediately instead of waiting for its schedule. The event-driven
// function takes a transaction_id body and goes through the queue like a
// scheduled trigger would.
func (h *JobsHandler) Dispatch(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()

	var run func(context.Context) error
	switch name {
	case "check_budget_alerts":
		run = h.runner.CheckBudgetAlerts
	case "trigger_recurring_transactions":
		run = h.runner.TriggerRecurringTransactions
	case "generate_monthly_reports":
		run = h.runner.GenerateMonthlyReports
	case "process_recurring_transaction":
		h.dispatchPostRecurring(w, r)
		return
	default:
		middleware.WriteError(w, http.StatusNotFound, "Unknown function")
		return
	}

	h.log.Info().Str("function", name).Msg("Manual function dispatch")
	if err := run(ctx); err != nil {
		h.log.Error().Err(err).Str("function", name).Msg("Dispatched function failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Function execution failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"function": name,
		"status":   "completed",
	})
}

type dispatchRecurringRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	UserID        string `json:"user_id" validate:"required"`
}

func (h *JobsHandler) dispatchPostRecurring(w http.ResponseWriter, r *http.Request) {
	var req dispatchRecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}
	transactionID, err := uuid.Parse(req.TransactionID)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "transaction_id must be a UUID")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "user_id must be a UUID")
		return
	}

	job := &jobs.PostRecurringJob{TransactionID: transactionID, UserID: userID}
	if err := h.publisher.PublishPostRecurring(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue recurring-posting job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}
	if raw := query.Get("transaction_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "transaction_id must be a UUID")
			return
		}
		filter.TransactionID = id
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
