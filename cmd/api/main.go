package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welthhq/welth/internal/api/handlers"
	"github.com/welthhq/welth/internal/api/middleware"
	"github.com/welthhq/welth/internal/archive"
	"github.com/welthhq/welth/internal/auth"
	"github.com/welthhq/welth/internal/config"
	"github.com/welthhq/welth/internal/jobs"
	"github.com/welthhq/welth/internal/jobs/inmemory"
	"github.com/welthhq/welth/internal/ledger"
	"github.com/welthhq/welth/internal/logger"
	"github.com/welthhq/welth/internal/mail"
	"github.com/welthhq/welth/internal/ratelimit"
	"github.com/welthhq/welth/internal/scan"
	"github.com/welthhq/welth/internal/seed"
	"github.com/welthhq/welth/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database pool")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database is unreachable")
	}

	st := postgres.NewStore(pool)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiresIn)

	// 5 transaction creations per minute per user.
	limiter := ratelimit.New(5, time.Minute, 5)
	ledgerSvc := ledger.New(st, limiter, log)

	scanner := scan.NewGeminiScanner(cfg.GeminiModel)
	var receiptArchive *archive.Archive
	if cfg.ReceiptBucket != "" {
		receiptArchive = archive.New(cfg.ReceiptBucket)
	} else {
		log.Warn().Msg("No receipt bucket configured - scanned images will not be archived")
	}

	var mailer mail.Sender = mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)
	if cfg.ResendAPIKey == "" {
		log.Warn().Msg("No Resend API key configured - emails will fail")
	}

	// Job infrastructure: the API enqueues recurring-posting jobs and also
	// consumes them, so single-instance deployments need no separate worker.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)

	runner := jobs.NewRunner(st, ledgerSvc, mailer, scanner, jobQueue, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		recurringJob, ok := job.(*jobs.PostRecurringJob)
		if !ok {
			log.Error().Str("job_id", job.GetID()).Msg("Unexpected job type")
			return nil
		}
		return runner.ProcessRecurringTransaction(ctx, recurringJob)
	}
	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Handlers
	authHandler := handlers.NewAuthHandler(st, tokens, log)
	accountsHandler := handlers.NewAccountsHandler(st, log)
	transactionsHandler := handlers.NewTransactionsHandler(ledgerSvc, st, log)
	budgetsHandler := handlers.NewBudgetsHandler(st, log)
	receiptsHandler := handlers.NewReceiptsHandler(scanner, receiptArchive, log)
	jobsHandler := handlers.NewJobsHandler(runner, jobQueue, jobStore, log)
	seedHandler := handlers.NewSeedHandler(seed.New(st, log), log)

	requireAuth := middleware.RequireAuth(tokens)

	mux := http.NewServeMux()

	// Auth endpoints
	mux.HandleFunc("/api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			authHandler.Register(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			authHandler.Login(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Account endpoints
	mux.Handle("/api/accounts", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			accountsHandler.List(w, r)
		case http.MethodPost:
			accountsHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))
	mux.Handle("/api/accounts/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
		if r.Method == http.MethodPut && strings.HasSuffix(rest, "/default") {
			raw := strings.TrimSuffix(rest, "/default")
			accountID, err := uuid.Parse(strings.Trim(raw, "/"))
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, "Invalid account id")
				return
			}
			accountsHandler.SetDefault(w, r, accountID)
			return
		}
		if r.Method == http.MethodGet {
			accountsHandler.Get(w, r)
			return
		}
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})))

	// Transaction endpoints
	mux.Handle("/api/transactions", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.List(w, r)
		case http.MethodPost:
			transactionsHandler.Create(w, r)
		case http.MethodDelete:
			transactionsHandler.BulkDelete(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))
	mux.Handle("/api/transactions/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/transactions/"), "/")
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid transaction id")
			return
		}
		switch r.Method {
		case http.MethodGet:
			transactionsHandler.Get(w, r, id)
		case http.MethodPut:
			transactionsHandler.Update(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))

	// Budget endpoints
	mux.Handle("/api/budget", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			budgetsHandler.Get(w, r)
		case http.MethodPut:
			budgetsHandler.Upsert(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))

	// Receipt endpoints
	mux.Handle("/api/receipts", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			receiptsHandler.ListArchived(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))
	mux.Handle("/api/receipts/scan", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			receiptsHandler.Scan(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})))

	// Background-function endpoints
	mux.HandleFunc("/api/functions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListFunctions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/functions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/functions/")
		name := strings.TrimSuffix(rest, "/dispatch")
		if name == rest || name == "" {
			middleware.WriteError(w, http.StatusNotFound, "Unknown function endpoint")
			return
		}
		jobsHandler.Dispatch(w, r, strings.Trim(name, "/"))
	})

	// Job status endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsHandler.GetJob(w, r, jobID)
	})

	// Demo data
	mux.HandleFunc("/api/seed", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			seedHandler.Run(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
