package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welthhq/welth/internal/config"
	"github.com/welthhq/welth/internal/jobs"
	"github.com/welthhq/welth/internal/jobs/inmemory"
	"github.com/welthhq/welth/internal/jobs/schedule"
	"github.com/welthhq/welth/internal/ledger"
	"github.com/welthhq/welth/internal/logger"
	"github.com/welthhq/welth/internal/mail"
	"github.com/welthhq/welth/internal/scan"
	"github.com/welthhq/welth/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New()

	log.Info().Msg("Starting worker service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create database pool")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database is unreachable")
	}

	st := postgres.NewStore(pool)

	// The worker posts recurring transactions on the system's behalf, so no
	// per-user creation quota applies here.
	ledgerSvc := ledger.New(st, nil, log)

	scanner := scan.NewGeminiScanner(cfg.GeminiModel)
	mailer := mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 5, jobStore)

	runner := jobs.NewRunner(st, ledgerSvc, mailer, scanner, jobQueue, log)

	handler := func(ctx context.Context, job jobs.Job) error {
		recurringJob, ok := job.(*jobs.PostRecurringJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", recurringJob.JobID).
			Str("transaction_id", recurringJob.TransactionID.String()).
			Msg("Processing recurring-posting job")

		if err := runner.ProcessRecurringTransaction(ctx, recurringJob); err != nil {
			log.Error().
				Err(err).
				Str("job_id", recurringJob.JobID).
				Msg("Recurring posting failed")
			return err
		}
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	scheduler, err := schedule.New(runner, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build scheduler")
	}
	scheduler.Start()

	log.Info().Msg("Worker service started, waiting for schedules and jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Let any in-flight scheduled function finish.
	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("Timed out waiting for scheduled functions")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
