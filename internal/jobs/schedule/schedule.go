// Package schedule wires the background functions onto a cron scheduler.
// The cadences mirror the product's hosted scheduler: budget alerts every
// six hours, recurring triggering daily at midnight, monthly reports on the
// first of each month.
package schedule

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/welthhq/welth/internal/jobs"
)

const (
	budgetAlertSpec    = "0 */6 * * *"
	recurringSpec      = "0 0 * * *"
	monthlyReportsSpec = "0 0 1 * *"
)

// Scheduler runs the periodic background functions.
type Scheduler struct {
	cron   *cron.Cron
	runner *jobs.Runner
	log    zerolog.Logger
}

// New registers the three periodic functions on a cron scheduler. The
// returned Scheduler is idle until Start.
func New(runner *jobs.Runner, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
		log:    log,
	}

	entries := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{"check_budget_alerts", budgetAlertSpec, runner.CheckBudgetAlerts},
		{"trigger_recurring_transactions", recurringSpec, runner.TriggerRecurringTransactions},
		{"generate_monthly_reports", monthlyReportsSpec, runner.GenerateMonthlyReports},
	}
	for _, e := range entries {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() { s.run(e.name, e.fn) }); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) run(name string, fn func(context.Context) error) {
	log := s.log.With().Str("function", name).Logger()
	log.Info().Msg("Scheduled function starting")
	if err := fn(context.Background()); err != nil {
		log.Error().Err(err).Msg("Scheduled function failed")
		return
	}
	log.Info().Msg("Scheduled function completed")
}

// Start begins executing scheduled functions in background goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and returns a context that is done once any
// running function has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
