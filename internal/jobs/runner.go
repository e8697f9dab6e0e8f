// Package jobs holds the four background functions the scheduler invokes:
// budget alerts, recurring-transaction triggering and posting, and monthly
// reports. The functions are plain methods so the HTTP dispatch endpoint
// and the cron scheduler share one implementation.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/welthhq/welth/internal/domain"
	"github.com/welthhq/welth/internal/ledger"
	"github.com/welthhq/welth/internal/mail"
	"github.com/welthhq/welth/internal/ratelimit"
	"github.com/welthhq/welth/internal/scan"
	"github.com/welthhq/welth/internal/store"
)

// BudgetAlertThreshold is the usage percentage at which an alert fires.
const BudgetAlertThreshold = 80.0

// Runner executes the background functions.
type Runner struct {
	store     store.Store
	ledger    *ledger.Service
	mailer    mail.Sender
	insights  scan.InsightGenerator
	publisher Publisher
	throttle  *ratelimit.Limiter
	log       zerolog.Logger
	now       func() time.Time
}

// NewRunner wires the background functions. throttle bounds recurring
// posting to 10 per minute per user; insights may be nil, which always
// uses the generic fallback text.
func NewRunner(st store.Store, lg *ledger.Service, mailer mail.Sender, insights scan.InsightGenerator, publisher Publisher, log zerolog.Logger) *Runner {
	return &Runner{
		store:     st,
		ledger:    lg,
		mailer:    mailer,
		insights:  insights,
		publisher: publisher,
		throttle:  ratelimit.New(10, time.Minute, 10),
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the runner's clock. Tests only.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// CheckBudgetAlerts scans every budget and emails users whose default
// account has spent at least 80% of the budget this month. Alerts are
// limited to one per calendar month via lastAlertSent, which is recorded
// only after a successful send: a failed send may produce a duplicate
// alert later, never a silently dropped one.
func (r *Runner) CheckBudgetAlerts(ctx context.Context) error {
	now := r.now()
	budgets, err := r.store.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("check budget alerts: list budgets: %w", err)
	}

	var failed int
	for i := range budgets {
		budget := &budgets[i]
		if err := r.checkOneBudget(ctx, budget, now); err != nil {
			failed++
			r.log.Error().Err(err).
				Str("budget_id", budget.ID.String()).
				Str("user_id", budget.UserID.String()).
				Msg("Budget alert check failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("check budget alerts: %d of %d budgets failed", failed, len(budgets))
	}
	return nil
}

func (r *Runner) checkOneBudget(ctx context.Context, budget *domain.Budget, now time.Time) error {
	if !budget.Amount.IsPositive() {
		return nil
	}

	account, err := r.store.GetDefaultAccount(ctx, budget.UserID)
	if err != nil {
		// Users without a default account simply have no alert surface.
		if isNotFound(err) {
			return nil
		}
		return err
	}

	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	expenses, err := r.store.SumExpenses(ctx, budget.UserID, account.ID, startOfMonth, now)
	if err != nil {
		return fmt.Errorf("sum expenses: %w", err)
	}

	usage, _ := expenses.Div(budget.Amount).Mul(hundred).Float64()
	if usage < BudgetAlertThreshold || !isNewMonth(budget.LastAlertSent, now) {
		return nil
	}

	user, err := r.store.GetUser(ctx, budget.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	subject, html, err := mail.RenderBudgetAlert(mail.BudgetAlertData{
		UserName:      user.Name,
		UsagePercent:  usage,
		BudgetAmount:  budget.Amount,
		TotalExpenses: expenses,
	})
	if err != nil {
		return err
	}
	if err := r.mailer.Send(ctx, user.Email, subject, html); err != nil {
		return fmt.Errorf("send budget alert: %w", err)
	}

	// Recorded only after the send succeeded.
	if err := r.store.SetLastAlertSent(ctx, budget.ID, now); err != nil {
		return fmt.Errorf("record alert sent: %w", err)
	}
	r.log.Info().
		Str("user_id", budget.UserID.String()).
		Float64("usage_percent", usage).
		Msg("Budget alert sent")
	return nil
}

// isNewMonth reports whether the last alert was sent in a different
// calendar month than now (or never).
func isNewMonth(lastAlertSent *time.Time, now time.Time) bool {
	if lastAlertSent == nil {
		return true
	}
	return lastAlertSent.Month() != now.Month() || lastAlertSent.Year() != now.Year()
}

// TriggerRecurringTransactions selects all due recurring templates and
// fans out one queue job per template. Posting happens in the consumer so
// it can be throttled per user; nothing is posted inline.
func (r *Runner) TriggerRecurringTransactions(ctx context.Context) error {
	now := r.now()
	due, err := r.store.ListDueRecurring(ctx, now)
	if err != nil {
		return fmt.Errorf("trigger recurring transactions: %w", err)
	}

	published := 0
	for i := range due {
		tmpl := &due[i]
		job := &PostRecurringJob{
			TransactionID: tmpl.ID,
			UserID:        tmpl.UserID,
		}
		if err := r.publisher.PublishPostRecurring(ctx, job); err != nil {
			r.log.Error().Err(err).
				Str("transaction_id", tmpl.ID.String()).
				Msg("Failed to publish recurring-posting job")
			continue
		}
		published++
	}

	r.log.Info().
		Int("due", len(due)).
		Int("published", published).
		Msg("Recurring transactions triggered")
	if published < len(due) {
		return fmt.Errorf("trigger recurring transactions: published %d of %d jobs", published, len(due))
	}
	return nil
}

// ProcessRecurringTransaction posts one recurring template, throttled to
// 10 per minute per user. Dueness is re-checked inside the ledger so a
// stale or duplicate event is a no-op.
func (r *Runner) ProcessRecurringTransaction(ctx context.Context, job *PostRecurringJob) error {
	if err := r.throttle.Wait(ctx, job.UserID.String()); err != nil {
		return fmt.Errorf("process recurring transaction: throttle: %w", err)
	}
	if _, err := r.ledger.PostRecurring(ctx, job.TransactionID, r.now()); err != nil {
		return fmt.Errorf("process recurring transaction %s: %w", job.TransactionID, err)
	}
	return nil
}

// GenerateMonthlyReports emails every user a summary of the previous
// calendar month. Users with no activity that month are skipped. Insight
// generation never blocks the report: it degrades to generic text.
func (r *Runner) GenerateMonthlyReports(ctx context.Context) error {
	now := r.now()
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	from := firstOfThisMonth.AddDate(0, -1, 0)
	to := firstOfThisMonth.Add(-time.Nanosecond)
	monthLabel := from.Format("January 2006")

	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("generate monthly reports: list users: %w", err)
	}

	var failed int
	for i := range users {
		user := &users[i]
		if err := r.reportForUser(ctx, user, from, to, monthLabel); err != nil {
			failed++
			r.log.Error().Err(err).
				Str("user_id", user.ID.String()).
				Msg("Monthly report failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("generate monthly reports: %d of %d users failed", failed, len(users))
	}
	return nil
}

func (r *Runner) reportForUser(ctx context.Context, user *domain.User, from, to time.Time, monthLabel string) error {
	summary, err := r.store.MonthlySummary(ctx, user.ID, from, to)
	if err != nil {
		return fmt.Errorf("month summary: %w", err)
	}
	if summary.Count == 0 {
		return nil
	}

	var insights []string
	if r.insights != nil {
		insights = r.insights.GenerateInsights(ctx, scan.ReportStats{
			Month:         monthLabel,
			TotalIncome:   summary.TotalIncome,
			TotalExpenses: summary.TotalExpenses,
			ByCategory:    summary.ByCategory,
		})
	}

	subject, html, err := mail.RenderMonthlyReport(mail.MonthlyReportData{
		UserName:      user.Name,
		Month:         monthLabel,
		TotalIncome:   summary.TotalIncome,
		TotalExpenses: summary.TotalExpenses,
		ByCategory:    summary.ByCategory,
		Insights:      insights,
	})
	if err != nil {
		return err
	}
	if err := r.mailer.Send(ctx, user.Email, subject, html); err != nil {
		return fmt.Errorf("send monthly report: %w", err)
	}
	r.log.Info().
		Str("user_id", user.ID.String()).
		Str("month", monthLabel).
		Msg("Monthly report sent")
	return nil
}
