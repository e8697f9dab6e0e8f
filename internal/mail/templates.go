package mail

import (
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// BudgetAlertData fills the budget-alert template.
type BudgetAlertData struct {
	UserName      string
	UsagePercent  float64
	BudgetAmount  decimal.Decimal
	TotalExpenses decimal.Decimal
}

// Remaining is the unspent part of the budget.
func (d BudgetAlertData) Remaining() decimal.Decimal {
	return d.BudgetAmount.Sub(d.TotalExpenses)
}

// MonthlyReportData fills the monthly-report template.
type MonthlyReportData struct {
	UserName      string
	Month         string
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	ByCategory    map[string]decimal.Decimal
	Insights      []string
}

// Net is income minus expenses for the month.
func (d MonthlyReportData) Net() decimal.Decimal {
	return d.TotalIncome.Sub(d.TotalExpenses)
}

// Categories returns the expense breakdown in stable alphabetical order
// for rendering.
func (d MonthlyReportData) Categories() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(d.ByCategory))
	for name, amount := range d.ByCategory {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CategoryAmount is one row of the expense breakdown.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

var budgetAlertTmpl = template.Must(template.New("budget-alert").Parse(`<html>
<body style="background-color:#dcebfa;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;padding:20px 0;margin:0;">
  <div style="background-color:#ffffff;margin:0 auto;padding:20px;border-radius:8px;max-width:600px;">
    <h1 style="font-size:24px;color:#1f2937;text-align:center;">Budget Alert</h1>
    <p style="font-size:16px;color:#4b5563;">Hello {{.UserName}},</p>
    <p style="font-size:16px;color:#4b5563;">You&rsquo;ve used {{printf "%.2f" .UsagePercent}}% of your monthly budget.</p>
    <div style="margin:16px 0;">
      <p style="color:#6b7280;margin:4px 0;">Budget Amount</p>
      <p style="font-size:20px;color:#1f2937;margin:4px 0;">${{.BudgetAmount.StringFixed 2}}</p>
      <p style="color:#6b7280;margin:4px 0;">Spent So Far</p>
      <p style="font-size:20px;color:#1f2937;margin:4px 0;">${{.TotalExpenses.StringFixed 2}}</p>
      <p style="color:#6b7280;margin:4px 0;">Remaining</p>
      <p style="font-size:20px;color:#1f2937;margin:4px 0;">${{.Remaining.StringFixed 2}}</p>
    </div>
  </div>
</body>
</html>`))

var monthlyReportTmpl = template.Must(template.New("monthly-report").Parse(`<html>
<body style="background-color:#dcebfa;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,sans-serif;padding:20px 0;margin:0;">
  <div style="background-color:#ffffff;margin:0 auto;padding:20px;border-radius:8px;max-width:600px;">
    <h1 style="font-size:24px;color:#1f2937;text-align:center;">Monthly Financial Report</h1>
    <p style="font-size:16px;color:#4b5563;">Hello {{.UserName}},</p>
    <p style="font-size:16px;color:#4b5563;">Here&rsquo;s your financial summary for {{.Month}}:</p>
    <div style="margin:16px 0;">
      <p style="color:#6b7280;margin:4px 0;">Total Income</p>
      <p style="font-size:20px;color:#1f2937;margin:4px 0;">${{.TotalIncome.StringFixed 2}}</p>
      <p style="color:#6b7280;margin:4px 0;">Total Expenses</p>
      <p style="font-size:20px;color:#1f2937;margin:4px 0;">${{.TotalExpenses.StringFixed 2}}</p>
      <p style="color:#6b7280;margin:4px 0;">Net</p>
      <p style="font-size:20px;color:#1f2937;margin:4px 0;">${{.Net.StringFixed 2}}</p>
    </div>
    {{if .ByCategory}}
    <h2 style="font-size:18px;color:#1f2937;">Expenses by Category</h2>
    {{range .Categories}}
    <p style="color:#4b5563;margin:4px 0;">{{.Name}}: ${{.Amount.StringFixed 2}}</p>
    {{end}}
    {{end}}
    {{if .Insights}}
    <h2 style="font-size:18px;color:#1f2937;">Welth Insights</h2>
    {{range .Insights}}
    <p style="color:#4b5563;margin:4px 0;">&bull; {{.}}</p>
    {{end}}
    {{end}}
    <p style="font-size:14px;color:#6b7280;">Thank you for using Welth. Keep tracking your finances for better financial health!</p>
  </div>
</body>
</html>`))

// RenderBudgetAlert renders the budget-alert email.
func RenderBudgetAlert(data BudgetAlertData) (subject, html string, err error) {
	var b strings.Builder
	if err := budgetAlertTmpl.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render budget alert: %w", err)
	}
	return "Budget Alert for Default Account", b.String(), nil
}

// RenderMonthlyReport renders the monthly-report email.
func RenderMonthlyReport(data MonthlyReportData) (subject, html string, err error) {
	var b strings.Builder
	if err := monthlyReportTmpl.Execute(&b, data); err != nil {
		return "", "", fmt.Errorf("render monthly report: %w", err)
	}
	return fmt.Sprintf("Your Monthly Financial Report - %s", data.Month), b.String(), nil
}
