package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

// ReportStats is the aggregate a monthly report is generated from.
type ReportStats struct {
	Month         string
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	ByCategory    map[string]decimal.Decimal
}

// InsightGenerator produces short spending observations for the monthly
// report email.
type InsightGenerator interface {
	GenerateInsights(ctx context.Context, stats ReportStats) []string
}

// defaultInsights is the fallback when the model is unavailable or its
// output cannot be decoded. The report must never fail because of the
// generative collaborator.
var defaultInsights = []string{
	"Your highest expense category this month might need attention.",
	"Consider setting up a budget for better financial management.",
	"Track your recurring expenses to identify potential savings.",
}

var _ InsightGenerator = (*GeminiScanner)(nil)

// GenerateInsights asks Gemini for three observations about the month's
// spending. Any failure degrades to the generic fallback set.
func (s *GeminiScanner) GenerateInsights(ctx context.Context, stats ReportStats) []string {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return defaultInsights
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: insightsPrompt(stats)}},
		},
	}
	resp, err := client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return defaultInsights
	}

	return decodeInsightsJSON(resp.Text())
}

func insightsPrompt(stats ReportStats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this financial data and provide 3 concise, actionable insights.\n")
	fmt.Fprintf(&b, "Focus on spending patterns and practical advice.\n")
	fmt.Fprintf(&b, "Keep it friendly and conversational.\n\n")
	fmt.Fprintf(&b, "Financial data for %s:\n", stats.Month)
	fmt.Fprintf(&b, "- Total income: $%s\n", stats.TotalIncome.StringFixed(2))
	fmt.Fprintf(&b, "- Total expenses: $%s\n", stats.TotalExpenses.StringFixed(2))
	fmt.Fprintf(&b, "- Net: $%s\n", stats.TotalIncome.Sub(stats.TotalExpenses).StringFixed(2))

	categories := make([]string, 0, len(stats.ByCategory))
	for c := range stats.ByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	b.WriteString("- Expense categories: ")
	for i, c := range categories {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: $%s", c, stats.ByCategory[c].StringFixed(2))
	}
	b.WriteString("\n\nFormat the response as a JSON array of 3 strings, like:\n")
	b.WriteString(`["insight 1", "insight 2", "insight 3"]` + "\n")
	b.WriteString("Return ONLY raw JSON. Do NOT wrap the response in code fences.")
	return b.String()
}

// decodeInsightsJSON parses the model output; anything unusable degrades
// to the fallback set.
func decodeInsightsJSON(raw string) []string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}

	var insights []string
	if err := json.Unmarshal([]byte(s), &insights); err != nil {
		return defaultInsights
	}
	out := insights[:0]
	for _, in := range insights {
		if strings.TrimSpace(in) != "" {
			out = append(out, in)
		}
	}
	if len(out) == 0 {
		return defaultInsights
	}
	return out
}
