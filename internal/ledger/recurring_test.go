package ledger

import (
	"testing"
	"time"

	"github.com/welthhq/welth/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name     string
		from     time.Time
		interval domain.RecurringInterval
		want     time.Time
	}{
		{"daily", date(2024, time.March, 15), domain.RecurringDaily, date(2024, time.March, 16)},
		{"daily across month end", date(2024, time.January, 31), domain.RecurringDaily, date(2024, time.February, 1)},
		{"weekly", date(2024, time.March, 15), domain.RecurringWeekly, date(2024, time.March, 22)},
		{"weekly across year end", date(2023, time.December, 28), domain.RecurringWeekly, date(2024, time.January, 4)},
		{"monthly", date(2024, time.March, 15), domain.RecurringMonthly, date(2024, time.April, 15)},
		// Month arithmetic clamps: Jan 31 lands on the last day of February.
		{"monthly clamps in leap year", date(2024, time.January, 31), domain.RecurringMonthly, date(2024, time.February, 29)},
		{"monthly clamps in non-leap year", date(2025, time.January, 31), domain.RecurringMonthly, date(2025, time.February, 28)},
		{"monthly clamp 31 to 30", date(2024, time.March, 31), domain.RecurringMonthly, date(2024, time.April, 30)},
		{"monthly december wraps year", date(2024, time.December, 31), domain.RecurringMonthly, date(2025, time.January, 31)},
		{"yearly", date(2024, time.March, 15), domain.RecurringYearly, date(2025, time.March, 15)},
		{"yearly clamps feb 29", date(2024, time.February, 29), domain.RecurringYearly, date(2025, time.February, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(tt.from, tt.interval)
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence(%v, %s) = %v, want %v", tt.from, tt.interval, got, tt.want)
			}
		})
	}
}

func TestNextOccurrencePreservesTimeOfDay(t *testing.T) {
	from := time.Date(2024, time.January, 31, 9, 30, 0, 0, time.UTC)
	got := NextOccurrence(from, domain.RecurringMonthly)
	want := time.Date(2024, time.February, 29, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextOccurrence = %v, want %v", got, want)
	}
}

func TestNextOccurrenceUnknownIntervalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown interval")
		}
	}()
	NextOccurrence(date(2024, time.March, 15), domain.RecurringInterval("FORTNIGHTLY"))
}

func TestIsDue(t *testing.T) {
	now := date(2024, time.June, 10)
	past := date(2024, time.June, 1)
	future := date(2024, time.June, 20)

	tests := []struct {
		name          string
		isRecurring   bool
		lastProcessed *time.Time
		next          *time.Time
		want          bool
	}{
		{"never processed is always due", true, nil, nil, true},
		{"next date in the past", true, &past, &past, true},
		{"next date equal to now is due", true, &past, &now, true},
		{"next date in the future", true, &past, &future, false},
		{"not recurring is never due", false, nil, &past, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &domain.Transaction{
				IsRecurring:   tt.isRecurring,
				LastProcessed: tt.lastProcessed,
				NextRecurringDate: tt.next,
			}
			if got := IsDue(tr, now); got != tt.want {
				t.Errorf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}
