package ledger

import (
	"fmt"
	"time"

	"github.com/welthhq/welth/internal/domain"
)

// NextOccurrence returns the next occurrence of a recurring transaction
// after from: +1 day, +7 days, +1 calendar month or +1 calendar year.
//
// Month and year arithmetic clamps to the last valid day of the target
// month, so Jan 31 + MONTHLY is Feb 29 in a leap year and Feb 28 otherwise.
// The interval is validated against the closed enum before it reaches this
// function; an unknown value is a programming error.
func NextOccurrence(from time.Time, interval domain.RecurringInterval) time.Time {
	switch interval {
	case domain.RecurringDaily:
		return from.AddDate(0, 0, 1)
	case domain.RecurringWeekly:
		return from.AddDate(0, 0, 7)
	case domain.RecurringMonthly:
		return addMonthsClamped(from, 1)
	case domain.RecurringYearly:
		return addMonthsClamped(from, 12)
	default:
		panic(fmt.Sprintf("ledger: unknown recurring interval %q", interval))
	}
}

// addMonthsClamped adds months without time.AddDate's day roll-over.
func addMonthsClamped(t time.Time, months int) time.Time {
	target := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).
		AddDate(0, months, 0)
	day := t.Day()
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsDue reports whether a recurring template is eligible for posting at
// now: it has never been processed, or its next scheduled date has arrived
// (boundary inclusive).
func IsDue(t *domain.Transaction, now time.Time) bool {
	if !t.IsRecurring {
		return false
	}
	if t.LastProcessed == nil {
		return true
	}
	return t.NextRecurringDate != nil && !t.NextRecurringDate.After(now)
}
