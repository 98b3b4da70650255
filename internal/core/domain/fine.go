package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// calendarDate drops the time of day. Lateness is counted on UTC dates.
func calendarDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysLate returns the number of whole calendar days ref is past due, or 0.
// A loan due at any time on day D and evaluated on day D is not late.
func DaysLate(due, ref time.Time) int {
	days := int(calendarDate(ref).Sub(calendarDate(due)) / day)
	if days < 0 {
		return 0
	}
	return days
}

// OverdueCutoff returns the start of ref's UTC day. An open loan is overdue
// at ref exactly when it was due before the cutoff.
func OverdueCutoff(ref time.Time) time.Time {
	return calendarDate(ref)
}

// ComputeFine returns rate * DaysLate(due, ref). It has no side effects;
// storing the result is up to the caller.
func ComputeFine(due, ref time.Time, rate decimal.Decimal) decimal.Decimal {
	days := DaysLate(due, ref)
	if days == 0 {
		return decimal.Zero
	}
	return rate.Mul(decimal.NewFromInt(int64(days)))
}

// RefreshFine returns the loan with its fine evaluated at ref. Returned
// loans keep the fine fixed at return time. The bool is true when the
// value differs from the stored one.
func RefreshFine(l LoanSnapshot, ref time.Time, rate decimal.Decimal) (LoanSnapshot, bool) {
	if !l.Open() {
		return l, false
	}
	fine := ComputeFine(l.DueAt, ref, rate)
	if fine.Equal(l.Fine) {
		return l, false
	}
	l.Fine = fine
	return l, true
}
