package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var halfUnit = decimal.RequireFromString("0.5")

func TestDaysLate(t *testing.T) {
	due := time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ref  time.Time
		want int
	}{
		{"before due", due.Add(-48 * time.Hour), 0},
		{"same instant", due, 0},
		{"later same day", time.Date(2024, 3, 10, 23, 59, 59, 0, time.UTC), 0},
		{"early next day", time.Date(2024, 3, 11, 0, 0, 1, 0, time.UTC), 1},
		{"two days later", time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC), 2},
		{"across month end", time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), 22},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysLate(due, tt.ref))
		})
	}
}

func TestDaysLate_UsesUTCCalendarDate(t *testing.T) {
	zone := time.FixedZone("UTC+7", 7*3600)
	// 2024-03-10 23:00 UTC is already 2024-03-11 06:00 in UTC+7
	due := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	ref := time.Date(2024, 3, 11, 6, 0, 0, 0, zone)

	assert.Equal(t, 0, DaysLate(due, ref))
}

func TestComputeFine(t *testing.T) {
	borrowed := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	due := DefaultPolicy().DueDate(borrowed)

	t.Run("zero until due", func(t *testing.T) {
		assert.True(t, ComputeFine(due, borrowed.AddDate(0, 0, 14), halfUnit).IsZero())
	})

	t.Run("sixteen days after borrowing", func(t *testing.T) {
		fine := ComputeFine(due, borrowed.AddDate(0, 0, 16), halfUnit)
		assert.True(t, fine.Equal(decimal.RequireFromString("1.0")), "got %s", fine)
	})

	t.Run("zero rate", func(t *testing.T) {
		assert.True(t, ComputeFine(due, due.AddDate(0, 0, 30), decimal.Zero).IsZero())
	})
}

func TestRefreshFine(t *testing.T) {
	due := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := due.AddDate(0, 0, 3)

	t.Run("open loan picks up accrued fine", func(t *testing.T) {
		loan := LoanSnapshot{ID: 1, DueAt: due, Fine: decimal.Zero}
		refreshed, changed := RefreshFine(loan, now, halfUnit)
		assert.True(t, changed)
		assert.Equal(t, "1.50", refreshed.Fine.StringFixed(2))
	})

	t.Run("idempotent at the same instant", func(t *testing.T) {
		loan := LoanSnapshot{ID: 1, DueAt: due, Fine: decimal.Zero}
		first, _ := RefreshFine(loan, now, halfUnit)
		second, changed := RefreshFine(first, now, halfUnit)
		assert.False(t, changed)
		assert.True(t, first.Fine.Equal(second.Fine))
	})

	t.Run("returned loan keeps its fine", func(t *testing.T) {
		returned := due.AddDate(0, 0, 1)
		loan := LoanSnapshot{ID: 1, DueAt: due, ReturnedAt: &returned, Fine: halfUnit}
		refreshed, changed := RefreshFine(loan, now.AddDate(0, 1, 0), halfUnit)
		assert.False(t, changed)
		assert.True(t, refreshed.Fine.Equal(halfUnit))
	})
}

func TestComputeFine_Properties(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		due := base.Add(time.Duration(rapid.Int64Range(0, int64(400*day)).Draw(t, "due")))
		a := time.Duration(rapid.Int64Range(int64(-30*day), int64(90*day)).Draw(t, "a"))
		b := a + time.Duration(rapid.Int64Range(0, int64(90*day)).Draw(t, "delta"))
		rate := decimal.New(rapid.Int64Range(0, 500).Draw(t, "cents"), -2)

		fa := ComputeFine(due, due.Add(a), rate)
		fb := ComputeFine(due, due.Add(b), rate)

		if fb.LessThan(fa) {
			t.Fatalf("fine decreased: %s at %v then %s at %v", fa, a, fb, b)
		}
		if a <= 0 && !fa.IsZero() {
			t.Fatalf("fine %s before due date (offset %v)", fa, a)
		}
		if fa.IsNegative() {
			t.Fatalf("negative fine %s", fa)
		}
	})
}

func TestRefreshFine_StableUnderRepetition(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	rapid.Check(t, func(t *rapid.T) {
		due := base.Add(time.Duration(rapid.Int64Range(0, int64(100*day)).Draw(t, "due")))
		ref := due.Add(time.Duration(rapid.Int64Range(int64(-10*day), int64(100*day)).Draw(t, "ref")))
		repeats := rapid.IntRange(1, 5).Draw(t, "repeats")

		loan := LoanSnapshot{DueAt: due, Fine: decimal.Zero}
		first, _ := RefreshFine(loan, ref, halfUnit)
		current := first
		for i := 0; i < repeats; i++ {
			current, _ = RefreshFine(current, ref, halfUnit)
		}
		if !current.Fine.Equal(first.Fine) {
			t.Fatalf("fine drifted from %s to %s", first.Fine, current.Fine)
		}
	})
}
