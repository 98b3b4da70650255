package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 3, p.MaxLoans)
	assert.Equal(t, 14, p.LoanDurationDays)
	assert.Equal(t, 2, p.MaxRenewals)
	assert.Equal(t, 7, p.RenewalExtensionDays)
	assert.Equal(t, "0.50", p.DailyFineRate.StringFixed(2))
	assert.NoError(t, p.Validate())
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"negative max loans", func(p *Policy) { p.MaxLoans = -1 }},
		{"zero duration", func(p *Policy) { p.LoanDurationDays = 0 }},
		{"negative renewals", func(p *Policy) { p.MaxRenewals = -2 }},
		{"negative extension", func(p *Policy) { p.RenewalExtensionDays = -7 }},
		{"negative rate", func(p *Policy) { p.DailyFineRate = decimal.NewFromFloat(-0.1) }},
		{"sub-cent rate", func(p *Policy) { p.DailyFineRate = decimal.RequireFromString("0.125") }},
		{"rate too large", func(p *Policy) { p.DailyFineRate = decimal.RequireFromString("1000000") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
		})
	}
}

func TestPolicy_ValidateAcceptsCents(t *testing.T) {
	for _, rate := range []string{"0", "0.5", "0.25", "0.500", "12", "999999.99"} {
		p := DefaultPolicy()
		p.DailyFineRate = decimal.RequireFromString(rate)
		assert.NoError(t, p.Validate(), rate)
	}
}

func TestPolicy_Dates(t *testing.T) {
	p := DefaultPolicy()
	start := time.Date(2024, 2, 20, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC), p.DueDate(start))
	assert.Equal(t, time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC), p.ExtendDue(p.DueDate(start)))
}
