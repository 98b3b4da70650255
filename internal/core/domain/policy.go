package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Default lending rules applied when no policy record exists yet
const (
	DefaultMaxLoans             = 3
	DefaultLoanDurationDays     = 14
	DefaultMaxRenewals          = 2
	DefaultRenewalExtensionDays = 7
)

// DefaultDailyFineRate is 0.50 currency units per late day
var DefaultDailyFineRate = decimal.NewFromFloat(0.5)

// Policy holds the library-wide lending rules. It is loaded once per
// operation and passed explicitly to every decision.
type Policy struct {
	MaxLoans             int             `json:"max_loans"`
	LoanDurationDays     int             `json:"loan_duration_days"`
	MaxRenewals          int             `json:"max_renewals"`
	RenewalExtensionDays int             `json:"renewal_extension_days"`
	DailyFineRate        decimal.Decimal `json:"daily_fine_rate"`
}

// maxDailyFineRate bounds the rate to what the decimal(8,2) column holds
var maxDailyFineRate = decimal.NewFromInt(1000000)

// DefaultPolicy returns the built-in lending rules
func DefaultPolicy() Policy {
	return Policy{
		MaxLoans:             DefaultMaxLoans,
		LoanDurationDays:     DefaultLoanDurationDays,
		MaxRenewals:          DefaultMaxRenewals,
		RenewalExtensionDays: DefaultRenewalExtensionDays,
		DailyFineRate:        DefaultDailyFineRate,
	}
}

// Validate checks that the rules are usable
func (p Policy) Validate() error {
	switch {
	case p.MaxLoans < 0:
		return fmt.Errorf("%w: max loans must not be negative", ErrInvalidPolicy)
	case p.LoanDurationDays < 1:
		return fmt.Errorf("%w: loan duration must be at least one day", ErrInvalidPolicy)
	case p.MaxRenewals < 0:
		return fmt.Errorf("%w: max renewals must not be negative", ErrInvalidPolicy)
	case p.RenewalExtensionDays < 0:
		return fmt.Errorf("%w: renewal extension must not be negative", ErrInvalidPolicy)
	case p.DailyFineRate.IsNegative():
		return fmt.Errorf("%w: daily fine rate must not be negative", ErrInvalidPolicy)
	case !p.DailyFineRate.Equal(p.DailyFineRate.Round(2)):
		return fmt.Errorf("%w: daily fine rate must have at most two decimal places", ErrInvalidPolicy)
	case p.DailyFineRate.GreaterThanOrEqual(maxDailyFineRate):
		return fmt.Errorf("%w: daily fine rate must be below %s", ErrInvalidPolicy, maxDailyFineRate)
	}
	return nil
}

// DueDate returns the due date of a loan starting at from
func (p Policy) DueDate(from time.Time) time.Time {
	return from.AddDate(0, 0, p.LoanDurationDays)
}

// ExtendDue returns the due date after one renewal
func (p Policy) ExtendDue(due time.Time) time.Time {
	return due.AddDate(0, 0, p.RenewalExtensionDays)
}
