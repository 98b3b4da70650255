package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrDuplicateEntry     = errors.New("duplicate entry")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownRole        = errors.New("unknown role")
)

// Policy configuration errors
var (
	ErrInvalidPolicy = errors.New("invalid policy configuration")
)

// Circulation rejections
var (
	ErrItemUnavailable      = errors.New("item is not available")
	ErrUnpaidFines          = errors.New("member has unpaid fines")
	ErrOverdueLoans         = errors.New("member has overdue loans")
	ErrLoanLimitReached     = errors.New("loan limit reached")
	ErrAlreadyBorrowed      = errors.New("member already holds this item")
	ErrLoanNotOpen          = errors.New("loan is already returned")
	ErrMaxRenewalsReached   = errors.New("maximum number of renewals reached")
	ErrReservationExists    = errors.New("an active reservation already exists for this item")
	ErrReservationNotActive = errors.New("reservation is not active")
	ErrLoanStillOpen        = errors.New("loan is still open")
	ErrNoFineDue            = errors.New("no fine is due on this loan")
	ErrFineAlreadySettled   = errors.New("fine already settled")
)

// PolicyError is a user-visible rejection of an engine operation.
// Code is a stable machine-readable key; Reason is the human message.
type PolicyError struct {
	Err    error
	Code   string
	Reason string
}

func (e *PolicyError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return e.Err.Error()
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

var rejectionCodes = map[error]string{
	ErrItemUnavailable:      "item_unavailable",
	ErrUnpaidFines:          "unpaid_fines",
	ErrOverdueLoans:         "overdue_loans",
	ErrLoanLimitReached:     "loan_limit_reached",
	ErrAlreadyBorrowed:      "already_borrowed",
	ErrLoanNotOpen:          "loan_not_open",
	ErrMaxRenewalsReached:   "max_renewals_reached",
	ErrReservationExists:    "reservation_exists",
	ErrReservationNotActive: "reservation_not_active",
	ErrLoanStillOpen:        "loan_still_open",
	ErrNoFineDue:            "no_fine_due",
	ErrFineAlreadySettled:   "fine_already_settled",
}

// Reject builds a PolicyError for one of the circulation sentinels
func Reject(err error, format string, args ...interface{}) error {
	code, ok := rejectionCodes[err]
	if !ok {
		code = "rejected"
	}
	reason := err.Error()
	if format != "" {
		reason = fmt.Sprintf(format, args...)
	}
	return &PolicyError{Err: err, Code: code, Reason: reason}
}

// RejectionCode returns the code of a PolicyError, or "" for other errors
func RejectionCode(err error) string {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
