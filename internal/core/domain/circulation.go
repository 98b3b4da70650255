package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ItemState is the part of a catalog item the engine decides on
type ItemState struct {
	ID        uint
	Title     string
	Available bool
}

// Standing is a member's loan record evaluated at a point in time
type Standing struct {
	At    time.Time
	Loans []LoanSnapshot
}

// NewStanding refreshes the fines of all open loans at `at` and returns the
// standing together with the loans whose fine changed.
func NewStanding(loans []LoanSnapshot, at time.Time, rate decimal.Decimal) (Standing, []LoanSnapshot) {
	refreshed := make([]LoanSnapshot, 0, len(loans))
	var changed []LoanSnapshot
	for _, l := range loans {
		l, diff := RefreshFine(l, at, rate)
		if diff {
			changed = append(changed, l)
		}
		refreshed = append(refreshed, l)
	}
	return Standing{At: at, Loans: refreshed}, changed
}

// UnpaidFines sums the fines not yet settled
func (s Standing) UnpaidFines() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.Loans {
		if !l.FineSettled {
			total = total.Add(l.Fine)
		}
	}
	return total
}

// OpenLoans counts loans not yet returned
func (s Standing) OpenLoans() int {
	n := 0
	for _, l := range s.Loans {
		if l.Open() {
			n++
		}
	}
	return n
}

// OverdueLoans counts open loans past their due date
func (s Standing) OverdueLoans() int {
	n := 0
	for _, l := range s.Loans {
		if l.Overdue(s.At) {
			n++
		}
	}
	return n
}

// Holds reports whether the member has an open loan for the item
func (s Standing) Holds(itemID uint) bool {
	for _, l := range s.Loans {
		if l.Open() && l.ItemID == itemID {
			return true
		}
	}
	return false
}

// CheckStanding rejects members with unpaid fines or open overdue loans
func CheckStanding(s Standing) error {
	if fines := s.UnpaidFines(); fines.IsPositive() {
		return Reject(ErrUnpaidFines, "member has unpaid fines of %s", fines.StringFixed(2))
	}
	if n := s.OverdueLoans(); n > 0 {
		return Reject(ErrOverdueLoans, "member has %d overdue loan(s)", n)
	}
	return nil
}

// CheckLoanLimit rejects members already at the policy's loan limit
func CheckLoanLimit(p Policy, s Standing) error {
	if open := s.OpenLoans(); open >= p.MaxLoans {
		return Reject(ErrLoanLimitReached, "loan limit reached (%d of %d)", open, p.MaxLoans)
	}
	return nil
}

// CheckBorrow runs the borrow eligibility rules in order:
// availability, standing, loan limit, duplicate loan.
func CheckBorrow(p Policy, item ItemState, s Standing) error {
	if !item.Available {
		return Reject(ErrItemUnavailable, "")
	}
	if err := CheckStanding(s); err != nil {
		return err
	}
	if err := CheckLoanLimit(p, s); err != nil {
		return err
	}
	if s.Holds(item.ID) {
		return Reject(ErrAlreadyBorrowed, "")
	}
	return nil
}

// CheckFulfillment decides whether an active reservation can become a loan
func CheckFulfillment(p Policy, reservationStatus string, item ItemState, s Standing) error {
	if reservationStatus != ReservationStatusActive {
		return Reject(ErrReservationNotActive, "")
	}
	if !item.Available {
		return Reject(ErrItemUnavailable, "")
	}
	if err := CheckStanding(s); err != nil {
		return err
	}
	return CheckLoanLimit(p, s)
}

// CheckRenewal decides whether a loan may be extended once more
func CheckRenewal(p Policy, l LoanSnapshot) error {
	if !l.Open() {
		return Reject(ErrLoanNotOpen, "")
	}
	if l.Renewals >= p.MaxRenewals {
		return Reject(ErrMaxRenewalsReached, "maximum number of renewals reached (%d)", p.MaxRenewals)
	}
	return nil
}

// CheckReturn decides whether a loan can be closed
func CheckReturn(l LoanSnapshot) error {
	if !l.Open() {
		return Reject(ErrLoanNotOpen, "")
	}
	return nil
}

// CheckSettlement decides whether a loan's fine can be marked as paid
func CheckSettlement(l LoanSnapshot) error {
	switch {
	case l.Open():
		return Reject(ErrLoanStillOpen, "fine is still accruing on an open loan")
	case l.FineSettled:
		return Reject(ErrFineAlreadySettled, "")
	case !l.Fine.IsPositive():
		return Reject(ErrNoFineDue, "")
	}
	return nil
}
