package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role represents an account role. The set is closed: member, staff, admin.
type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// ParseRole converts a stored or token role string into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleMember, RoleStaff, RoleAdmin:
		return r, nil
	default:
		return "", ErrUnknownRole
	}
}

// String implements fmt.Stringer
func (r Role) String() string {
	return string(r)
}

// Capability is an operation class that a role may be allowed to perform
type Capability int

const (
	CapBorrow Capability = iota + 1
	CapManageCirculation
	CapManageCatalog
	CapManageMembers
	CapManagePolicy
	CapViewReports
	CapManageAccounts
)

var capabilityNames = map[Capability]string{
	CapBorrow:            "borrow",
	CapManageCirculation: "manage_circulation",
	CapManageCatalog:     "manage_catalog",
	CapManageMembers:     "manage_members",
	CapManagePolicy:      "manage_policy",
	CapViewReports:       "view_reports",
	CapManageAccounts:    "manage_accounts",
}

func (c Capability) String() string {
	if name, ok := capabilityNames[c]; ok {
		return name
	}
	return "unknown"
}

var staffCapabilities = []Capability{
	CapBorrow,
	CapManageCirculation,
	CapManageCatalog,
	CapManageMembers,
	CapManagePolicy,
	CapViewReports,
}

// Can reports whether the role grants the capability
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin:
		return c >= CapBorrow && c <= CapManageAccounts
	case RoleStaff:
		for _, sc := range staffCapabilities {
			if sc == c {
				return true
			}
		}
		return false
	case RoleMember:
		return c == CapBorrow
	default:
		return false
	}
}

// Actor is the authenticated caller of an operation.
// MemberID is zero when the account has no linked member record.
type Actor struct {
	UserID   uint
	MemberID uint
	Username string
	Role     Role
}

// Can reports whether the actor's role grants the capability
func (a Actor) Can(c Capability) bool {
	return a.Role.Can(c)
}

// Owns reports whether the member record belongs to the actor
func (a Actor) Owns(memberID uint) bool {
	return a.MemberID != 0 && a.MemberID == memberID
}

// Loan statuses
const (
	LoanStatusActive   = "active"
	LoanStatusReturned = "returned"
)

// Reservation statuses
const (
	ReservationStatusActive    = "active"
	ReservationStatusFulfilled = "fulfilled"
	ReservationStatusCancelled = "cancelled"
)

// Member statuses
const (
	MemberStatusActive   = "Active"
	MemberStatusInactive = "Inactive"
)

// LoanSnapshot is the engine's view of a loan
type LoanSnapshot struct {
	ID          uint
	ItemID      uint
	DueAt       time.Time
	ReturnedAt  *time.Time
	Renewals    int
	Fine        decimal.Decimal
	FineSettled bool
}

// Open reports whether the loan has not been returned yet
func (l LoanSnapshot) Open() bool {
	return l.ReturnedAt == nil
}

// Overdue reports whether an open loan is past its due date at ref,
// using calendar-day granularity
func (l LoanSnapshot) Overdue(ref time.Time) bool {
	return l.Open() && DaysLate(l.DueAt, ref) > 0
}
