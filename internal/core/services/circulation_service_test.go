package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"
	"school-library/internal/testing/testdb"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	tdb   *testdb.TestDB
	clock *fakeClock
	pol   *PolicyService
	circ  *CirculationService
	res   *ReservationService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	tdb := testdb.New(t)
	clock := newClock()

	pol := NewPolicyService(tdb.Repos.Policy)
	circ := NewCirculationService(tdb.Repos, pol)
	circ.SetClock(clock.Now)
	res := NewReservationService(tdb.Repos, pol)
	res.SetClock(clock.Now)

	return &engine{tdb: tdb, clock: clock, pol: pol, circ: circ, res: res}
}

func (e *engine) countLoans(t *testing.T, memberID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.tdb.DB.Model(&models.Loan{}).Where("member_id = ?", memberID).Count(&n).Error)
	return n
}

func TestBorrow_CreatesLoanAndClaimsItem(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)

	loan, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)

	assert.Equal(t, domain.LoanStatusActive, loan.Status)
	assert.Equal(t, 0, loan.Renewals)
	assert.True(t, loan.Fine.IsZero())
	assert.WithinDuration(t, e.clock.Now().AddDate(0, 0, 14), e.tdb.Reload(t, loan.ID).DueAt, time.Second)
	assert.False(t, e.tdb.Available(t, x.ID))
}

func TestMemberLoans_RecomputesFineOnRead(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)

	loan, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)

	e.clock.AdvanceDays(16)

	t.Run("read without persisting", func(t *testing.T) {
		loans, summary, err := e.circ.MemberLoans(ctx, memberActor(m.ID), m.ID, false)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, "1.00", loans[0].Fine.StringFixed(2))
		assert.Equal(t, "1.00", summary.UnpaidFines.StringFixed(2))
		assert.Equal(t, 1, summary.OverdueLoans)
		assert.True(t, e.tdb.Reload(t, loan.ID).Fine.IsZero())
	})

	t.Run("read and persist", func(t *testing.T) {
		_, _, err := e.circ.MemberLoans(ctx, memberActor(m.ID), m.ID, true)
		require.NoError(t, err)
		assert.True(t, e.tdb.Reload(t, loan.ID).Fine.Equal(decimal.RequireFromString("1.0")))
	})
}

func TestBorrow_RejectsMemberWithUnpaidFines(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)
	y := e.tdb.Item(t, "Emma", true)

	_, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)
	e.clock.AdvanceDays(16)

	_, err = e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: y.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnpaidFines)
	assert.Contains(t, err.Error(), "unpaid fines")
	assert.Equal(t, int64(1), e.countLoans(t, m.ID))
	assert.True(t, e.tdb.Available(t, y.ID))
}

func TestBorrow_OverdueWithoutFine(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	zero := decimal.Zero
	_, err := e.pol.Update(ctx, staffActor, &UpdatePolicyInput{DailyFineRate: &zero})
	require.NoError(t, err)

	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)
	y := e.tdb.Item(t, "Emma", true)
	_, err = e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)
	e.clock.AdvanceDays(15)

	_, err = e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: y.ID})
	assert.ErrorIs(t, err, domain.ErrOverdueLoans)
}

func TestBorrow_Rejections(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	other := e.tdb.Member(t, "Alan", "Turing")

	t.Run("unknown item", func(t *testing.T) {
		_, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: 999})
		assert.ErrorIs(t, err, ErrItemNotFound)
	})

	t.Run("unavailable item", func(t *testing.T) {
		item := e.tdb.Item(t, "Gone", false)
		_, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: item.ID})
		assert.ErrorIs(t, err, domain.ErrItemUnavailable)
		assert.Equal(t, "item_unavailable", domain.RejectionCode(err))
	})

	t.Run("account without member", func(t *testing.T) {
		item := e.tdb.Item(t, "Orphan", true)
		_, err := e.circ.Borrow(ctx, domain.Actor{UserID: 9, Role: domain.RoleMember}, &BorrowInput{ItemID: item.ID})
		assert.ErrorIs(t, err, ErrNoLinkedMember)
	})

	t.Run("member borrowing for someone else", func(t *testing.T) {
		item := e.tdb.Item(t, "Proxy", true)
		_, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: item.ID, MemberID: other.ID})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("member overriding due date", func(t *testing.T) {
		item := e.tdb.Item(t, "Override", true)
		due := e.clock.Now().AddDate(0, 1, 0)
		_, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: item.ID, DueAt: &due})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("loan limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			item := e.tdb.Item(t, "Limit", true)
			_, err := e.circ.Borrow(ctx, memberActor(other.ID), &BorrowInput{ItemID: item.ID})
			require.NoError(t, err)
		}
		fourth := e.tdb.Item(t, "Fourth", true)
		_, err := e.circ.Borrow(ctx, memberActor(other.ID), &BorrowInput{ItemID: fourth.ID})
		assert.ErrorIs(t, err, domain.ErrLoanLimitReached)
		assert.True(t, e.tdb.Available(t, fourth.ID))
	})
}

func TestBorrow_StaffOnBehalfWithDueDate(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)

	due := e.clock.Now().AddDate(0, 0, 3)
	loan, err := e.circ.Borrow(ctx, staffActor, &BorrowInput{ItemID: x.ID, MemberID: m.ID, DueAt: &due})
	require.NoError(t, err)
	assert.Equal(t, m.ID, loan.MemberID)
	assert.WithinDuration(t, due, e.tdb.Reload(t, loan.ID).DueAt, time.Second)

	past := e.clock.Now().Add(-time.Hour)
	y := e.tdb.Item(t, "Emma", true)
	_, err = e.circ.Borrow(ctx, staffActor, &BorrowInput{ItemID: y.ID, MemberID: m.ID, DueAt: &past})
	assert.ErrorIs(t, err, ErrInvalidDueDate)

	_, err = e.circ.Borrow(ctx, staffActor, &BorrowInput{ItemID: y.ID})
	assert.ErrorIs(t, err, ErrNoLinkedMember)
}

// The test database serializes writers, so this checks the outcome of
// concurrent borrows rather than the claim itself; the conditional claim is
// covered by TestItems_MarkUnavailableClaimsOnce.
func TestBorrow_LastCopyRace(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	x := e.tdb.Item(t, "Dune", true)

	const borrowers = 6
	members := make([]*models.Member, borrowers)
	for i := range members {
		members[i] = e.tdb.Member(t, "Reader", string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, borrowers)
	for i := range members {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.circ.Borrow(ctx, memberActor(members[i].ID), &BorrowInput{ItemID: x.ID})
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrItemUnavailable)
	}
	assert.Equal(t, 1, won)

	var open int64
	require.NoError(t, e.tdb.DB.Model(&models.Loan{}).Where("item_id = ? AND returned_at IS NULL", x.ID).Count(&open).Error)
	assert.Equal(t, int64(1), open)
}

func TestReturn(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	other := e.tdb.Member(t, "Alan", "Turing")
	x := e.tdb.Item(t, "Dune", true)

	loan, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)

	_, err = e.circ.Return(ctx, memberActor(other.ID), loan.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	e.clock.AdvanceDays(17)
	returned, err := e.circ.Return(ctx, memberActor(m.ID), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanStatusReturned, returned.Status)
	assert.Equal(t, "1.50", returned.Fine.StringFixed(2))
	assert.True(t, e.tdb.Available(t, x.ID))

	stored := e.tdb.Reload(t, loan.ID)
	require.NotNil(t, stored.ReturnedAt)
	assert.Equal(t, "1.50", stored.Fine.StringFixed(2))

	t.Run("fine is frozen after return", func(t *testing.T) {
		e.clock.AdvanceDays(30)
		loans, summary, err := e.circ.MemberLoans(ctx, memberActor(m.ID), m.ID, true)
		require.NoError(t, err)
		assert.Equal(t, "1.50", loans[0].Fine.StringFixed(2))
		assert.Equal(t, "1.50", summary.UnpaidFines.StringFixed(2))
	})

	t.Run("second return is rejected", func(t *testing.T) {
		_, err := e.circ.Return(ctx, staffActor, loan.ID)
		assert.ErrorIs(t, err, domain.ErrLoanNotOpen)
	})

	t.Run("unknown loan", func(t *testing.T) {
		_, err := e.circ.Return(ctx, staffActor, 4242)
		assert.ErrorIs(t, err, ErrLoanNotFound)
	})
}

func TestRenew_StaffOnlyUpToLimit(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)

	loan, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)
	originalDue := e.tdb.Reload(t, loan.ID).DueAt

	_, err = e.circ.Renew(ctx, memberActor(m.ID), loan.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	for i := 0; i < 2; i++ {
		_, err := e.circ.Renew(ctx, staffActor, loan.ID)
		require.NoError(t, err)
	}

	_, err = e.circ.Renew(ctx, staffActor, loan.ID)
	assert.ErrorIs(t, err, domain.ErrMaxRenewalsReached)

	stored := e.tdb.Reload(t, loan.ID)
	assert.Equal(t, 2, stored.Renewals)
	assert.WithinDuration(t, originalDue.AddDate(0, 0, 14), stored.DueAt, time.Second)
}

func TestRenew_OverdueLoanStaysRenewable(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)

	loan, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)
	e.clock.AdvanceDays(20)

	renewed, err := e.circ.Renew(ctx, staffActor, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed.Renewals)
	assert.True(t, e.tdb.Reload(t, loan.ID).Fine.IsZero())
}

func TestSettleFine(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)
	y := e.tdb.Item(t, "Emma", true)

	loan, err := e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: x.ID})
	require.NoError(t, err)

	_, err = e.circ.SettleFine(ctx, staffActor, loan.ID)
	assert.ErrorIs(t, err, domain.ErrLoanStillOpen)

	e.clock.AdvanceDays(15)
	_, err = e.circ.Return(ctx, staffActor, loan.ID)
	require.NoError(t, err)

	_, err = e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: y.ID})
	require.ErrorIs(t, err, domain.ErrUnpaidFines)

	_, err = e.circ.SettleFine(ctx, memberActor(m.ID), loan.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	settled, err := e.circ.SettleFine(ctx, staffActor, loan.ID)
	require.NoError(t, err)
	assert.NotNil(t, settled.FineSettledAt)

	_, err = e.circ.SettleFine(ctx, staffActor, loan.ID)
	assert.ErrorIs(t, err, domain.ErrFineAlreadySettled)

	_, err = e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: y.ID})
	assert.NoError(t, err)
}

func TestRefreshFines(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", true)
	y := e.tdb.Item(t, "Emma", true)

	late := e.tdb.Loan(t, m.ID, x.ID, e.clock.Now().AddDate(0, 0, -20), e.clock.Now().AddDate(0, 0, -6))
	onTime := e.tdb.Loan(t, m.ID, y.ID, e.clock.Now(), e.clock.Now().AddDate(0, 0, 14))

	n, err := e.circ.RefreshFines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "3.00", e.tdb.Reload(t, late.ID).Fine.StringFixed(2))
	assert.True(t, e.tdb.Reload(t, onTime.ID).Fine.IsZero())

	n, err = e.circ.RefreshFines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	overdue, err := e.circ.OverdueLoans(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, late.ID, overdue[0].ID)
}

func TestListLoans_OverdueUsesCalendarDays(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	x := e.tdb.Item(t, "Dune", false)

	// Due at 09:00 and looked at in the afternoon of the same day
	due := e.clock.Now()
	loan := e.tdb.Loan(t, m.ID, x.ID, due.AddDate(0, 0, -14), due)
	e.clock.Advance(6 * time.Hour)

	overdueOnly := repositories.LoanFilter{Overdue: true}
	loans, total, err := e.circ.ListLoans(ctx, overdueOnly, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, loans)
	assert.Zero(t, total)

	overdue, err := e.circ.OverdueLoans(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	all, total, err := e.circ.ListLoans(ctx, repositories.LoanFilter{}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.True(t, all[0].Fine.IsZero())

	t.Run("listed from the next day", func(t *testing.T) {
		e.clock.AdvanceDays(1)
		loans, total, err := e.circ.ListLoans(ctx, overdueOnly, 0, 10)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, loan.ID, loans[0].ID)
		assert.Equal(t, "0.50", loans[0].Fine.StringFixed(2))

		overdue, err := e.circ.OverdueLoans(ctx)
		require.NoError(t, err)
		require.Len(t, overdue, 1)
		assert.Equal(t, loan.ID, overdue[0].ID)
	})
}

func TestMemberLoans_Authorization(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)
	m := e.tdb.Member(t, "Ada", "Lovelace")
	other := e.tdb.Member(t, "Alan", "Turing")

	_, _, err := e.circ.MemberLoans(ctx, memberActor(other.ID), m.ID, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = e.circ.MemberLoans(ctx, staffActor, m.ID, false)
	assert.NoError(t, err)
}

func TestPolicyService(t *testing.T) {
	e := newEngine(t)
	ctx := e.tdb.Context(t)

	policy, err := e.pol.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPolicy().MaxLoans, policy.MaxLoans)

	var rows int64
	require.NoError(t, e.tdb.DB.Model(&models.PolicyConfig{}).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)

	one := 1
	_, err = e.pol.Update(ctx, memberActor(1), &UpdatePolicyInput{MaxLoans: &one})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	zero := 0
	_, err = e.pol.Update(ctx, staffActor, &UpdatePolicyInput{LoanDurationDays: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)

	updated, err := e.pol.Update(ctx, adminActor, &UpdatePolicyInput{MaxLoans: &one})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MaxLoans)
	assert.Equal(t, 14, updated.LoanDurationDays)

	// the next decision sees the new limit
	m := e.tdb.Member(t, "Ada", "Lovelace")
	a := e.tdb.Item(t, "A", true)
	b := e.tdb.Item(t, "B", true)
	_, err = e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: a.ID})
	require.NoError(t, err)
	_, err = e.circ.Borrow(ctx, memberActor(m.ID), &BorrowInput{ItemID: b.ID})
	assert.True(t, errors.Is(err, domain.ErrLoanLimitReached))
}
