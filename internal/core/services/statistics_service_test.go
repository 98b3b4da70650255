package services

import (
	"testing"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// library is a small circulation history shared by the statistics and
// report tests
type library struct {
	*engine
	stats      *StatisticsService
	ada, bob   *models.Member
	dune, emma *models.Item
	cosmos     *models.Item
}

func newLibrary(t *testing.T) *library {
	t.Helper()
	e := newEngine(t)
	stats := NewStatisticsService(e.tdb.Repos, e.pol)
	stats.SetClock(e.clock.Now)

	lib := &library{engine: e, stats: stats}
	tdb := e.tdb
	now := e.clock.Now()

	lib.ada = tdb.Member(t, "Ada", "Lovelace")
	lib.bob = tdb.Member(t, "Bob", "Builder")
	lib.dune = tdb.Item(t, "Dune", true)
	lib.emma = tdb.Item(t, "Emma", true)
	lib.cosmos = tdb.Item(t, "Cosmos", true)
	require.NoError(t, tdb.DB.Model(lib.cosmos).Update("category", "Science").Error)

	withdrawn := tdb.Item(t, "Withdrawn", true)
	require.NoError(t, tdb.DB.Delete(withdrawn).Error)

	tdb.Loan(t, lib.ada.ID, lib.dune.ID, now.AddDate(0, 0, -3), now.AddDate(0, 0, 11))
	tdb.ReturnedLoan(t, lib.ada.ID, lib.cosmos.ID, now.AddDate(0, 0, -10), now.AddDate(0, 0, -9), "0.50")
	tdb.Loan(t, lib.bob.ID, lib.emma.ID, now.AddDate(0, 0, -20), now.AddDate(0, 0, -6))
	tdb.ReturnedLoan(t, lib.bob.ID, lib.cosmos.ID, now.AddDate(0, 0, -200), now.AddDate(0, 0, -201), "0")

	reservation := &models.Reservation{
		MemberID:   lib.ada.ID,
		ItemID:     lib.emma.ID,
		ReservedAt: now.AddDate(0, 0, -1),
		Status:     domain.ReservationStatusActive,
	}
	require.NoError(t, tdb.DB.Omit("Member", "Item").Create(reservation).Error)

	return lib
}

func TestParsePeriod(t *testing.T) {
	assert.Equal(t, PeriodWeek, ParsePeriod("Week"))
	assert.Equal(t, PeriodYear, ParsePeriod(" year "))
	assert.Equal(t, PeriodMonth, ParsePeriod(""))
	assert.Equal(t, PeriodMonth, ParsePeriod("decade"))
	assert.Equal(t, 90, PeriodQuarter.Days())
}

func TestStaffDashboard(t *testing.T) {
	lib := newLibrary(t)
	ctx := lib.tdb.Context(t)

	_, err := lib.stats.StaffDashboard(ctx, memberActor(lib.ada.ID))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	data, err := lib.stats.StaffDashboard(ctx, staffActor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), data.TotalMembers)
	assert.Equal(t, int64(3), data.TotalItems, "soft deleted items are excluded")
	assert.Equal(t, int64(1), data.AvailableItems)
	assert.Equal(t, int64(2), data.ActiveLoans)
	assert.Equal(t, int64(1), data.OverdueLoans)
	assert.Equal(t, int64(1), data.ActiveReservations)
	// 6 late days on Emma plus the unsettled 0.50
	assert.Equal(t, "3.50", data.OutstandingFines.StringFixed(2))
}

func TestMemberDashboard(t *testing.T) {
	lib := newLibrary(t)
	ctx := lib.tdb.Context(t)

	_, err := lib.stats.MemberDashboard(ctx, staffActor)
	assert.ErrorIs(t, err, ErrNoLinkedMember)

	bob, err := lib.stats.MemberDashboard(ctx, memberActor(lib.bob.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, bob.TotalLoans)
	assert.Equal(t, 1, bob.ActiveLoans)
	assert.Equal(t, 1, bob.OverdueLoans)
	assert.Equal(t, 0, bob.ActiveReservations)
	assert.Equal(t, "3.00", bob.UnpaidFines.StringFixed(2))

	ada, err := lib.stats.MemberDashboard(ctx, memberActor(lib.ada.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, ada.ActiveReservations)
	assert.Equal(t, 0, ada.OverdueLoans)
	assert.Equal(t, "0.50", ada.UnpaidFines.StringFixed(2))
}

func TestStatistics_Month(t *testing.T) {
	lib := newLibrary(t)
	ctx := lib.tdb.Context(t)

	_, err := lib.stats.Statistics(ctx, memberActor(lib.ada.ID), PeriodMonth)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	stats, err := lib.stats.Statistics(ctx, staffActor, PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, stats.Period)
	assert.Equal(t, lib.clock.Now().AddDate(0, 0, -30), stats.Since)
	assert.Equal(t, int64(3), stats.TotalItems)
	assert.Equal(t, 33, stats.AvailabilityRate)
	assert.Equal(t, int64(3), stats.LoansInPeriod)
	assert.Equal(t, int64(2), stats.ActiveLoans)

	assert.Equal(t, []CategoryStat{
		{Category: "Fiction", Loans: 2, Percentage: 67},
		{Category: "Science", Loans: 1, Percentage: 33},
	}, stats.Categories)

	require.Len(t, stats.TopMembers, 2)
	assert.Equal(t, MemberStat{MemberID: lib.ada.ID, Name: "Ada Lovelace", Loans: 2, Percentage: 100}, stats.TopMembers[0])
	assert.Equal(t, MemberStat{MemberID: lib.bob.ID, Name: "Bob Builder", Loans: 1, Percentage: 50}, stats.TopMembers[1])
}

func TestStatistics_Year(t *testing.T) {
	lib := newLibrary(t)
	ctx := lib.tdb.Context(t)

	stats, err := lib.stats.Statistics(ctx, staffActor, PeriodYear)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.LoansInPeriod)
	assert.Equal(t, []CategoryStat{
		{Category: "Fiction", Loans: 2, Percentage: 50},
		{Category: "Science", Loans: 2, Percentage: 50},
	}, stats.Categories)
	require.Len(t, stats.TopMembers, 2)
	assert.Equal(t, 100, stats.TopMembers[1].Percentage, "ties share the top count")
}

func TestStatistics_EmptyLibrary(t *testing.T) {
	e := newEngine(t)
	stats := NewStatisticsService(e.tdb.Repos, e.pol)
	stats.SetClock(e.clock.Now)

	out, err := stats.Statistics(e.tdb.Context(t), adminActor, PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 100, out.AvailabilityRate)
	assert.Zero(t, out.LoansInPeriod)
	assert.Empty(t, out.Categories)
	assert.Empty(t, out.TopMembers)

	dash, err := stats.StaffDashboard(e.tdb.Context(t), adminActor)
	require.NoError(t, err)
	assert.True(t, dash.OutstandingFines.IsZero())
}

func TestMemberStatistics(t *testing.T) {
	lib := newLibrary(t)
	ctx := lib.tdb.Context(t)

	stats, err := lib.stats.MemberStatistics(ctx, memberActor(lib.ada.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalLoans)
	assert.Equal(t, []CategoryStat{
		{Category: "Fiction", Loans: 1, Percentage: 50},
		{Category: "Science", Loans: 1, Percentage: 50},
	}, stats.Categories)
	assert.Len(t, stats.RecentLoans, 2)

	// more loans than the recent list shows
	tdb := lib.tdb
	now := lib.clock.Now()
	for i := 0; i < 6; i++ {
		item := tdb.Item(t, "Extra", true)
		tdb.ReturnedLoan(t, lib.ada.ID, item.ID, now.AddDate(0, 0, -i-2), now.AddDate(0, 0, -i-2), "0")
	}
	stats, err = lib.stats.MemberStatistics(ctx, memberActor(lib.ada.ID))
	require.NoError(t, err)
	assert.Equal(t, 8, stats.TotalLoans)
	assert.Len(t, stats.RecentLoans, recentLoansLimit)

	_, err = lib.stats.MemberStatistics(ctx, staffActor)
	assert.ErrorIs(t, err, ErrNoLinkedMember)
}
