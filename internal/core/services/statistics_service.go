package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Period is a statistics window ending now
type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

var periodDays = map[Period]int{
	PeriodWeek:    7,
	PeriodMonth:   30,
	PeriodQuarter: 90,
	PeriodYear:    365,
}

// ParsePeriod returns the named period, defaulting to a month
func ParsePeriod(s string) Period {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := periodDays[p]; ok {
		return p
	}
	return PeriodMonth
}

// Days returns the window length
func (p Period) Days() int {
	return periodDays[p]
}

// StatisticsService computes dashboards and statistics.
// Aggregates are built with goqu and run on the gorm connection.
type StatisticsService struct {
	db      *gorm.DB
	repos   *repositories.Repositories
	policy  *PolicyService
	dialect goqu.DialectWrapper
	now     func() time.Time
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repos *repositories.Repositories, policy *PolicyService) *StatisticsService {
	db := repos.DB()
	return &StatisticsService{
		db:      db,
		repos:   repos,
		policy:  policy,
		dialect: goqu.Dialect(goquDialect(db)),
		now:     time.Now,
	}
}

// SetClock replaces the time source
func (s *StatisticsService) SetClock(now func() time.Time) {
	s.now = now
}

// goquDialect maps the gorm dialector name onto a registered goqu dialect
func goquDialect(db *gorm.DB) string {
	switch name := db.Dialector.Name(); name {
	case "sqlite":
		return "sqlite3"
	default:
		return name
	}
}

// ============================================================
// Dashboards
// ============================================================

// StaffDashboard represents the staff dashboard
type StaffDashboard struct {
	TotalMembers       int64           `json:"total_members"`
	TotalItems         int64           `json:"total_items"`
	AvailableItems     int64           `json:"available_items"`
	ActiveLoans        int64           `json:"active_loans"`
	OverdueLoans       int64           `json:"overdue_loans"`
	ActiveReservations int64           `json:"active_reservations"`
	OutstandingFines   decimal.Decimal `json:"outstanding_fines"`
}

// MemberDashboard represents a member's own dashboard
type MemberDashboard struct {
	TotalLoans         int             `json:"total_loans"`
	ActiveLoans        int             `json:"active_loans"`
	OverdueLoans       int             `json:"overdue_loans"`
	ActiveReservations int             `json:"active_reservations"`
	UnpaidFines        decimal.Decimal `json:"unpaid_fines"`
}

// StaffDashboard returns library-wide totals
func (s *StatisticsService) StaffDashboard(ctx context.Context, actor domain.Actor) (*StaffDashboard, error) {
	if !actor.Can(domain.CapViewReports) {
		return nil, domain.ErrForbidden
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	data := &StaffDashboard{}

	counts := []struct {
		dest *int64
		ds   *goqu.SelectDataset
	}{
		{&data.TotalMembers, s.dialect.From("members")},
		{&data.TotalItems, s.items()},
		{&data.AvailableItems, s.items().Where(availableItem)},
		{&data.ActiveLoans, s.dialect.From("loans").Where(goqu.C("returned_at").IsNull())},
		{&data.OverdueLoans, s.dialect.From("loans").Where(
			goqu.C("returned_at").IsNull(),
			goqu.C("due_at").Lt(today),
		)},
		{&data.ActiveReservations, s.dialect.From("reservations").Where(
			goqu.C("status").Eq(domain.ReservationStatusActive),
		)},
	}
	for _, c := range counts {
		n, err := s.count(ctx, c.ds)
		if err != nil {
			return nil, err
		}
		*c.dest = n
	}

	fines, err := s.outstandingFines(ctx, now)
	if err != nil {
		return nil, err
	}
	data.OutstandingFines = fines
	return data, nil
}

// MemberDashboard returns the caller's own totals with fines evaluated now
func (s *StatisticsService) MemberDashboard(ctx context.Context, actor domain.Actor) (*MemberDashboard, error) {
	if actor.MemberID == 0 {
		return nil, ErrNoLinkedMember
	}

	standing, loans, err := s.memberStanding(ctx, actor.MemberID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.count(ctx, s.dialect.From("reservations").Where(
		goqu.C("member_id").Eq(actor.MemberID),
		goqu.C("status").Eq(domain.ReservationStatusActive),
	))
	if err != nil {
		return nil, err
	}

	return &MemberDashboard{
		TotalLoans:         len(loans),
		ActiveLoans:        standing.OpenLoans(),
		OverdueLoans:       standing.OverdueLoans(),
		ActiveReservations: int(reservations),
		UnpaidFines:        standing.UnpaidFines(),
	}, nil
}

// ============================================================
// Statistics
// ============================================================

// CategoryStat is a loan count for one category
type CategoryStat struct {
	Category   string `json:"category"`
	Loans      int64  `json:"loans"`
	Percentage int    `json:"percentage"`
}

// MemberStat is a loan count for one member
type MemberStat struct {
	MemberID   uint   `json:"member_id"`
	Name       string `json:"name"`
	Loans      int64  `json:"loans"`
	Percentage int    `json:"percentage"`
}

// LibraryStatistics represents staff statistics for a period
type LibraryStatistics struct {
	Period           Period         `json:"period"`
	Since            time.Time      `json:"since"`
	TotalMembers     int64          `json:"total_members"`
	TotalItems       int64          `json:"total_items"`
	AvailableItems   int64          `json:"available_items"`
	AvailabilityRate int            `json:"availability_rate"`
	LoansInPeriod    int64          `json:"loans_in_period"`
	ActiveLoans      int64          `json:"active_loans"`
	Categories       []CategoryStat `json:"categories"`
	TopMembers       []MemberStat   `json:"top_members"`
}

// MemberStatistics represents a member's own statistics
type MemberStatistics struct {
	MemberDashboard
	Categories  []CategoryStat `json:"categories"`
	RecentLoans []*models.Loan `json:"recent_loans"`
}

const (
	topMembersLimit  = 5
	recentLoansLimit = 6
)

// Statistics returns loan activity for the period
func (s *StatisticsService) Statistics(ctx context.Context, actor domain.Actor, period Period) (*LibraryStatistics, error) {
	if !actor.Can(domain.CapViewReports) {
		return nil, domain.ErrForbidden
	}

	since := s.now().UTC().AddDate(0, 0, -period.Days())
	stats := &LibraryStatistics{Period: period, Since: since}

	counts := []struct {
		dest *int64
		ds   *goqu.SelectDataset
	}{
		{&stats.TotalMembers, s.dialect.From("members")},
		{&stats.TotalItems, s.items()},
		{&stats.AvailableItems, s.items().Where(availableItem)},
		{&stats.LoansInPeriod, s.dialect.From("loans").Where(goqu.C("borrowed_at").Gte(since))},
		{&stats.ActiveLoans, s.dialect.From("loans").Where(
			goqu.C("borrowed_at").Gte(since),
			goqu.C("returned_at").IsNull(),
		)},
	}
	for _, c := range counts {
		n, err := s.count(ctx, c.ds)
		if err != nil {
			return nil, err
		}
		*c.dest = n
	}

	// an empty catalog counts as fully available
	stats.AvailabilityRate = 100
	if stats.TotalItems > 0 {
		stats.AvailabilityRate = percent(stats.AvailableItems, stats.TotalItems)
	}

	categories, err := s.categoryLoans(ctx, goqu.I("l.borrowed_at").Gte(since), stats.LoansInPeriod)
	if err != nil {
		return nil, err
	}
	stats.Categories = categories

	top, err := s.topMembers(ctx, since)
	if err != nil {
		return nil, err
	}
	stats.TopMembers = top
	return stats, nil
}

// MemberStatistics returns the caller's totals, categories and recent loans
func (s *StatisticsService) MemberStatistics(ctx context.Context, actor domain.Actor) (*MemberStatistics, error) {
	dashboard, err := s.MemberDashboard(ctx, actor)
	if err != nil {
		return nil, err
	}

	categories, err := s.categoryLoans(ctx, goqu.I("l.member_id").Eq(actor.MemberID), int64(dashboard.TotalLoans))
	if err != nil {
		return nil, err
	}

	_, loans, err := s.memberStanding(ctx, actor.MemberID)
	if err != nil {
		return nil, err
	}
	if len(loans) > recentLoansLimit {
		loans = loans[:recentLoansLimit]
	}

	return &MemberStatistics{
		MemberDashboard: *dashboard,
		Categories:      categories,
		RecentLoans:     loans,
	}, nil
}

// categoryLoans counts loans per item category, largest first
func (s *StatisticsService) categoryLoans(ctx context.Context, cond goqu.Expression, total int64) ([]CategoryStat, error) {
	ds := s.dialect.
		From(goqu.T("loans").As("l")).
		InnerJoin(goqu.T("items").As("i"), goqu.On(goqu.I("i.id").Eq(goqu.I("l.item_id")))).
		Select(
			goqu.I("i.category").As("category"),
			goqu.COUNT(goqu.I("l.id")).As("loans"),
		).
		Where(cond).
		GroupBy(goqu.I("i.category")).
		Order(goqu.I("loans").Desc(), goqu.I("category").Asc())

	rows, err := scanAll[CategoryStat](ctx, s.db, ds)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Percentage = percent(rows[i].Loans, total)
	}
	return rows, nil
}

// topMembers returns the most active borrowers since the given instant,
// with their share of the busiest member's count
func (s *StatisticsService) topMembers(ctx context.Context, since time.Time) ([]MemberStat, error) {
	ds := s.dialect.
		From(goqu.T("loans").As("l")).
		InnerJoin(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("l.member_id")))).
		Select(
			goqu.I("m.id").As("member_id"),
			goqu.I("m.first_name").As("first_name"),
			goqu.I("m.last_name").As("last_name"),
			goqu.COUNT(goqu.I("l.id")).As("loans"),
		).
		Where(goqu.I("l.borrowed_at").Gte(since)).
		GroupBy(goqu.I("m.id"), goqu.I("m.first_name"), goqu.I("m.last_name")).
		Order(goqu.I("loans").Desc(), goqu.I("member_id").Asc()).
		Limit(topMembersLimit)

	type row struct {
		MemberID  uint
		FirstName string
		LastName  string
		Loans     int64
	}
	rows, err := scanAll[row](ctx, s.db, ds)
	if err != nil {
		return nil, err
	}

	stats := make([]MemberStat, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, MemberStat{
			MemberID:   r.MemberID,
			Name:       r.FirstName + " " + r.LastName,
			Loans:      r.Loans,
			Percentage: percent(r.Loans, rows[0].Loans),
		})
	}
	return stats, nil
}

// outstandingFines sums unsettled fines, open loans evaluated at now
func (s *StatisticsService) outstandingFines(ctx context.Context, now time.Time) (decimal.Decimal, error) {
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	ds := s.dialect.From("loans").
		Select("id", "item_id", "due_at", "returned_at", "renewals", "fine", "fine_settled_at").
		Where(goqu.C("fine_settled_at").IsNull())
	loans, err := scanAll[models.Loan](ctx, s.db, ds)
	if err != nil {
		return decimal.Zero, err
	}

	snapshots := make([]domain.LoanSnapshot, len(loans))
	for i := range loans {
		snapshots[i] = loans[i].Snapshot()
	}
	standing, _ := domain.NewStanding(snapshots, now, policy.DailyFineRate)
	return standing.UnpaidFines(), nil
}

func (s *StatisticsService) memberStanding(ctx context.Context, memberID uint) (domain.Standing, []*models.Loan, error) {
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return domain.Standing{}, nil, err
	}
	loans, err := s.repos.Loans.ListByMember(ctx, memberID)
	if err != nil {
		return domain.Standing{}, nil, err
	}
	standing, _ := refreshLoans(loans, s.now().UTC(), policy.DailyFineRate)
	return standing, loans, nil
}

// availableItem binds the flag as a plain parameter on every dialect
var availableItem = goqu.L("available = ?", true)

// items selects catalog rows that are not soft deleted
func (s *StatisticsService) items() *goqu.SelectDataset {
	return s.dialect.From("items").Where(goqu.C("deleted_at").IsNull())
}

func (s *StatisticsService) count(ctx context.Context, ds *goqu.SelectDataset) (int64, error) {
	type result struct {
		Count int64
	}
	rows, err := scanAll[result](ctx, s.db, ds.Select(goqu.COUNT(goqu.Star()).As("count")))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// scanAll runs a goqu query with bound parameters and scans every row
func scanAll[T any](ctx context.Context, db *gorm.DB, ds *goqu.SelectDataset) ([]T, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	rows, err := sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err := db.ScanRows(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if out == nil {
		out = []T{}
	}
	return out, rows.Err()
}

func percent(part, whole int64) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(whole) * 100))
}
