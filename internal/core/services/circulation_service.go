package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Circulation errors
var (
	ErrLoanNotFound        = errors.New("loan not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrNoLinkedMember      = errors.New("no member record is linked to this account")
	ErrInvalidDueDate      = errors.New("due date must be in the future")
	ErrConcurrentUpdate    = errors.New("record was modified concurrently, please retry")
	ErrReservationNotFound = errors.New("reservation not found")
)

// CirculationService runs borrow, return, renewal and fine operations.
// Each operation is one database transaction.
type CirculationService struct {
	repos   *repositories.Repositories
	policy  *PolicyService
	now     func() time.Time
	tracer  trace.Tracer
	metrics *engineMetrics
	events  *EventHub
}

// NewCirculationService creates a new circulation service
func NewCirculationService(repos *repositories.Repositories, policy *PolicyService) *CirculationService {
	return &CirculationService{
		repos:   repos,
		policy:  policy,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
		metrics: newEngineMetrics(),
	}
}

// SetClock replaces the time source
func (s *CirculationService) SetClock(now func() time.Time) {
	s.now = now
}

// BorrowInput represents a borrow request.
// MemberID and DueAt may only be set by staff.
type BorrowInput struct {
	ItemID   uint       `json:"item_id"`
	MemberID uint       `json:"member_id"`
	DueAt    *time.Time `json:"due_at"`
}

// LoanSummary is a member's standing at the time of the request
type LoanSummary struct {
	OpenLoans    int             `json:"open_loans"`
	OverdueLoans int             `json:"overdue_loans"`
	UnpaidFines  decimal.Decimal `json:"unpaid_fines"`
}

// Borrow creates a loan after the eligibility checks pass
func (s *CirculationService) Borrow(ctx context.Context, actor domain.Actor, input *BorrowInput) (loan *models.Loan, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow", trace.WithAttributes(
		attribute.Int64("item.id", int64(input.ItemID)),
		attribute.String("actor.role", actor.Role.String()),
	))
	defer func() { endSpan(span, err) }()

	// 1. Resolve who borrows and check permissions
	memberID, err := targetMember(actor, input.MemberID)
	if err != nil {
		return nil, err
	}
	if input.DueAt != nil && !actor.Can(domain.CapManageCirculation) {
		return nil, domain.ErrForbidden
	}
	span.SetAttributes(attribute.Int64("member.id", int64(memberID)))

	// 2. Read the policy fresh
	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	dueAt := policy.DueDate(now)
	if input.DueAt != nil {
		if !input.DueAt.After(now) {
			return nil, ErrInvalidDueDate
		}
		dueAt = input.DueAt.UTC()
	}

	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		// 3. Load member and item. The member row stays locked so that
		// concurrent borrows cannot both pass the loan limit.
		if _, err := tx.Members.Lock(ctx, memberID); err != nil {
			return notFound(err, ErrMemberNotFound)
		}
		item, err := tx.Items.GetByID(ctx, input.ItemID)
		if err != nil {
			return notFound(err, ErrItemNotFound)
		}

		// 4. Evaluate standing with fines refreshed to now
		standing, err := s.standing(ctx, tx, memberID, now, policy.DailyFineRate)
		if err != nil {
			return err
		}
		if err := domain.CheckBorrow(policy, item.State(), standing); err != nil {
			return err
		}

		// 5. Claim the item; losing a concurrent race shows up here
		claimed, err := tx.Items.MarkUnavailable(ctx, item.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return domain.Reject(domain.ErrItemUnavailable, "")
		}

		// 6. Create the loan
		loan = &models.Loan{
			MemberID:   memberID,
			ItemID:     item.ID,
			BorrowedAt: now,
			DueAt:      dueAt,
			Status:     domain.LoanStatusActive,
			Fine:       decimal.Zero,
		}
		if err := tx.Loans.Create(ctx, loan); err != nil {
			return fmt.Errorf("create loan: %w", err)
		}
		item.Available = false
		loan.Item = item
		return nil
	})
	if err != nil {
		s.metrics.rejected(ctx, err)
		return nil, err
	}

	s.metrics.loansCreated.Add(ctx, 1)
	s.events.Publish(Event{Name: EventLoanCreated, MemberID: loan.MemberID, Data: loan})
	log.Printf("📚 Loan %d created: member %d, item %d, due %s", loan.ID, memberID, loan.ItemID, loan.DueAt.Format(time.DateOnly))
	return loan, nil
}

// Return closes a loan and freezes its fine at the return instant
func (s *CirculationService) Return(ctx context.Context, actor domain.Actor, loanID uint) (loan *models.Loan, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return", trace.WithAttributes(
		attribute.Int64("loan.id", int64(loanID)),
	))
	defer func() { endSpan(span, err) }()

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		loan, err = tx.Loans.GetByID(ctx, loanID)
		if err != nil {
			return notFound(err, ErrLoanNotFound)
		}
		if !actor.Can(domain.CapManageCirculation) && !actor.Owns(loan.MemberID) {
			return domain.ErrForbidden
		}
		if err := domain.CheckReturn(loan.Snapshot()); err != nil {
			return err
		}

		fine := domain.ComputeFine(loan.DueAt, now, policy.DailyFineRate)
		closed, err := tx.Loans.Close(ctx, loan.ID, now, fine)
		if err != nil {
			return err
		}
		if !closed {
			return domain.Reject(domain.ErrLoanNotOpen, "")
		}
		if err := tx.Items.MarkAvailable(ctx, loan.ItemID); err != nil {
			return err
		}

		loan.ReturnedAt = &now
		loan.Status = domain.LoanStatusReturned
		loan.Fine = fine
		if loan.Item != nil {
			loan.Item.Available = true
		}
		return nil
	})
	if err != nil {
		s.metrics.rejected(ctx, err)
		return nil, err
	}

	s.metrics.loansReturned.Add(ctx, 1)
	s.events.Publish(Event{Name: EventLoanReturned, MemberID: loan.MemberID, Data: loan})
	if loan.Fine.IsPositive() {
		log.Printf("💰 Loan %d returned late, fine %s", loan.ID, loan.Fine.StringFixed(2))
	} else {
		log.Printf("📚 Loan %d returned", loan.ID)
	}
	return loan, nil
}

// Renew extends the due date of an open loan. Fines are not recomputed.
func (s *CirculationService) Renew(ctx context.Context, actor domain.Actor, loanID uint) (loan *models.Loan, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.renew", trace.WithAttributes(
		attribute.Int64("loan.id", int64(loanID)),
	))
	defer func() { endSpan(span, err) }()

	if !actor.Can(domain.CapManageCirculation) {
		return nil, domain.ErrForbidden
	}

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}

	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		loan, err = tx.Loans.GetByID(ctx, loanID)
		if err != nil {
			return notFound(err, ErrLoanNotFound)
		}
		if err := domain.CheckRenewal(policy, loan.Snapshot()); err != nil {
			return err
		}

		dueAt := policy.ExtendDue(loan.DueAt)
		renewed, err := tx.Loans.Renew(ctx, loan.ID, loan.Renewals, dueAt)
		if err != nil {
			return err
		}
		if !renewed {
			return ErrConcurrentUpdate
		}

		loan.DueAt = dueAt
		loan.Renewals++
		return nil
	})
	if err != nil {
		s.metrics.rejected(ctx, err)
		return nil, err
	}

	s.metrics.loansRenewed.Add(ctx, 1)
	s.events.Publish(Event{Name: EventLoanRenewed, MemberID: loan.MemberID, Data: loan})
	log.Printf("📚 Loan %d renewed (%d/%d), due %s", loan.ID, loan.Renewals, policy.MaxRenewals, loan.DueAt.Format(time.DateOnly))
	return loan, nil
}

// SettleFine records payment of a returned loan's fine
func (s *CirculationService) SettleFine(ctx context.Context, actor domain.Actor, loanID uint) (loan *models.Loan, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.settle_fine", trace.WithAttributes(
		attribute.Int64("loan.id", int64(loanID)),
	))
	defer func() { endSpan(span, err) }()

	if !actor.Can(domain.CapManageCirculation) {
		return nil, domain.ErrForbidden
	}
	now := s.now().UTC()

	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		loan, err = tx.Loans.GetByID(ctx, loanID)
		if err != nil {
			return notFound(err, ErrLoanNotFound)
		}
		if err := domain.CheckSettlement(loan.Snapshot()); err != nil {
			return err
		}
		settled, err := tx.Loans.SettleFine(ctx, loan.ID, now)
		if err != nil {
			return err
		}
		if !settled {
			return domain.Reject(domain.ErrFineAlreadySettled, "")
		}
		loan.FineSettledAt = &now
		return nil
	})
	if err != nil {
		s.metrics.rejected(ctx, err)
		return nil, err
	}

	s.events.Publish(Event{Name: EventFineSettled, MemberID: loan.MemberID, Data: loan})
	log.Printf("💰 Fine %s settled on loan %d by %s", loan.Fine.StringFixed(2), loan.ID, actor.Username)
	return loan, nil
}

// MemberLoans lists a member's loans with fines evaluated now.
// With persist the recomputed fines are also written back.
func (s *CirculationService) MemberLoans(ctx context.Context, actor domain.Actor, memberID uint, persist bool) ([]*models.Loan, *LoanSummary, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.member_loans", trace.WithAttributes(
		attribute.Int64("member.id", int64(memberID)),
		attribute.Bool("persist", persist),
	))
	defer span.End()

	if !actor.Owns(memberID) && !actor.Can(domain.CapManageCirculation) {
		return nil, nil, domain.ErrForbidden
	}

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, nil, err
	}

	loans, err := s.repos.Loans.ListByMember(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}

	standing, changed := refreshLoans(loans, s.now().UTC(), policy.DailyFineRate)
	if persist && len(changed) > 0 {
		s.persistFines(ctx, changed)
	}

	return loans, summarize(standing), nil
}

// GetLoan returns one loan with its fine evaluated now
func (s *CirculationService) GetLoan(ctx context.Context, actor domain.Actor, loanID uint) (*models.Loan, error) {
	loan, err := s.repos.Loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, notFound(err, ErrLoanNotFound)
	}
	if !actor.Owns(loan.MemberID) && !actor.Can(domain.CapManageCirculation) {
		return nil, domain.ErrForbidden
	}

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}
	refreshLoans([]*models.Loan{loan}, s.now().UTC(), policy.DailyFineRate)
	return loan, nil
}

// ListLoans lists loans for staff, with open fines evaluated now
func (s *CirculationService) ListLoans(ctx context.Context, filter repositories.LoanFilter, offset, limit int) ([]*models.Loan, int64, error) {
	if filter.Overdue {
		cutoff := domain.OverdueCutoff(s.now())
		filter.OverdueAt = &cutoff
	}

	loans, total, err := s.repos.Loans.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, 0, err
	}
	refreshLoans(loans, s.now().UTC(), policy.DailyFineRate)
	return loans, total, nil
}

// OverdueLoans lists every open loan past its due date
func (s *CirculationService) OverdueLoans(ctx context.Context) ([]*models.Loan, error) {
	now := s.now().UTC()
	cutoff := domain.OverdueCutoff(now)
	loans, _, err := s.repos.Loans.List(ctx, repositories.LoanFilter{OverdueAt: &cutoff}, 0, -1)
	if err != nil {
		return nil, err
	}

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, err
	}
	refreshLoans(loans, now, policy.DailyFineRate)
	return loans, nil
}

// RefreshFines recomputes and stores the fine of every open loan.
// It returns the number of loans whose stored fine changed.
func (s *CirculationService) RefreshFines(ctx context.Context) (n int, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.refresh_fines")
	defer func() { endSpan(span, err) }()

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return 0, err
	}
	loans, err := s.repos.Loans.ListOpen(ctx)
	if err != nil {
		return 0, err
	}

	_, changed := refreshLoans(loans, s.now().UTC(), policy.DailyFineRate)
	n = s.persistFines(ctx, changed)
	span.SetAttributes(attribute.Int("fines.updated", n))
	return n, nil
}

// persistFines writes recomputed fines back. Failures are logged and
// skipped; the stored value stays at its previous amount.
func (s *CirculationService) persistFines(ctx context.Context, changed []domain.LoanSnapshot) int {
	written := 0
	for _, l := range changed {
		if err := s.repos.Loans.UpdateFine(ctx, l.ID, l.Fine); err != nil {
			log.Printf("⚠️ Failed to persist fine for loan %d: %v", l.ID, err)
			continue
		}
		written++
	}
	if written > 0 {
		s.metrics.finesPersisted.Add(ctx, int64(written))
	}
	return written
}

// standing loads a member's loans and evaluates them at now
func (s *CirculationService) standing(ctx context.Context, tx *repositories.Repositories, memberID uint, now time.Time, rate decimal.Decimal) (domain.Standing, error) {
	loans, err := tx.Loans.ListByMember(ctx, memberID)
	if err != nil {
		return domain.Standing{}, err
	}
	standing, _ := refreshLoans(loans, now, rate)
	return standing, nil
}

// refreshLoans evaluates fines at now and copies them onto the rows
func refreshLoans(loans []*models.Loan, now time.Time, rate decimal.Decimal) (domain.Standing, []domain.LoanSnapshot) {
	snapshots := make([]domain.LoanSnapshot, len(loans))
	for i, l := range loans {
		snapshots[i] = l.Snapshot()
	}
	standing, changed := domain.NewStanding(snapshots, now, rate)
	for i := range loans {
		loans[i].Fine = standing.Loans[i].Fine
	}
	return standing, changed
}

func summarize(s domain.Standing) *LoanSummary {
	return &LoanSummary{
		OpenLoans:    s.OpenLoans(),
		OverdueLoans: s.OverdueLoans(),
		UnpaidFines:  s.UnpaidFines(),
	}
}

// targetMember resolves the member an operation applies to. Acting for
// another member requires circulation rights.
func targetMember(actor domain.Actor, requested uint) (uint, error) {
	if !actor.Can(domain.CapBorrow) {
		return 0, domain.ErrForbidden
	}
	if requested == 0 || requested == actor.MemberID {
		if actor.MemberID == 0 {
			return 0, ErrNoLinkedMember
		}
		return actor.MemberID, nil
	}
	if !actor.Can(domain.CapManageCirculation) {
		return 0, domain.ErrForbidden
	}
	return requested, nil
}

// notFound maps gorm.ErrRecordNotFound to the given sentinel
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
