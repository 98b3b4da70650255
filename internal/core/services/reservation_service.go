package services

import (
	"context"
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
)

// ReservationService manages the reservation lifecycle
type ReservationService struct {
	repos   *repositories.Repositories
	policy  *PolicyService
	now     func() time.Time
	tracer  trace.Tracer
	metrics *engineMetrics
	events  *EventHub
}

// NewReservationService creates a new reservation service
func NewReservationService(repos *repositories.Repositories, policy *PolicyService) *ReservationService {
	return &ReservationService{
		repos:   repos,
		policy:  policy,
		now:     time.Now,
		tracer:  otel.Tracer(instrumentationName),
		metrics: newEngineMetrics(),
	}
}

// SetClock replaces the time source
func (s *ReservationService) SetClock(now func() time.Time) {
	s.now = now
}

// ReserveInput represents a reservation request. MemberID is staff only.
type ReserveInput struct {
	ItemID   uint `json:"item_id"`
	MemberID uint `json:"member_id"`
}

// Reserve places a member in the queue for an item
func (s *ReservationService) Reserve(ctx context.Context, actor domain.Actor, input *ReserveInput) (reservation *models.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "reservation.create", trace.WithAttributes(
		attribute.Int64("item.id", int64(input.ItemID)),
	))
	defer func() { endSpan(span, err) }()

	memberID, err := targetMember(actor, input.MemberID)
	if err != nil {
		return nil, err
	}

	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		// The member row lock serializes reservations of one member, so the
		// exists check below cannot interleave with a concurrent insert.
		if _, err := tx.Members.Lock(ctx, memberID); err != nil {
			return notFound(err, ErrMemberNotFound)
		}
		item, err := tx.Items.GetByID(ctx, input.ItemID)
		if err != nil {
			return notFound(err, ErrItemNotFound)
		}

		exists, err := tx.Reservations.ExistsActive(ctx, memberID, item.ID)
		if err != nil {
			return err
		}
		if exists {
			return domain.Reject(domain.ErrReservationExists, "")
		}

		reservation = &models.Reservation{
			MemberID:   memberID,
			ItemID:     item.ID,
			ReservedAt: s.now().UTC(),
			Status:     domain.ReservationStatusActive,
		}
		if err := tx.Reservations.Create(ctx, reservation); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		reservation.Item = item
		return nil
	})
	if err != nil {
		s.metrics.rejected(ctx, err)
		return nil, err
	}

	s.events.Publish(Event{Name: EventReservationCreated, MemberID: reservation.MemberID, Data: reservation})
	log.Printf("🔖 Reservation %d created: member %d, item %d", reservation.ID, memberID, input.ItemID)
	return reservation, nil
}

// Cancel ends an active reservation. Owners and staff may cancel.
func (s *ReservationService) Cancel(ctx context.Context, actor domain.Actor, reservationID uint) (reservation *models.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "reservation.cancel", trace.WithAttributes(
		attribute.Int64("reservation.id", int64(reservationID)),
	))
	defer func() { endSpan(span, err) }()

	now := s.now().UTC()
	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		reservation, err = tx.Reservations.GetByID(ctx, reservationID)
		if err != nil {
			return notFound(err, ErrReservationNotFound)
		}
		if !actor.Owns(reservation.MemberID) && !actor.Can(domain.CapManageCirculation) {
			return domain.ErrForbidden
		}
		if reservation.Status != domain.ReservationStatusActive {
			return domain.Reject(domain.ErrReservationNotActive, "")
		}

		ok, err := tx.Reservations.Resolve(ctx, reservation.ID, domain.ReservationStatusCancelled, now, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.ErrReservationNotActive, "")
		}
		reservation.Status = domain.ReservationStatusCancelled
		reservation.ResolvedAt = &now
		return nil
	})
	if err != nil {
		s.metrics.rejected(ctx, err)
		return nil, err
	}

	s.events.Publish(Event{Name: EventReservationCancelled, MemberID: reservation.MemberID, Data: reservation})
	log.Printf("🔖 Reservation %d cancelled by %s", reservation.ID, actor.Username)
	return reservation, nil
}

// Fulfill turns an active reservation into a loan. The member must be in
// good standing and under the loan limit; a rejection leaves the
// reservation active.
func (s *ReservationService) Fulfill(ctx context.Context, actor domain.Actor, reservationID uint) (reservation *models.Reservation, loan *models.Loan, err error) {
	ctx, span := s.tracer.Start(ctx, "reservation.fulfill", trace.WithAttributes(
		attribute.Int64("reservation.id", int64(reservationID)),
	))
	defer func() { endSpan(span, err) }()

	if !actor.Can(domain.CapManageCirculation) {
		return nil, nil, domain.ErrForbidden
	}

	policy, err := s.policy.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	now := s.now().UTC()

	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		reservation, err = tx.Reservations.GetByID(ctx, reservationID)
		if err != nil {
			return notFound(err, ErrReservationNotFound)
		}
		if reservation.Status != domain.ReservationStatusActive {
			return domain.Reject(domain.ErrReservationNotActive, "")
		}
		item, err := tx.Items.GetByID(ctx, reservation.ItemID)
		if err != nil {
			return notFound(err, ErrItemNotFound)
		}

		loans, err := tx.Loans.ListByMember(ctx, reservation.MemberID)
		if err != nil {
			return err
		}
		standing, _ := refreshLoans(loans, now, policy.DailyFineRate)
		if err := domain.CheckFulfillment(policy, reservation.Status, item.State(), standing); err != nil {
			return err
		}

		claimed, err := tx.Items.MarkUnavailable(ctx, item.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return domain.Reject(domain.ErrItemUnavailable, "")
		}

		loan = &models.Loan{
			MemberID:   reservation.MemberID,
			ItemID:     item.ID,
			BorrowedAt: now,
			DueAt:      policy.DueDate(now),
			Status:     domain.LoanStatusActive,
			Fine:       decimal.Zero,
		}
		if err := tx.Loans.Create(ctx, loan); err != nil {
			return fmt.Errorf("create loan: %w", err)
		}

		ok, err := tx.Reservations.Resolve(ctx, reservation.ID, domain.ReservationStatusFulfilled, now, &loan.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.Reject(domain.ErrReservationNotActive, "")
		}

		item.Available = false
		loan.Item = item
		reservation.Status = domain.ReservationStatusFulfilled
		reservation.ResolvedAt = &now
		reservation.LoanID = &loan.ID
		reservation.Item = item
		return nil
	})
	if err != nil {
		s.metrics.rejected(ctx, err)
		return nil, nil, err
	}

	s.metrics.reservationsFulfilled.Add(ctx, 1)
	s.metrics.loansCreated.Add(ctx, 1)
	s.events.Publish(Event{Name: EventReservationFulfilled, MemberID: reservation.MemberID, Data: reservation})
	log.Printf("🔖 Reservation %d fulfilled as loan %d", reservation.ID, loan.ID)
	return reservation, loan, nil
}

// List lists reservations for staff
func (s *ReservationService) List(ctx context.Context, filter repositories.ReservationFilter, offset, limit int) ([]*models.Reservation, int64, error) {
	return s.repos.Reservations.List(ctx, filter, offset, limit)
}

// MemberReservations lists a member's reservations, newest first
func (s *ReservationService) MemberReservations(ctx context.Context, actor domain.Actor, memberID uint) ([]*models.Reservation, error) {
	if !actor.Owns(memberID) && !actor.Can(domain.CapManageCirculation) {
		return nil, domain.ErrForbidden
	}
	return s.repos.Reservations.ListByMember(ctx, memberID)
}
