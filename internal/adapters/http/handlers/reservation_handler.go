package handlers

import (
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/services"
	"school-library/internal/pkg/pagination"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ReservationHandler handles reservation endpoints
type ReservationHandler struct {
	reservationService *services.ReservationService
}

// NewReservationHandler creates a new reservation handler
func NewReservationHandler(reservationService *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

// Create places a reservation
// @Summary Reserve item
// @Tags Reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.ReserveInput true "Reservation request"
// @Success 201 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /reservations [post]
func (h *ReservationHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	var req services.ReserveInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.ItemID == 0 {
		return response.BadRequest(c, "item_id is required")
	}

	reservation, err := h.reservationService.Reserve(c.UserContext(), actor, &req)
	if err != nil {
		return fail(c, err, "Failed to reserve item")
	}
	return response.Created(c, "Item reserved successfully", reservation)
}

// Cancel cancels an active reservation
// @Summary Cancel reservation
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reservation ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reservation ID")
	}

	reservation, err := h.reservationService.Cancel(c.UserContext(), actor, id)
	if err != nil {
		return fail(c, err, "Failed to cancel reservation")
	}
	return response.Success(c, "Reservation cancelled", reservation)
}

// Fulfill turns a reservation into a loan
// @Summary Fulfill reservation
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param id path int true "Reservation ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /reservations/{id}/fulfill [post]
func (h *ReservationHandler) Fulfill(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid reservation ID")
	}

	reservation, loan, err := h.reservationService.Fulfill(c.UserContext(), actor, id)
	if err != nil {
		return fail(c, err, "Failed to fulfill reservation")
	}
	return response.Success(c, "Reservation fulfilled", fiber.Map{
		"reservation": reservation,
		"loan":        loan,
	})
}

// List handles listing reservations (staff)
// @Summary List reservations
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param member_id query int false "Member"
// @Param item_id query int false "Item"
// @Param status query string false "Active, Fulfilled or Cancelled"
// @Success 200 {object} response.Response
// @Router /reservations [get]
func (h *ReservationHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	filter := repositories.ReservationFilter{
		MemberID: queryID(c, "member_id"),
		ItemID:   queryID(c, "item_id"),
		Status:   c.Query("status"),
	}

	reservations, total, err := h.reservationService.List(c.UserContext(), filter, params.Offset, params.Limit)
	if err != nil {
		return fail(c, err, "Failed to list reservations")
	}
	return response.Success(c, "Reservations retrieved successfully", pagination.NewResponse(reservations, params, total))
}

// MyReservations returns the caller's reservations
// @Summary My reservations
// @Tags Reservations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /me/reservations [get]
func (h *ReservationHandler) MyReservations(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	if actor.MemberID == 0 {
		return fail(c, services.ErrNoLinkedMember, "")
	}

	reservations, err := h.reservationService.MemberReservations(c.UserContext(), actor, actor.MemberID)
	if err != nil {
		return fail(c, err, "Failed to list reservations")
	}
	return response.Success(c, "Reservations retrieved successfully", reservations)
}
