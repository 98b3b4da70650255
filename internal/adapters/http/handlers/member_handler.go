package handlers

import (
	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/services"
	"school-library/internal/pkg/pagination"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// MemberHandler handles the member registry (staff)
type MemberHandler struct {
	memberService      *services.MemberService
	circulationService *services.CirculationService
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(memberService *services.MemberService, circulationService *services.CirculationService) *MemberHandler {
	return &MemberHandler{
		memberService:      memberService,
		circulationService: circulationService,
	}
}

// List handles listing members
// @Summary List members
// @Tags Members
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param search query string false "Name, email or phone"
// @Param status query string false "Active or Inactive"
// @Param class_group query string false "Class"
// @Param borrowers query bool false "Only members with loans"
// @Success 200 {object} response.Response
// @Router /members [get]
func (h *MemberHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	params := pagination.GetParams(c)
	filter := repositories.MemberFilter{
		Search:        c.Query("search"),
		Status:        c.Query("status"),
		ClassGroup:    c.Query("class_group"),
		BorrowersOnly: c.QueryBool("borrowers"),
	}

	members, total, err := h.memberService.List(c.UserContext(), actor, filter, params.Offset, params.Limit)
	if err != nil {
		return fail(c, err, "Failed to list members")
	}

	out := make([]*models.MemberResponse, len(members))
	for i, m := range members {
		out[i] = m.ToResponse()
	}
	return response.Success(c, "Members retrieved successfully", pagination.NewResponse(out, params, total))
}

// Get handles getting a member by ID
// @Summary Get member
// @Tags Members
// @Produce json
// @Security BearerAuth
// @Param id path int true "Member ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /members/{id} [get]
func (h *MemberHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid member ID")
	}

	member, err := h.memberService.Get(c.UserContext(), actor, id)
	if err != nil {
		return fail(c, err, "Failed to get member")
	}
	return response.Success(c, "Member retrieved successfully", member.ToResponse())
}

// Create registers a member, optionally with a login account
// @Summary Create member
// @Tags Members
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.CreateMemberInput true "Member data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /members [post]
func (h *MemberHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	var req services.CreateMemberInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	created, err := h.memberService.Create(c.UserContext(), actor, &req)
	if err != nil {
		return fail(c, err, "Failed to create member")
	}
	return response.Created(c, "Member created successfully", created)
}

// Update changes member fields
// @Summary Update member
// @Tags Members
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Member ID"
// @Param body body services.UpdateMemberInput true "Member fields"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /members/{id} [put]
func (h *MemberHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid member ID")
	}

	var req services.UpdateMemberInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	member, err := h.memberService.Update(c.UserContext(), actor, id, &req)
	if err != nil {
		return fail(c, err, "Failed to update member")
	}
	return response.Success(c, "Member updated successfully", member.ToResponse())
}

// Delete removes a member without open loans or unpaid fines
// @Summary Delete member
// @Tags Members
// @Produce json
// @Security BearerAuth
// @Param id path int true "Member ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /members/{id} [delete]
func (h *MemberHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid member ID")
	}

	if err := h.memberService.Delete(c.UserContext(), actor, id); err != nil {
		return fail(c, err, "Failed to delete member")
	}
	return response.Success(c, "Member deleted successfully", nil)
}

// Loans returns a member's loan history with fines evaluated now
// @Summary Member loan history
// @Tags Members
// @Produce json
// @Security BearerAuth
// @Param id path int true "Member ID"
// @Param persist query bool false "Write recomputed fines back"
// @Success 200 {object} response.Response
// @Router /members/{id}/loans [get]
func (h *MemberHandler) Loans(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid member ID")
	}

	if _, err := h.memberService.Get(c.UserContext(), actor, id); err != nil {
		return fail(c, err, "Failed to get member")
	}

	loans, summary, err := h.circulationService.MemberLoans(c.UserContext(), actor, id, c.QueryBool("persist"))
	if err != nil {
		return fail(c, err, "Failed to list loans")
	}
	return response.Success(c, "Loans retrieved successfully", fiber.Map{
		"loans":   loans,
		"summary": summary,
	})
}
