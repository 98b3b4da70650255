package handlers

import (
	"context"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"
	"school-library/internal/core/services"
	"school-library/internal/pkg/pagination"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// LoanHandler handles circulation endpoints
type LoanHandler struct {
	circulationService *services.CirculationService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(circulationService *services.CirculationService) *LoanHandler {
	return &LoanHandler{circulationService: circulationService}
}

// Borrow creates a loan
// @Summary Borrow item
// @Description Members borrow for themselves; staff may set member_id and due_at
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.BorrowInput true "Borrow request"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response "Rejected, see code"
// @Router /loans [post]
func (h *LoanHandler) Borrow(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	var req services.BorrowInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.ItemID == 0 {
		return response.BadRequest(c, "item_id is required")
	}

	loan, err := h.circulationService.Borrow(c.UserContext(), actor, &req)
	if err != nil {
		return fail(c, err, "Failed to borrow item")
	}
	return response.Created(c, "Item borrowed successfully", loan)
}

// Return closes a loan
// @Summary Return item
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/return [post]
func (h *LoanHandler) Return(c *fiber.Ctx) error {
	return h.loanAction(c, h.circulationService.Return, "Item returned successfully", "Failed to return item")
}

// Renew extends a loan
// @Summary Renew loan
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/renew [post]
func (h *LoanHandler) Renew(c *fiber.Ctx) error {
	return h.loanAction(c, h.circulationService.Renew, "Loan renewed successfully", "Failed to renew loan")
}

// Settle records payment of a returned loan's fine
// @Summary Settle fine
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/settle [post]
func (h *LoanHandler) Settle(c *fiber.Ctx) error {
	return h.loanAction(c, h.circulationService.SettleFine, "Fine settled successfully", "Failed to settle fine")
}

// Get returns one loan
// @Summary Get loan
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(c *fiber.Ctx) error {
	return h.loanAction(c, h.circulationService.GetLoan, "Loan retrieved successfully", "Failed to get loan")
}

// List handles listing loans (staff)
// @Summary List loans
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param member_id query int false "Member"
// @Param item_id query int false "Item"
// @Param status query string false "Active or Returned"
// @Param overdue query bool false "Only overdue open loans"
// @Success 200 {object} response.Response
// @Router /loans [get]
func (h *LoanHandler) List(c *fiber.Ctx) error {
	params := pagination.GetParams(c)
	filter := repositories.LoanFilter{
		MemberID: queryID(c, "member_id"),
		ItemID:   queryID(c, "item_id"),
		Status:   c.Query("status"),
		Overdue:  c.QueryBool("overdue"),
	}

	loans, total, err := h.circulationService.ListLoans(c.UserContext(), filter, params.Offset, params.Limit)
	if err != nil {
		return fail(c, err, "Failed to list loans")
	}
	return response.Success(c, "Loans retrieved successfully", pagination.NewResponse(loans, params, total))
}

// MyLoans returns the caller's loans and standing
// @Summary My loans
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /me/loans [get]
func (h *LoanHandler) MyLoans(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	if actor.MemberID == 0 {
		return fail(c, services.ErrNoLinkedMember, "")
	}

	loans, summary, err := h.circulationService.MemberLoans(c.UserContext(), actor, actor.MemberID, false)
	if err != nil {
		return fail(c, err, "Failed to list loans")
	}
	return response.Success(c, "Loans retrieved successfully", fiber.Map{
		"loans":   loans,
		"summary": summary,
	})
}

// RefreshFines persists the current fine of every open loan
// @Summary Refresh fines
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /loans/refresh-fines [post]
func (h *LoanHandler) RefreshFines(c *fiber.Ctx) error {
	updated, err := h.circulationService.RefreshFines(c.UserContext())
	if err != nil {
		return fail(c, err, "Failed to refresh fines")
	}
	return response.Success(c, "Fines refreshed", fiber.Map{
		"updated": updated,
	})
}

// loanAction runs one per-loan operation for the caller
func (h *LoanHandler) loanAction(
	c *fiber.Ctx,
	op func(context.Context, domain.Actor, uint) (*models.Loan, error),
	success, fallback string,
) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}
	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := op(c.UserContext(), actor, id)
	if err != nil {
		return fail(c, err, fallback)
	}
	return response.Success(c, success, loan)
}
