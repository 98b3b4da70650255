package handlers

import (
	"school-library/internal/core/services"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// PolicyHandler handles the lending policy endpoints
type PolicyHandler struct {
	policyService *services.PolicyService
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(policyService *services.PolicyService) *PolicyHandler {
	return &PolicyHandler{policyService: policyService}
}

// Get returns the current lending policy
// @Summary Get policy
// @Tags Policy
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=domain.Policy}
// @Router /policy [get]
func (h *PolicyHandler) Get(c *fiber.Ctx) error {
	policy, err := h.policyService.Current(c.UserContext())
	if err != nil {
		return fail(c, err, "Failed to load policy")
	}
	return response.Success(c, "Policy retrieved successfully", policy)
}

// Update changes the lending policy. Omitted fields keep their value and
// the new rules apply to the next decision.
// @Summary Update policy
// @Tags Policy
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.UpdatePolicyInput true "Policy fields"
// @Success 200 {object} response.Response{data=domain.Policy}
// @Failure 400 {object} response.Response
// @Router /policy [put]
func (h *PolicyHandler) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	var req services.UpdatePolicyInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	policy, err := h.policyService.Update(c.UserContext(), actor, &req)
	if err != nil {
		return fail(c, err, "Failed to update policy")
	}
	return response.Success(c, "Policy updated successfully", policy)
}
