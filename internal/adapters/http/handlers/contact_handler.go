package handlers

import (
	"school-library/internal/core/services"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ContactHandler handles the public contact form
type ContactHandler struct {
	contactService *services.ContactService
}

// NewContactHandler creates a new contact handler
func NewContactHandler(contactService *services.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

// Submit forwards a contact message to the library
// @Summary Contact the library
// @Tags Contact
// @Accept json
// @Produce json
// @Param body body services.ContactMessage true "Message"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /contact [post]
func (h *ContactHandler) Submit(c *fiber.Ctx) error {
	var req services.ContactMessage
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	sent, err := h.contactService.Submit(c.UserContext(), &req)
	if err != nil {
		return fail(c, err, "Failed to send message")
	}
	if !sent {
		return response.Error(c, fiber.StatusServiceUnavailable, "Your message could not be delivered, please try again later")
	}
	return response.Success(c, "Message sent", nil)
}
