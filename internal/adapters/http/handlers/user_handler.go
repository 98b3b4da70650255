package handlers

import (
	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/services"
	"school-library/internal/pkg/pagination"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// UserHandler handles profile and account management endpoints
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// DeleteAccountRequest represents delete account request body
type DeleteAccountRequest struct {
	CurrentPassword string `json:"current_password"`
}

// UpdateRoleRequest represents role change request body
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// GetProfile returns the caller's account and member record
// @Summary Get profile
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /profile [get]
func (h *UserHandler) GetProfile(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	user, err := h.userService.Profile(c.UserContext(), actor)
	if err != nil {
		return fail(c, err, "Failed to get profile")
	}

	return response.Success(c, "Profile retrieved successfully", fiber.Map{
		"user": user.ToResponse(),
	})
}

// UpdateProfile changes username, email or phone
// @Summary Update profile
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.UpdateProfileInput true "Profile fields"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /profile [put]
func (h *UserHandler) UpdateProfile(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	var req services.UpdateProfileInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	user, err := h.userService.UpdateProfile(c.UserContext(), actor, &req)
	if err != nil {
		return fail(c, err, "Failed to update profile")
	}

	return response.Success(c, "Profile updated successfully", fiber.Map{
		"user": user.ToResponse(),
	})
}

// ChangePassword changes the caller's password
// @Summary Change password
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.ChangePasswordInput true "Passwords"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /profile/password [put]
func (h *UserHandler) ChangePassword(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	var req services.ChangePasswordInput
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.userService.ChangePassword(c.UserContext(), actor, &req); err != nil {
		return fail(c, err, "Failed to change password")
	}

	return response.Success(c, "Password changed successfully", nil)
}

// UploadAvatar replaces the caller's avatar image
// @Summary Upload avatar
// @Tags Profile
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param avatar formData file true "Image file"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /profile/avatar [post]
func (h *UserHandler) UploadAvatar(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	file, err := c.FormFile("avatar")
	if err != nil {
		return response.BadRequest(c, "avatar file is required")
	}
	f, err := file.Open()
	if err != nil {
		return response.BadRequest(c, "Invalid upload")
	}
	defer f.Close()

	user, err := h.userService.SetAvatar(c.UserContext(), actor, file.Filename, f)
	if err != nil {
		return fail(c, err, "Failed to upload avatar")
	}

	return response.Success(c, "Avatar updated successfully", fiber.Map{
		"user": user.ToResponse(),
	})
}

// DeleteAccount deletes the caller's account and member history
// @Summary Delete account
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body DeleteAccountRequest true "Password confirmation"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /profile [delete]
func (h *UserHandler) DeleteAccount(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	var req DeleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.userService.DeleteAccount(c.UserContext(), actor, req.CurrentPassword); err != nil {
		return fail(c, err, "Failed to delete account")
	}

	return response.Success(c, "Account deleted", nil)
}

// ListUsers handles listing all users (Admin only)
// @Summary List users
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20)
// @Param role query string false "member, staff or admin"
// @Param search query string false "Username or email"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /users [get]
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	params := pagination.GetParams(c)
	filter := repositories.UserFilter{
		Role:   c.Query("role"),
		Search: c.Query("search"),
	}

	users, total, err := h.userService.ListUsers(c.UserContext(), actor, filter, params.Offset, params.Limit)
	if err != nil {
		return fail(c, err, "Failed to list users")
	}

	out := make([]*models.UserResponse, len(users))
	for i, u := range users {
		out[i] = u.ToResponse()
	}
	return response.Success(c, "Users retrieved successfully", pagination.NewResponse(out, params, total))
}

// UpdateRole changes a user's role (Admin only)
// @Summary Change user role
// @Tags Users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param body body UpdateRoleRequest true "New role"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /users/{id}/role [put]
func (h *UserHandler) UpdateRole(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	id, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid user ID")
	}

	var req UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	user, err := h.userService.SetRole(c.UserContext(), actor, id, req.Role)
	if err != nil {
		return fail(c, err, "Failed to update role")
	}

	return response.Success(c, "Role updated successfully", fiber.Map{
		"user": user.ToResponse(),
	})
}
