package handlers

import (
	"school-library/internal/core/services"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// DashboardHandler handles dashboard and statistics endpoints
type DashboardHandler struct {
	statisticsService *services.StatisticsService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(statisticsService *services.StatisticsService) *DashboardHandler {
	return &DashboardHandler{
		statisticsService: statisticsService,
	}
}

// GetStaffDashboard returns library-wide totals
// @Summary Staff dashboard
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=services.StaffDashboard}
// @Failure 403 {object} response.Response
// @Router /dashboard [get]
func (h *DashboardHandler) GetStaffDashboard(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	data, err := h.statisticsService.StaffDashboard(c.UserContext(), actor)
	if err != nil {
		return fail(c, err, "Failed to get dashboard")
	}
	return response.Success(c, "Dashboard retrieved successfully", data)
}

// GetMyDashboard returns the caller's own totals
// @Summary My dashboard
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=services.MemberDashboard}
// @Failure 403 {object} response.Response
// @Router /me/dashboard [get]
func (h *DashboardHandler) GetMyDashboard(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	data, err := h.statisticsService.MemberDashboard(c.UserContext(), actor)
	if err != nil {
		return fail(c, err, "Failed to get dashboard")
	}
	return response.Success(c, "Dashboard retrieved successfully", data)
}

// GetStatistics returns loan activity for a period
// @Summary Library statistics
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Param period query string false "week, month, quarter or year" default(month)
// @Success 200 {object} response.Response{data=services.LibraryStatistics}
// @Failure 403 {object} response.Response
// @Router /statistics [get]
func (h *DashboardHandler) GetStatistics(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	period := services.ParsePeriod(c.Query("period"))
	data, err := h.statisticsService.Statistics(c.UserContext(), actor, period)
	if err != nil {
		return fail(c, err, "Failed to get statistics")
	}
	return response.Success(c, "Statistics retrieved successfully", data)
}

// GetMyStatistics returns the caller's reading statistics
// @Summary My statistics
// @Tags Dashboard
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=services.MemberStatistics}
// @Router /me/statistics [get]
func (h *DashboardHandler) GetMyStatistics(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	data, err := h.statisticsService.MemberStatistics(c.UserContext(), actor)
	if err != nil {
		return fail(c, err, "Failed to get statistics")
	}
	return response.Success(c, "Statistics retrieved successfully", data)
}
