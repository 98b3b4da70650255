package handlers

import (
	"bytes"

	"school-library/internal/core/services"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ReportHandler handles table exports
type ReportHandler struct {
	reportService *services.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *services.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Export downloads a table as CSV, JSON or PDF
// @Summary Export table
// @Tags Reports
// @Produce text/csv,application/json,application/pdf
// @Security BearerAuth
// @Param table path string true "members, items, loans or reservations"
// @Param format query string false "csv, json or pdf" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /reports/{table} [get]
func (h *ReportHandler) Export(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return fail(c, err, "")
	}

	format, err := services.ParseReportFormat(c.Query("format"))
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	// render fully before writing headers so failures still get the envelope
	table := c.Params("table")
	var buf bytes.Buffer
	if err := h.reportService.Export(c.UserContext(), actor, table, format, &buf); err != nil {
		return fail(c, err, "Failed to export report")
	}

	c.Attachment(h.reportService.Filename(table, format))
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Send(buf.Bytes())
}
