package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/radiocast/backend/internal/application"
	"github.com/radiocast/backend/internal/domain"
)

// RecordHandler handles HTTP requests for relay and recording jobs
type RecordHandler struct {
	service *application.RecordService
}

// NewRecordHandler creates a new record handler
func NewRecordHandler(service *application.RecordService) *RecordHandler {
	return &RecordHandler{service: service}
}

// List returns the live jobs with their workers
func (h *RecordHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"data": h.service.List(),
	})
}

// Create starts relaying a source URL, and recording it when asked
func (h *RecordHandler) Create(c *fiber.Ctx) error {
	var req application.InsertRecordInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	info, err := h.service.Insert(c.UserContext(), req)
	if err != nil {
		return errorResponse(c, err)
	}

	status := fiber.StatusOK
	if info.Status == domain.InsertCreated {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"data": info,
	})
}

// Delete terminates every worker of the URL given in the url query parameter
func (h *RecordHandler) Delete(c *fiber.Ctx) error {
	url := c.Query("url")
	if err := h.service.Terminate(url); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "termination requested",
	})
}

// Logs returns the buffered ffmpeg output of one worker
func (h *RecordHandler) Logs(c *fiber.Ctx) error {
	role := domain.WorkerRole(c.Query("role", string(domain.WorkerRoleRelay)))
	lines, err := h.service.Logs(c.Query("url"), role)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"data": lines,
	})
}
