package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/radiocast/backend/internal/domain"
)

// SystemInfoSource provides host resource snapshots
type SystemInfoSource interface {
	GetSystemInfo() (*domain.SystemInfo, error)
}

// SystemHandler handles system information requests
type SystemHandler struct {
	source SystemInfoSource
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(source SystemInfoSource) *SystemHandler {
	return &SystemHandler{source: source}
}

// GetSystemInfo returns current system information
func (h *SystemHandler) GetSystemInfo(c *fiber.Ctx) error {
	info, err := h.source.GetSystemInfo()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to read system info: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data": info,
	})
}
