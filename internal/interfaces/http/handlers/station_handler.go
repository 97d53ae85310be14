package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/radiocast/backend/internal/application"
)

// StationHandler handles HTTP requests for stations
type StationHandler struct {
	service *application.StationService
}

// NewStationHandler creates a new station handler
func NewStationHandler(service *application.StationService) *StationHandler {
	return &StationHandler{service: service}
}

// UpdateStationRequest renames a station and replaces its description
type UpdateStationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateStationURLRequest moves a station to another source
type UpdateStationURLRequest struct {
	URL string `json:"url"`
}

// List returns all stations
func (h *StationHandler) List(c *fiber.Ctx) error {
	stations, err := h.service.ListStations(c.UserContext())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"data": stations,
	})
}

// Get returns a single station
func (h *StationHandler) Get(c *fiber.Ctx) error {
	station, err := h.service.GetStation(c.UserContext(), c.Params("name"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"data": station,
	})
}

// Create publishes a new station
func (h *StationHandler) Create(c *fiber.Ctx) error {
	var req application.CreateStationInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	station, created, err := h.service.CreateStation(c.UserContext(), req)
	if err != nil {
		return errorResponse(c, err)
	}

	if !created {
		return c.JSON(fiber.Map{
			"data":    station,
			"message": "station already exists",
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": station,
	})
}

// Update edits a station's name and description
func (h *StationHandler) Update(c *fiber.Ctx) error {
	var req UpdateStationRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	station, err := h.service.UpdateStationDetails(c.UserContext(), c.Params("name"), req.Name, req.Description)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"data": station,
	})
}

// UpdateURL moves a station to a new source URL
func (h *StationHandler) UpdateURL(c *fiber.Ctx) error {
	var req UpdateStationURLRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	station, err := h.service.UpdateStationURL(c.UserContext(), c.Params("name"), req.URL)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"data": station,
	})
}

// Delete stops and removes a station
func (h *StationHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteStation(c.UserContext(), c.Params("name")); err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "station deleted",
	})
}
