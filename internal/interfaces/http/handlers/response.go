package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/radiocast/backend/internal/application"
	"github.com/radiocast/backend/internal/domain"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrInvalidRecord),
		errors.Is(err, application.ErrInvalidStation):
		return fiber.StatusBadRequest
	case errors.Is(err, application.ErrRecordNotFound),
		errors.Is(err, domain.ErrStationNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrStationExists):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
