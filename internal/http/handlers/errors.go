package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"slabtrack/internal/domain"
	applog "slabtrack/internal/log"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var stateErr *domain.InvalidStateError
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &stateErr):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrUpstream):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// fail logs err under action and writes a JSON error body. Internal errors get a generic message.
func fail(c *fiber.Ctx, action string, err error) error {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case fiber.StatusInternalServerError:
		applog.Error(c, action, err, nil)
		msg = "Something went wrong. Please try again."
	case fiber.StatusBadGateway:
		applog.Warn(c, action, err, nil)
		msg = "upstream service unavailable"
	case fiber.StatusNotFound:
		msg = "not found"
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// ErrorHandler is the app-level fallback for errors no handler turned into a response.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong. Please try again."})
}
