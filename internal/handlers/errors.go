package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"hirecorrecto/interview-orchestrator/internal/services"
)

// statusFor maps orchestrator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidSession):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrUnknownQuestion), errors.Is(err, services.ErrInvalidContext):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientData):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrProviderUnavailable), errors.Is(err, services.ErrQuestionGenerationFailed):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code >= fiber.StatusInternalServerError {
		log.Printf("❌ %s %s failed: %v\n", c.Method(), c.Path(), err)
	}

	body := fiber.Map{"error": err.Error()}
	var pe *services.ProviderError
	if errors.As(err, &pe) {
		body["attempted_models"] = pe.Attempted
	}
	return c.Status(code).JSON(body)
}
