package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/swap-engine/internal/access"
	"github.com/Checker-Finance/swap-engine/internal/agent"
	"github.com/Checker-Finance/swap-engine/internal/engine"
	"github.com/Checker-Finance/swap-engine/internal/service"
)

// statusFor maps an engine or registry failure to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, agent.ErrNotFound), errors.Is(err, agent.ErrNotAssigned):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrState),
		errors.Is(err, agent.ErrAlreadyRegistered),
		errors.Is(err, agent.ErrAlreadyAssigned),
		errors.Is(err, agent.ErrInactive),
		errors.Is(err, access.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnauthorized),
		errors.Is(err, access.ErrNotOwner),
		errors.Is(err, access.ErrNotOperator),
		errors.Is(err, access.ErrBlocked),
		errors.Is(err, access.ErrPaused):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrTransfer):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}
