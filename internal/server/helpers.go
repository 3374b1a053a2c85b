package server

import (
	"errors"
	"time"

	"snapgram/internal/middleware"
	"snapgram/internal/models"
	"snapgram/internal/state"

	"github.com/gofiber/fiber/v2"
)

// statusFor maps an AppError code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeInvalidCredentials, models.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeDuplicateEmail, models.CodeDuplicateUsername:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondWithError writes err as {"error", "code"} with the status derived from its code.
// Errors that are not AppErrors are reported as INTERNAL_ERROR. The cause of an
// internal error is logged by the store and never sent to the client.
func respondWithError(c *fiber.Ctx, err error) error {
	code := models.CodeOf(err)
	response := models.ErrorResponse{
		Error: models.MessageOf(err),
		Code:  code,
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		response.Error = "Internal error"
	} else if appErr.Err != nil && code != models.CodeInternal {
		response.Details = appErr.Err.Error()
	}
	return c.Status(statusFor(code)).JSON(response)
}

// clientState returns the state owner of the calling client.
func (s *Server) clientState(c *fiber.Ctx) (*state.Store, error) {
	clientID := middleware.ClientID(c)
	if clientID == "" {
		return nil, models.NewUnauthenticatedError("client token required")
	}
	st, err := s.registry.Get(c.UserContext(), clientID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return st, nil
}

// rateLimit returns the limiter for name: Redis-backed when a Redis client is
// configured, in-process otherwise, and a pass-through when limiting is off.
func (s *Server) rateLimit(name string) fiber.Handler {
	limit := s.config.RateLimitPerMinute
	switch {
	case limit <= 0:
		return func(c *fiber.Ctx) error { return c.Next() }
	case s.redis != nil:
		return middleware.RateLimit(s.redis, limit, time.Minute, name)
	default:
		return middleware.LocalRateLimit(limit, time.Minute)
	}
}
