package middleware

import (
	"log/slog"
	"time"

	"snapgram/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// ContextMiddleware copies the request id and client id from Fiber locals into
// the request context so the context-aware logger picks them up in the stores.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = observability.WithRequestID(ctx, rid)
		}
		if cid, ok := c.Locals("clientID").(string); ok && cid != "" {
			ctx = observability.WithClientID(ctx, cid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using slog.
func StructuredLogger(logger *slog.Logger) fiber.Handler {
	if logger == nil {
		logger = observability.Logger()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := []any{
			slog.Int("status", c.Response().StatusCode()),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		if cid := ClientID(c); cid != "" {
			fields = append(fields, slog.String("client_id", cid))
		}

		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
			logger.ErrorContext(c.UserContext(), "request failed", fields...)
		} else {
			logger.InfoContext(c.UserContext(), "request processed", fields...)
		}
		return err
	}
}
