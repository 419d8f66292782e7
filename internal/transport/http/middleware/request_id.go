package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/dia/backend/internal/core/services"
)

// RequestID propagates the inbound request id, or a fresh one, into the
// user context and echoes it back on the response.
func RequestID(header string) fiber.Handler {
	if header == "" {
		header = fiber.HeaderXRequestID
	}
	return func(c *fiber.Ctx) error {
		rid := c.Get(header)
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set(header, rid)
		c.Locals("request_id", rid)
		c.SetUserContext(services.WithRequestID(c.UserContext(), rid))
		return c.Next()
	}
}
