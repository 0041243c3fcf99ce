package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the request ID between services.
	RequestIDHeader = "X-Request-ID"
	// RequestIDLocalKey is where the ID is stashed in Fiber's context locals.
	RequestIDLocalKey = "request_id"
)

// RequestID guarantees every request has an ID: an incoming X-Request-ID is
// preserved, otherwise a fresh UUID is minted. The value is stored in context
// locals for the logger and error payloads, and echoed on the response header.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(RequestIDLocalKey, id)
		c.Set(RequestIDHeader, id)

		return c.Next()
	}
}
