package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// LocalRequestID is the Locals key holding the request identifier.
const LocalRequestID = "request_id"

const maxRequestIDLen = 128

// RequestID accepts a caller-supplied X-Request-ID when it is short and printable, otherwise
// assigns a new one. The identifier is echoed on the response and stored in Locals.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(LocalRequestID, reqID)
		return c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
