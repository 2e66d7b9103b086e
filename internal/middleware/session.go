package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/auth"
)

// Locals keys populated by SessionAuth.
const (
	LocalUserID    = "user_id"
	LocalUsername  = "username"
	LocalRole      = "role"
	LocalSessionID = "session_id"
)

// SessionAuth returns a middleware that validates bearer access tokens against the session manager.
func SessionAuth(sessions *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		id, err := sessions.Validate(c.UserContext(), token)
		if err != nil {
			return auth.StatusError(err)
		}

		c.Locals(LocalUserID, id.UserID)
		c.Locals(LocalUsername, id.Username)
		c.Locals(LocalRole, id.Role)
		c.Locals(LocalSessionID, id.SessionID)
		return c.Next()
	}
}

// RequireRole rejects callers whose access token does not carry role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if got, _ := c.Locals(LocalRole).(string); got != role {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
