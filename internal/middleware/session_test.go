package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultcore/vaultcore/internal/auth"
	"github.com/vaultcore/vaultcore/internal/identity"
	"github.com/vaultcore/vaultcore/internal/logging"
)

func newSessionApp(t *testing.T) (*fiber.App, *auth.Service) {
	t.Helper()
	sessions, err := auth.NewService(auth.Options{Secret: "0123456789abcdef0123456789abcdef"}, auth.NewMemoryStore(nil), nil, nil, logging.Discard())
	require.NoError(t, err)

	app := fiber.New()
	app.Use(SessionAuth(sessions))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalUsername).(string) + ":" + c.Locals(LocalRole).(string))
	})
	app.Get("/admin", RequireRole("ADMIN"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, sessions
}

func TestSessionAuth(t *testing.T) {
	app, sessions := newSessionApp(t)
	pair, err := sessions.Issue(context.Background(), identity.User{ID: "u-1", Username: "john_doe", Role: identity.RoleUser})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+pair.AccessToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "john_doe:USER", string(body))

	req = httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+pair.AccessToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	require.NoError(t, sessions.Revoke(context.Background(), pair.SessionID))
	req = httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+pair.AccessToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
