package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/identity"
)

// RegisterIdentityRoutes wires public identity endpoints.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Post("/identity/register", h.Register)
}
