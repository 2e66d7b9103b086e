package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/transfer"
)

// RegisterTransferRoutes wires transfer endpoints behind the idempotency middleware when one is given.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, idempotency fiber.Handler) {
	if idempotency != nil {
		r.Post("/transfers", idempotency, h.Create)
		return
	}
	r.Post("/transfers", h.Create)
}
