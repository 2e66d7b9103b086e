package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/ledger"
	"github.com/vaultcore/vaultcore/internal/middleware"
)

// RegisterLedgerRoutes wires posting and transaction lookup endpoints.
func RegisterLedgerRoutes(r fiber.Router, h *ledger.Handler) {
	r.Post("/ledger/transactions", h.Post)
	r.Get("/ledger/transactions/:transactionId", h.Get)
	r.Post("/ledger/transactions/:transactionId/reverse", middleware.RequireRole("ADMIN"), h.Reverse)
}
