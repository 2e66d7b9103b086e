package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/middleware"
	"github.com/vaultcore/vaultcore/internal/query"
)

// RegisterAccountRoutes wires account provisioning, read projections and administrative status changes.
func RegisterAccountRoutes(r fiber.Router, accounts *account.Handler, views *query.Handler) {
	r.Get("/accounts", views.Accounts)
	r.Post("/accounts", accounts.Open)
	r.Get("/accounts/:accountId", views.Account)
	r.Get("/accounts/:accountId/history", views.History)
	r.Get("/summary", views.Summary)

	admin := r.Group("/admin", middleware.RequireRole("ADMIN"))
	admin.Post("/accounts/:accountId/status", accounts.SetStatus)
}
