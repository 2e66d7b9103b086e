package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/auth"
	"github.com/vaultcore/vaultcore/internal/bootstrap"
	"github.com/vaultcore/vaultcore/internal/config"
	"github.com/vaultcore/vaultcore/internal/identity"
	"github.com/vaultcore/vaultcore/internal/ledger"
	"github.com/vaultcore/vaultcore/internal/middleware"
	"github.com/vaultcore/vaultcore/internal/query"
	"github.com/vaultcore/vaultcore/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Services *bootstrap.Services
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Services == nil {
		return fmt.Errorf("services are required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := d.Services

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.LocalRequestID).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	sessionAuth := middleware.SessionAuth(s.Sessions)

	// Public routes
	identityHandler := identity.NewHandler(s.Identity)
	RegisterIdentityRoutes(api, identityHandler)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit, d.Logger)
	RegisterAuthRoutes(api, auth.NewHandler(s.Sessions), rateLimiter, sessionAuth)

	// Protected routes
	protected := api.Group("", sessionAuth)
	protected.Get("/me", identityHandler.Me)
	RegisterAccountRoutes(protected, account.NewHandler(s.Accounts), query.NewHandler(s.Query))
	RegisterLedgerRoutes(protected, ledger.NewHandler(s.Ledger))

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterTransferRoutes(protected, transfer.NewHandler(s.Transfers), idempotency)

	return nil
}
