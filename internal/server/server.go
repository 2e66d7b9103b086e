package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/bootstrap"
	"github.com/vaultcore/vaultcore/internal/config"
	"github.com/vaultcore/vaultcore/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	services *bootstrap.Services
}

// New builds the services and delegates route wiring to routes.Setup.
func New(deps bootstrap.Deps) (*Server, error) {
	services, err := bootstrap.Build(deps)
	if err != nil {
		return nil, err
	}

	cfg := deps.Cfg
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		DisableStartupMessage: !cfg.IsDev(),
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: deps.DB, Cache: deps.Cache, Logger: deps.Logger, Services: services}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, services: services}, nil
}

// Services exposes the wired core, e.g. for seeding at startup.
func (s *Server) Services() *bootstrap.Services {
	return s.services
}

// App returns the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
