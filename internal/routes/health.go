package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const probeTimeout = 2 * time.Second

// probe reports "ok", "memory" when the dependency is replaced by an in-process backend,
// or the error text.
type probe func(ctx context.Context) string

// RegisterHealthRoutes adds a readiness endpoint covering Postgres and Redis.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	probes := map[string]probe{
		"postgres": func(ctx context.Context) string {
			if d.DB == nil {
				return "memory"
			}
			return errText(d.DB.Ping(ctx))
		},
		"redis": func(ctx context.Context) string {
			if d.Cache == nil {
				return "memory"
			}
			return errText(d.Cache.Ping(ctx).Err())
		},
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
		defer cancel()

		status := http.StatusOK
		results := fiber.Map{}
		for name, check := range probes {
			result := check(ctx)
			if result != "ok" && result != "memory" {
				status = http.StatusServiceUnavailable
			}
			results[name] = result
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    results,
			"env":       d.Cfg.AppEnv,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func errText(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
