package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vaultcore/vaultcore/internal/bootstrap"
	"github.com/vaultcore/vaultcore/internal/config"
	"github.com/vaultcore/vaultcore/internal/infra"
	"github.com/vaultcore/vaultcore/internal/logging"
	"github.com/vaultcore/vaultcore/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := infra.Migrate(ctx, db); err != nil {
			logger.Error("migrate", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else if cfg.IsDev() {
		var stop func()
		cache, stop, err = infra.NewEmbeddedRedis()
		if err != nil {
			logger.Error("start embedded redis", "error", err)
			os.Exit(1)
		}
		defer stop()
		logger.Warn("REDIS_URL not set, using embedded redis")
	}

	notifier, closeNotifier, err := bootstrap.NewNotifier(cfg, logger)
	if err != nil {
		logger.Error("build notifier", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			logger.Warn("close notifier", "error", err)
		}
	}()

	srv, err := server.New(bootstrap.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Notifier: notifier,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	if cfg.SeedFile != "" {
		report, err := srv.Services().Seed(ctx, cfg.SeedFile)
		if err != nil {
			logger.Error("apply seed file", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		logger.Info("seed file applied", "path", cfg.SeedFile, "report", report)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
