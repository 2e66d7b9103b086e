package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vaultcore/vaultcore/internal/bootstrap"
	"github.com/vaultcore/vaultcore/internal/config"
	"github.com/vaultcore/vaultcore/internal/infra"
	"github.com/vaultcore/vaultcore/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "Administer a VaultCore deployment",
	Long: `vaultctl runs administrative tasks against the same Postgres and Redis
the API uses. Configuration comes from the environment (and .env), exactly as for the API.

Examples:
  vaultctl migrate
  vaultctl provision -f configs/seed.yaml
  vaultctl account status 6f1c... SUSPENDED
  vaultctl session revoke 01J...`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// env holds the handles a subcommand asked for. close releases them.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	db     *pgxpool.Pool
	cache  *redis.Client
}

func (e *env) close() {
	if e.db != nil {
		e.db.Close()
	}
	if e.cache != nil {
		_ = e.cache.Close()
	}
}

func (e *env) services() (*bootstrap.Services, error) {
	return bootstrap.Build(bootstrap.Deps{Cfg: e.cfg, DB: e.db, Cache: e.cache, Logger: e.logger})
}

// connect loads configuration and opens Postgres and Redis. Redis is opened whenever it is
// configured. Administrative commands never fall back to in-memory storage.
func connect(ctx context.Context, needDB, needCache bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e := &env{cfg: cfg, logger: logging.New(cfg.LogLevel, cfg.LogFormat)}

	if needDB {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
		if e.db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	if needCache && cfg.RedisURL == "" {
		e.close()
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.RedisURL != "" {
		if e.cache, err = infra.NewRedisClient(ctx, cfg.RedisURL); err != nil {
			e.close()
			return nil, err
		}
	}
	return e, nil
}
