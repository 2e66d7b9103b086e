// Package bootstrap assembles the domain services from configuration and infrastructure handles.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/auth"
	"github.com/vaultcore/vaultcore/internal/config"
	"github.com/vaultcore/vaultcore/internal/identity"
	"github.com/vaultcore/vaultcore/internal/infra"
	"github.com/vaultcore/vaultcore/internal/ledger"
	"github.com/vaultcore/vaultcore/internal/notification"
	"github.com/vaultcore/vaultcore/internal/provision"
	"github.com/vaultcore/vaultcore/internal/query"
	"github.com/vaultcore/vaultcore/internal/transfer"
)

// Deps are the handles the services are built on. DB and Cache may be nil in development,
// in which case in-memory backends take their place.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// Services is the wired application core.
type Services struct {
	Identity    *identity.Service
	Accounts    *account.Service
	Ledger      *ledger.Service
	Sessions    *auth.Service
	Query       *query.Service
	Transfers   *transfer.Service
	Provisioner *provision.Provisioner
}

// Build wires every service. Outside development it refuses to run without Postgres and Redis.
func Build(d Deps) (*Services, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}

	var (
		accountRepo   account.Repository
		ledgerBackend ledger.Ledger
		identityRepo  identity.Repository
		sessionStore  auth.Store
	)
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		accountRepo = account.NewMemoryRepository()
		ledgerBackend = ledger.NewInMemory(accountRepo)
		identityRepo = identity.NewMemoryRepository()
	}
	if d.Cache != nil {
		sessionStore = auth.NewRedisStore(d.Cache)
	} else {
		sessionStore = auth.NewMemoryStore(nil)
	}

	hasher, err := identity.NewHasher(d.Cfg.BcryptCost, d.Cfg.HashConcurrency)
	if err != nil {
		return nil, err
	}
	identitySvc := identity.NewService(identityRepo, hasher, logger.With(slog.String("component", "identity")))
	ledgerSvc := ledger.NewService(ledgerBackend, notifier, logger.With(slog.String("component", "ledger")))
	accountSvc := account.NewService(accountRepo, ledgerSvc.Guard(), notifier, logger.With(slog.String("component", "account")))
	sessions, err := auth.NewService(auth.Options{
		Secret:     d.Cfg.JWTSecret,
		AccessTTL:  d.Cfg.AccessTokenTTL,
		RefreshTTL: d.Cfg.RefreshTokenTTL,
	}, sessionStore, identitySvc, notifier, logger.With(slog.String("component", "session")))
	if err != nil {
		return nil, err
	}

	return &Services{
		Identity:    identitySvc,
		Accounts:    accountSvc,
		Ledger:      ledgerSvc,
		Sessions:    sessions,
		Query:       query.NewService(accountSvc, ledgerSvc),
		Transfers:   transfer.NewService(ledgerSvc, notifier, logger.With(slog.String("component", "transfer"))),
		Provisioner: provision.New(identitySvc, accountSvc, ledgerSvc, logger.With(slog.String("component", "provision"))),
	}, nil
}

// Seed applies the plan at path through the provisioner.
func (s *Services) Seed(ctx context.Context, path string) (provision.Report, error) {
	plan, err := provision.LoadFile(path)
	if err != nil {
		return provision.Report{}, err
	}
	return s.Provisioner.Apply(ctx, plan)
}

// NewNotifier returns the logger notifier, fanned out to Kafka when brokers are configured.
// The returned close function releases the Kafka writer.
func NewNotifier(cfg config.Config, logger *slog.Logger) (notification.Notifier, func() error, error) {
	base := notification.NewLoggerNotifier(logger)
	if len(cfg.KafkaBrokers) == 0 {
		return base, func() error { return nil }, nil
	}
	writer, err := infra.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	return notification.Fanout(base, notification.NewKafkaNotifier(writer)), writer.Close, nil
}
