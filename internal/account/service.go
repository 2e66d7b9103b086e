package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/notification"
)

// Service is the Account Registry: it owns identity, type, currency and status of accounts.
type Service struct {
	repo     Repository
	guard    Guard
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the registry. guard may be nil, in which case status changes
// go straight to the repository.
func NewService(repo Repository, guard Guard, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, guard: guard, notifier: notifier, logger: logger, now: time.Now}
}

// Repository exposes the underlying store to the ledger, the only other writer.
func (s *Service) Repository() Repository {
	return s.repo
}

// OpenInput captures what is needed to provision an account.
type OpenInput struct {
	OwnerID  string
	Type     Type
	Currency string
	Metadata Metadata
}

// Open provisions an ACTIVE account with a zero balance and a freshly assigned number.
func (s *Service) Open(ctx context.Context, input OpenInput) (Account, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Account{}, fmt.Errorf("%w: owner id must be a uuid", ErrValidation)
	}
	if input.Type.ordinal() == 0 {
		return Account{}, fmt.Errorf("%w: unknown account type %q", ErrValidation, input.Type)
	}
	currency, err := NormalizeCurrency(input.Currency)
	if err != nil {
		return Account{}, err
	}
	if err := input.Metadata.validate(input.Type); err != nil {
		return Account{}, err
	}

	number, err := s.repo.NextNumber(ctx, input.Type)
	if err != nil {
		return Account{}, fmt.Errorf("assign account number: %w", err)
	}
	if err := ValidateNumber(number, input.Type); err != nil {
		return Account{}, err
	}

	a := Account{
		ID:        uuid.NewString(),
		Number:    number,
		OwnerID:   input.OwnerID,
		Type:      input.Type,
		Currency:  currency,
		Balance:   decimal.Zero,
		Status:    StatusActive,
		Metadata:  input.Metadata,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return Account{}, err
	}

	s.logger.Info("account opened",
		slog.String("account_id", a.ID),
		slog.String("account_number", a.Number),
		slog.String("owner_id", a.OwnerID),
		slog.String("type", string(a.Type)),
	)
	return a, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

// ListByOwner returns the owner's accounts in creation order.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// SetStatus performs an administrative status change. Setting the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, id string, next Status) (Account, error) {
	var updated Account
	change := func(ctx context.Context, repo Repository) error {
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == next {
			updated = current
			return nil
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, next)
		}
		updated, err = repo.SetStatus(ctx, id, next)
		return err
	}

	var err error
	if s.guard != nil {
		err = s.guard.WithAccountLock(ctx, id, change)
	} else {
		err = change(ctx, s.repo)
	}
	if err != nil {
		return Account{}, err
	}

	s.logger.Info("account status changed", slog.String("account_id", id), slog.String("status", string(updated.Status)))
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindAccountStatusChanged,
			Destination: updated.OwnerID,
			Key:         updated.ID,
			Body:        fmt.Sprintf("Account %s is now %s", updated.Number, updated.Status),
		}); err != nil {
			s.logger.Warn("status notification failed", slog.String("account_id", id), slog.Any("error", err))
		}
	}
	return updated, nil
}
