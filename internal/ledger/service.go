package ledger

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/notification"
)

// ReversalPrefix is prepended to the original transaction id when no reversal id is supplied.
const ReversalPrefix = "REV-"

// Service is the Ledger Engine: the only writer of entries and balances.
type Service struct {
	backend  Ledger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService wraps a ledger backend with logging and event delivery.
func NewService(backend Ledger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, notifier: notifier, logger: logger}
}

// Guard exposes the backend's account lock to the registry's status changes.
func (s *Service) Guard() account.Guard {
	return s.backend
}

// Post records a balanced transaction.
func (s *Service) Post(ctx context.Context, txID string, reqs []EntryRequest) ([]Entry, error) {
	entries, err := s.backend.Post(ctx, txID, reqs)
	if err != nil {
		s.logger.Info("posting rejected", slog.String("transaction_id", txID), slog.Any("error", err))
		return nil, err
	}
	s.logger.Info("transaction posted", slog.String("transaction_id", txID), slog.Int("entries", len(entries)))
	s.notify(ctx, notification.KindTransactionPosted, txID, entries, fmt.Sprintf("Transaction %s posted", txID))
	return entries, nil
}

// Reverse posts offsetting entries for a committed transaction. Entries are never edited;
// the correction is a new transaction whose legs flip the original directions.
func (s *Service) Reverse(ctx context.Context, originalID, reversalID string) ([]Entry, error) {
	original, err := s.backend.Entries(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if reversalID == "" {
		reversalID = ReversalPrefix + originalID
	}

	reqs := make([]EntryRequest, 0, len(original))
	for _, e := range original {
		reqs = append(reqs, EntryRequest{
			AccountID:   e.AccountID,
			Amount:      e.Amount,
			Direction:   e.Direction.Opposite(),
			Description: "Reversal of " + originalID + ": " + e.Description,
		})
	}

	entries, err := s.backend.Post(ctx, reversalID, reqs)
	if err != nil {
		s.logger.Info("reversal rejected", slog.String("transaction_id", originalID), slog.Any("error", err))
		return nil, err
	}
	s.logger.Info("transaction reversed",
		slog.String("transaction_id", originalID),
		slog.String("reversal_id", reversalID),
	)
	s.notify(ctx, notification.KindTransactionReversed, reversalID, entries, fmt.Sprintf("Transaction %s reversed by %s", originalID, reversalID))
	return entries, nil
}

// Entries returns one transaction's entries.
func (s *Service) Entries(ctx context.Context, txID string) ([]Entry, error) {
	return s.backend.Entries(ctx, txID)
}

// History yields an account's entries in creation order.
func (s *Service) History(ctx context.Context, accountID string, r Range) iter.Seq2[Entry, error] {
	return s.backend.History(ctx, accountID, r)
}

// Balances returns an account snapshot.
func (s *Service) Balances(ctx context.Context, ids []string) (map[string]account.Account, error) {
	return s.backend.Balances(ctx, ids)
}

// TotalBalance sums the current balances of ids.
func (s *Service) TotalBalance(ctx context.Context, ids []string) (decimal.Decimal, error) {
	return s.backend.TotalBalance(ctx, ids)
}

// EntryCount returns how many entries touch ids.
func (s *Service) EntryCount(ctx context.Context, ids []string) (int, error) {
	return s.backend.EntryCount(ctx, ids)
}

func (s *Service) notify(ctx context.Context, kind, txID string, entries []Entry, body string) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:        kind,
		Destination: "ledger",
		Key:         txID,
		Body:        body,
		Attributes: map[string]string{
			"transaction_id": txID,
			"entries":        strconv.Itoa(len(entries)),
		},
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("ledger notification failed", slog.String("transaction_id", txID), slog.Any("error", err))
	}
}
