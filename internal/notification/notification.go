package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	// KindTransactionPosted is emitted after a ledger posting commits.
	KindTransactionPosted = "ledger.transaction_posted"
	// KindTransactionReversed is emitted after an offsetting posting commits.
	KindTransactionReversed = "ledger.transaction_reversed"
	// KindTransferReceived tells an account owner that funds arrived.
	KindTransferReceived = "transfer.received"
	// KindRefreshReused signals a replayed refresh token and the revocation of its session.
	KindRefreshReused = "session.refresh_reused"
	// KindAccountStatusChanged follows an administrative status change.
	KindAccountStatusChanged = "account.status_changed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	// Key identifies the aggregate (transaction, account, session) and orders
	// messages for it downstream.
	Key        string
	Body       string
	Attributes map[string]string
	OccurredAt time.Time
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("key", message.Key),
		slog.String("body", message.Body),
	)
	return nil
}

// Fanout delivers each message to every notifier and joins their errors.
func Fanout(notifiers ...Notifier) Notifier {
	var live []Notifier
	for _, n := range notifiers {
		if n != nil {
			live = append(live, n)
		}
	}
	return fanout(live)
}

type fanout []Notifier

func (f fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
