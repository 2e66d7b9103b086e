package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/ledger"
	"github.com/vaultcore/vaultcore/internal/notification"
)

// TransactionPrefix namespaces transfer postings in the ledger.
const TransactionPrefix = "TRF-"

var (
	// ErrNotOwner indicates the caller does not own the source account.
	ErrNotOwner = errors.New("not owner of source account")
	// ErrSameAccount rejects transfers whose source and destination coincide.
	ErrSameAccount = errors.New("source and destination must differ")
)

// Poster is the slice of the Ledger Engine a transfer needs.
type Poster interface {
	Post(ctx context.Context, txID string, entries []ledger.EntryRequest) ([]ledger.Entry, error)
	Balances(ctx context.Context, ids []string) (map[string]account.Account, error)
}

// Service moves funds between two accounts with a two-leg posting.
type Service struct {
	ledger   Poster
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a transfer service.
func NewService(l Poster, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, notifier: notifier, logger: logger}
}

// Input captures the data needed to move funds between accounts.
type Input struct {
	FromAccountID   string
	ToAccountID     string
	Amount          decimal.Decimal
	Description     string
	ClientTxID      string
	RequestorUserID string
}

// Result describes the ledger outcome of a transfer. ToBalance is set only when the
// requestor also owns the destination.
type Result struct {
	TransactionID string           `json:"transaction_id"`
	FromBalance   decimal.Decimal  `json:"from_balance"`
	ToBalance     *decimal.Decimal `json:"to_balance,omitempty"`
	CompletedAt   time.Time        `json:"completed_at"`
}

// Transfer debits the destination and credits the source. The caller must own the source.
func (s *Service) Transfer(ctx context.Context, in Input) (Result, error) {
	if in.FromAccountID == in.ToAccountID {
		return Result{}, fmt.Errorf("%w: %w", ledger.ErrValidation, ErrSameAccount)
	}
	if in.ClientTxID == "" {
		in.ClientTxID = uuid.NewString()
	}

	accounts, err := s.ledger.Balances(ctx, []string{in.FromAccountID, in.ToAccountID})
	if errors.Is(err, account.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %v", ledger.ErrInvalidAccount, err)
	}
	if err != nil {
		return Result{}, err
	}
	from, to := accounts[in.FromAccountID], accounts[in.ToAccountID]
	if in.RequestorUserID != "" && from.OwnerID != in.RequestorUserID {
		return Result{}, ErrNotOwner
	}

	description := in.Description
	if description == "" {
		description = fmt.Sprintf("Transfer %s to %s", from.Number, to.Number)
	}
	txID := TransactionPrefix + in.ClientTxID
	entries, err := s.ledger.Post(ctx, txID, []ledger.EntryRequest{
		{AccountID: to.ID, Amount: in.Amount, Direction: account.Debit, Description: description},
		{AccountID: from.ID, Amount: in.Amount, Direction: account.Credit, Description: description},
	})
	if err != nil {
		return Result{}, err
	}

	after, err := s.ledger.Balances(ctx, []string{from.ID, to.ID})
	if err != nil {
		return Result{}, err
	}
	res := Result{
		TransactionID: txID,
		FromBalance:   after[from.ID].Balance,
		CompletedAt:   entries[0].CreatedAt,
	}
	if to.OwnerID == from.OwnerID {
		balance := after[to.ID].Balance
		res.ToBalance = &balance
	}

	s.logger.Info("transfer completed",
		slog.String("transaction_id", txID),
		slog.String("from_account", from.Number),
		slog.String("to_account", to.Number),
	)
	if s.notifier != nil && to.OwnerID != from.OwnerID {
		if err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: to.OwnerID,
			Key:         to.ID,
			Body:        fmt.Sprintf("You received %s %s into %s", in.Amount.StringFixed(2), to.Currency, to.Number),
			Attributes: map[string]string{
				"transaction_id": txID,
				"amount":         in.Amount.String(),
				"currency":       to.Currency,
			},
			OccurredAt: res.CompletedAt,
		}); err != nil {
			s.logger.Warn("transfer notification failed", slog.String("transaction_id", txID), slog.Any("error", err))
		}
	}
	return res, nil
}
