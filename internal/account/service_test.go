package account

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/logging"
)

func newTestService() *Service {
	return NewService(NewMemoryRepository(), nil, nil, logging.Discard())
}

func TestOpenAssignsTypedNumbersInCreationOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	owner := uuid.NewString()

	rate := decimal.RequireFromString("2.5")
	first, err := svc.Open(ctx, OpenInput{OwnerID: owner, Type: TypeAsset, Currency: "USD", Metadata: Metadata{InterestRate: &rate}})
	if err != nil {
		t.Fatalf("open asset: %v", err)
	}
	second, err := svc.Open(ctx, OpenInput{OwnerID: owner, Type: TypeIncome, Currency: "usd", Metadata: Metadata{Source: "Dividends"}})
	if err != nil {
		t.Fatalf("open income: %v", err)
	}
	third, err := svc.Open(ctx, OpenInput{OwnerID: owner, Type: TypeAsset, Currency: "USD"})
	if err != nil {
		t.Fatalf("open asset: %v", err)
	}

	if first.Number != "VCA1000001" || second.Number != "VCI4000001" || third.Number != "VCA1000002" {
		t.Fatalf("unexpected numbers %s %s %s", first.Number, second.Number, third.Number)
	}
	if second.Currency != "USD" || first.Status != StatusActive || !first.Balance.IsZero() {
		t.Fatalf("unexpected account state: %+v", second)
	}

	list, err := svc.ListByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != first.ID || list[2].ID != third.ID {
		t.Fatalf("expected creation order, got %+v", list)
	}

	other, err := svc.ListByOwner(ctx, uuid.NewString())
	if err != nil || len(other) != 0 {
		t.Fatalf("expected no accounts for stranger, got %v %v", other, err)
	}
}

func TestOpenRejectsInvalidInput(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	owner := uuid.NewString()
	shares := int64(1000)

	cases := []OpenInput{
		{OwnerID: "not-a-uuid", Type: TypeAsset, Currency: "USD"},
		{OwnerID: owner, Type: Type("CASH"), Currency: "USD"},
		{OwnerID: owner, Type: TypeAsset, Currency: "DOLLARS"},
		{OwnerID: owner, Type: TypeAsset, Currency: "USD", Metadata: Metadata{Shares: &shares}},
		{OwnerID: owner, Type: TypeIncome, Currency: "USD", Metadata: Metadata{Category: "Operating"}},
	}
	for i, in := range cases {
		if _, err := svc.Open(ctx, in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestOpenAcceptsAnyThreeLetterTag(t *testing.T) {
	svc := newTestService()
	a, err := svc.Open(context.Background(), OpenInput{OwnerID: uuid.NewString(), Type: TypeAsset, Currency: "vcx"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if a.Currency != "VCX" {
		t.Fatalf("expected VCX, got %s", a.Currency)
	}
}

func TestAdjustBalanceRequiresActive(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	a, err := svc.Open(ctx, OpenInput{OwnerID: uuid.NewString(), Type: TypeLiability, Currency: "USD"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	updated, err := svc.Repository().AdjustBalance(ctx, a.ID, decimal.RequireFromString("12500.00"), Credit)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !updated.Balance.Equal(decimal.RequireFromString("12500")) {
		t.Fatalf("expected liability credit to increase balance, got %s", updated.Balance)
	}

	if _, err := svc.SetStatus(ctx, a.ID, StatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := svc.Repository().AdjustBalance(ctx, a.ID, decimal.NewFromInt(1), Debit); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected invalid account, got %v", err)
	}
}

func TestSetStatusTransitions(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	a, err := svc.Open(ctx, OpenInput{OwnerID: uuid.NewString(), Type: TypeEquity, Currency: "EUR"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if got, err := svc.SetStatus(ctx, a.ID, StatusActive); err != nil || got.Status != StatusActive {
		t.Fatalf("same status should be a no-op, got %v %v", got.Status, err)
	}
	if _, err := svc.SetStatus(ctx, a.ID, StatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.SetStatus(ctx, a.ID, StatusActive); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected closed to be terminal, got %v", err)
	}
	if _, err := svc.SetStatus(ctx, uuid.NewString(), StatusClosed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type busyGuard struct{}

func (busyGuard) WithAccountLock(context.Context, string, func(context.Context, Repository) error) error {
	return ErrInvalidTransition
}

func TestSetStatusHonoursGuard(t *testing.T) {
	repo := NewMemoryRepository()
	open := NewService(repo, nil, nil, logging.Discard())
	a, err := open.Open(context.Background(), OpenInput{OwnerID: uuid.NewString(), Type: TypeAsset, Currency: "USD"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	guarded := NewService(repo, busyGuard{}, nil, logging.Discard())
	if _, err := guarded.SetStatus(context.Background(), a.ID, StatusSuspended); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected guard rejection, got %v", err)
	}
	got, _ := repo.Get(context.Background(), a.ID)
	if got.Status != StatusActive {
		t.Fatalf("status changed despite guard: %s", got.Status)
	}
}
