// Package query holds the read-only projections served to the presentation layer.
package query

import (
	"context"
	"errors"
	"iter"
	"sort"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/ledger"
)

// DefaultHistoryLimit caps history pages when the caller gives no limit.
const DefaultHistoryLimit = 100

// MaxHistoryLimit is the largest page a caller may request.
const MaxHistoryLimit = 1000

// Accounts lists accounts by owner.
type Accounts interface {
	Get(ctx context.Context, id string) (account.Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]account.Account, error)
}

// Ledger reads balances and history.
type Ledger interface {
	Balances(ctx context.Context, ids []string) (map[string]account.Account, error)
	History(ctx context.Context, accountID string, r ledger.Range) iter.Seq2[ledger.Entry, error]
	EntryCount(ctx context.Context, ids []string) (int, error)
}

// Caller identifies who is asking.
type Caller struct {
	UserID string
	Admin  bool
}

// Service is the Query Facade.
type Service struct {
	accounts Accounts
	ledger   Ledger
}

// NewService builds the facade.
func NewService(accounts Accounts, l Ledger) *Service {
	return &Service{accounts: accounts, ledger: l}
}

// Accounts returns the user's accounts in creation order with balances from one snapshot.
func (s *Service) Accounts(ctx context.Context, userID string) ([]account.View, error) {
	owned, err := s.accounts.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []account.View{}, nil
	}
	ids := make([]string, 0, len(owned))
	for _, a := range owned {
		ids = append(ids, a.ID)
	}
	snapshot, err := s.ledger.Balances(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]account.View, 0, len(owned))
	for _, a := range owned {
		out = append(out, account.NewView(snapshot[a.ID]))
	}
	return out, nil
}

// Account returns one account. Accounts owned by someone else look missing unless the caller is an admin.
func (s *Service) Account(ctx context.Context, caller Caller, id string) (account.View, error) {
	a, err := s.authorize(ctx, caller, id)
	if err != nil {
		return account.View{}, err
	}
	return account.NewView(a), nil
}

// CurrencyTotal aggregates the user's balances in one currency.
type CurrencyTotal struct {
	Currency  string                           `json:"currency"`
	Total     decimal.Decimal                  `json:"total"`
	Formatted string                           `json:"formatted"`
	ByType    map[account.Type]decimal.Decimal `json:"by_type"`
	Accounts  int                              `json:"accounts"`
}

// Summary is the dashboard projection. Currencies are never converted.
type Summary struct {
	Totals   []CurrencyTotal `json:"totals"`
	Accounts int             `json:"accounts"`
	Entries  int             `json:"entries"`
}

// Summary totals the user's balances per currency.
func (s *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	views, err := s.Accounts(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	byCurrency := map[string]*CurrencyTotal{}
	out := Summary{Totals: []CurrencyTotal{}, Accounts: len(views)}
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
		t, ok := byCurrency[v.Currency]
		if !ok {
			t = &CurrencyTotal{Currency: v.Currency, Total: decimal.Zero, ByType: map[account.Type]decimal.Decimal{}}
			byCurrency[v.Currency] = t
		}
		t.Total = t.Total.Add(v.Balance)
		t.ByType[v.AccountType] = t.ByType[v.AccountType].Add(v.Balance)
		t.Accounts++
	}
	if out.Entries, err = s.ledger.EntryCount(ctx, ids); err != nil {
		return Summary{}, err
	}

	for _, t := range byCurrency {
		t.Formatted = Format(t.Total, t.Currency)
		out.Totals = append(out.Totals, *t)
	}
	sort.Slice(out.Totals, func(i, j int) bool { return out.Totals[i].Currency < out.Totals[j].Currency })
	return out, nil
}

// HistoryPage is a bounded slice of an account's history.
type HistoryPage struct {
	AccountID string         `json:"account_id"`
	Entries   []ledger.Entry `json:"entries"`
	HasMore   bool           `json:"has_more"`
}

// History returns up to limit entries of an account in creation order.
func (s *Service) History(ctx context.Context, caller Caller, accountID string, r ledger.Range, limit int) (HistoryPage, error) {
	if _, err := s.authorize(ctx, caller, accountID); err != nil {
		return HistoryPage{}, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	page := HistoryPage{AccountID: accountID, Entries: []ledger.Entry{}}
	for e, err := range s.ledger.History(ctx, accountID, r) {
		if err != nil {
			return HistoryPage{}, err
		}
		if len(page.Entries) == limit {
			page.HasMore = true
			break
		}
		page.Entries = append(page.Entries, e)
	}
	return page, nil
}

func (s *Service) authorize(ctx context.Context, caller Caller, id string) (account.Account, error) {
	a, err := s.accounts.Get(ctx, id)
	if err != nil {
		return account.Account{}, err
	}
	if !caller.Admin && a.OwnerID != caller.UserID {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

// Format renders amount in currency using its symbol and minor units.
func Format(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// IsNotFound reports whether err means the account is missing or hidden.
func IsNotFound(err error) bool {
	return errors.Is(err, account.ErrNotFound)
}
