package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/account"
)

var (
	// ErrValidation marks a malformed posting request.
	ErrValidation = errors.New("invalid posting")

	// ErrUnbalancedTransaction occurs when debit and credit totals of a posting differ.
	ErrUnbalancedTransaction = errors.New("unbalanced transaction")

	// ErrInvalidAccount occurs when a posting references a missing or non-active account.
	ErrInvalidAccount = account.ErrInvalidAccount

	// ErrDuplicateTransaction indicates the provided transaction identifier already has
	// committed entries and therefore the operation should be treated as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrTransactionNotFound is returned when no entries carry the transaction identifier.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// MinEntries is the smallest number of entries a posting may carry.
const MinEntries = 2

// MaxTransactionIDLength bounds caller supplied transaction identifiers.
const MaxTransactionIDLength = 128

// MaxAmountScale is the number of fractional digits amounts and balances are stored with.
const MaxAmountScale = 8

// EntryRequest is one leg of a posting as supplied by the caller.
type EntryRequest struct {
	AccountID   string
	Amount      decimal.Decimal
	Direction   account.Direction
	Description string
}

// Entry is a durably recorded ledger line. Entries are never mutated.
type Entry struct {
	ID            int64             `json:"id"`
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Direction     account.Direction `json:"direction"`
	Description   string            `json:"description"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Range selects entries by creation time. From is inclusive, To exclusive; zero values are unbounded.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls in r.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Ledger defines the contract implemented by ledger backends (in-memory, Postgres).
type Ledger interface {
	// Post records a balanced set of entries under txID, all or nothing.
	Post(ctx context.Context, txID string, entries []EntryRequest) ([]Entry, error)
	// Entries returns the entries of one transaction in id order.
	Entries(ctx context.Context, txID string) ([]Entry, error)
	// History yields an account's entries in creation order. The sequence covers the entries
	// committed when iteration starts and may be iterated again to pick up later postings.
	History(ctx context.Context, accountID string, r Range) iter.Seq2[Entry, error]
	// Balances returns a snapshot of the accounts that never reflects a partial posting.
	Balances(ctx context.Context, accountIDs []string) (map[string]account.Account, error)
	// TotalBalance sums current balances of the accounts from one snapshot.
	TotalBalance(ctx context.Context, accountIDs []string) (decimal.Decimal, error)
	// EntryCount returns how many committed entries touch the accounts.
	EntryCount(ctx context.Context, accountIDs []string) (int, error)

	account.Guard
}

func validateRequest(txID string, reqs []EntryRequest) error {
	if txID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	if len(txID) > MaxTransactionIDLength {
		return fmt.Errorf("%w: transaction id too long", ErrValidation)
	}
	if len(reqs) < MinEntries {
		return fmt.Errorf("%w: a transaction needs at least %d entries", ErrValidation, MinEntries)
	}
	for i, r := range reqs {
		if r.AccountID == "" {
			return fmt.Errorf("%w: entry %d has no account", ErrValidation, i)
		}
		if !r.Amount.IsPositive() {
			return fmt.Errorf("%w: entry %d amount must be positive", ErrValidation, i)
		}
		if !r.Amount.Round(MaxAmountScale).Equal(r.Amount) {
			return fmt.Errorf("%w: entry %d amount exceeds %d decimal places", ErrValidation, i, MaxAmountScale)
		}
		if r.Direction != account.Debit && r.Direction != account.Credit {
			return fmt.Errorf("%w: entry %d has unknown direction %q", ErrValidation, i, r.Direction)
		}
	}
	return nil
}

func checkBalanced(reqs []EntryRequest) error {
	debits, credits := decimal.Zero, decimal.Zero
	for _, r := range reqs {
		if r.Direction == account.Debit {
			debits = debits.Add(r.Amount)
		} else {
			credits = credits.Add(r.Amount)
		}
	}
	if !debits.Equal(credits) {
		return fmt.Errorf("%w: debits %s, credits %s", ErrUnbalancedTransaction, debits, credits)
	}
	return nil
}

// checkAccounts verifies every referenced account exists and is ACTIVE, then that the posting
// stays within one currency.
func checkAccounts(reqs []EntryRequest, accounts map[string]account.Account) error {
	for _, r := range reqs {
		a, ok := accounts[r.AccountID]
		if !ok {
			return fmt.Errorf("%w: account %s does not exist", ErrInvalidAccount, r.AccountID)
		}
		if a.Status != account.StatusActive {
			return fmt.Errorf("%w: account %s is %s", ErrInvalidAccount, a.Number, a.Status)
		}
	}
	currency := accounts[reqs[0].AccountID].Currency
	for _, r := range reqs {
		if c := accounts[r.AccountID].Currency; c != currency {
			return fmt.Errorf("%w: mixed currencies %s and %s", ErrValidation, currency, c)
		}
	}
	return nil
}

// accountIDs returns the distinct account ids of reqs.
func accountIDs(reqs []EntryRequest) []string {
	seen := make(map[string]struct{}, len(reqs))
	out := make([]string, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.AccountID]; ok {
			continue
		}
		seen[r.AccountID] = struct{}{}
		out = append(out, r.AccountID)
	}
	return out
}

func sumBalances(accounts map[string]account.Account) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(a.Balance)
	}
	return total
}
