package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/account"
)

type accountLock struct {
	mu      sync.RWMutex
	posting atomic.Bool
}

type inMemoryLedger struct {
	accounts account.Repository
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*accountLock

	txMu         sync.Mutex
	transactions map[string][]int

	entriesMu sync.RWMutex
	entries   []Entry
	byAccount map[string][]int
	nextID    atomic.Int64
}

// NewInMemory creates a concurrency-safe in-memory ledger over the account repository.
// Postings on disjoint accounts proceed in parallel; postings sharing an account serialize.
func NewInMemory(accounts account.Repository) Ledger {
	return newInMemory(accounts, time.Now)
}

func newInMemory(accounts account.Repository, now func() time.Time) *inMemoryLedger {
	return &inMemoryLedger{
		accounts:     accounts,
		now:          now,
		locks:        make(map[string]*accountLock),
		transactions: make(map[string][]int),
		byAccount:    make(map[string][]int),
	}
}

func (l *inMemoryLedger) lock(id string) *accountLock {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	lk, ok := l.locks[id]
	if !ok {
		lk = &accountLock{}
		l.locks[id] = lk
	}
	return lk
}

// lockSorted write-locks ids in ascending order and returns the matching unlock.
func (l *inMemoryLedger) lockSorted(ids []string) func() {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	held := make([]*accountLock, 0, len(sorted))
	for _, id := range sorted {
		lk := l.lock(id)
		lk.mu.Lock()
		lk.posting.Store(true)
		held = append(held, lk)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].posting.Store(false)
			held[i].mu.Unlock()
		}
	}
}

func (l *inMemoryLedger) rlockSorted(ids []string) func() {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	held := make([]*accountLock, 0, len(sorted))
	for _, id := range sorted {
		lk := l.lock(id)
		lk.mu.RLock()
		held = append(held, lk)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.RUnlock()
		}
	}
}

func (l *inMemoryLedger) reserve(txID string) bool {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	if _, exists := l.transactions[txID]; exists {
		return false
	}
	l.transactions[txID] = nil
	return true
}

func (l *inMemoryLedger) release(txID string) {
	l.txMu.Lock()
	defer l.txMu.Unlock()
	delete(l.transactions, txID)
}

func (l *inMemoryLedger) Post(ctx context.Context, txID string, reqs []EntryRequest) ([]Entry, error) {
	if err := validateRequest(txID, reqs); err != nil {
		return nil, err
	}
	if err := checkBalanced(reqs); err != nil {
		return nil, err
	}
	if !l.reserve(txID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, txID)
	}
	committed := false
	defer func() {
		if !committed {
			l.release(txID)
		}
	}()

	ids := accountIDs(reqs)
	unlock := l.lockSorted(ids)
	defer unlock()

	current := make(map[string]account.Account, len(ids))
	for _, id := range ids {
		a, err := l.accounts.Get(ctx, id)
		if errors.Is(err, account.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		current[id] = a
	}
	if err := checkAccounts(reqs, current); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applied := 0
	for _, r := range reqs {
		if _, err := l.accounts.AdjustBalance(ctx, r.AccountID, r.Amount, r.Direction); err != nil {
			l.compensate(reqs[:applied])
			return nil, fmt.Errorf("apply entry to %s: %w", r.AccountID, err)
		}
		applied++
	}

	entries := l.append(txID, reqs)
	committed = true
	return entries, nil
}

// compensate undoes balance changes of a posting that failed part way. The posting's
// account locks are still held so no reader observed the intermediate balances.
func (l *inMemoryLedger) compensate(applied []EntryRequest) {
	ctx := context.Background()
	for i := len(applied) - 1; i >= 0; i-- {
		r := applied[i]
		_, _ = l.accounts.AdjustBalance(ctx, r.AccountID, r.Amount, r.Direction.Opposite())
	}
}

func (l *inMemoryLedger) append(txID string, reqs []EntryRequest) []Entry {
	l.entriesMu.Lock()
	defer l.entriesMu.Unlock()

	createdAt := l.now().UTC()
	out := make([]Entry, 0, len(reqs))
	positions := make([]int, 0, len(reqs))
	for _, r := range reqs {
		e := Entry{
			ID:            l.nextID.Add(1),
			TransactionID: txID,
			AccountID:     r.AccountID,
			Amount:        r.Amount,
			Direction:     r.Direction,
			Description:   r.Description,
			CreatedAt:     createdAt,
		}
		pos := len(l.entries)
		l.entries = append(l.entries, e)
		l.byAccount[r.AccountID] = append(l.byAccount[r.AccountID], pos)
		positions = append(positions, pos)
		out = append(out, e)
	}

	l.txMu.Lock()
	l.transactions[txID] = positions
	l.txMu.Unlock()
	return out
}

func (l *inMemoryLedger) Entries(_ context.Context, txID string) ([]Entry, error) {
	l.txMu.Lock()
	positions := l.transactions[txID]
	l.txMu.Unlock()
	if len(positions) == 0 {
		return nil, ErrTransactionNotFound
	}

	l.entriesMu.RLock()
	defer l.entriesMu.RUnlock()
	out := make([]Entry, 0, len(positions))
	for _, pos := range positions {
		out = append(out, l.entries[pos])
	}
	return out, nil
}

func (l *inMemoryLedger) History(ctx context.Context, accountID string, r Range) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if _, err := l.accounts.Get(ctx, accountID); err != nil {
			yield(Entry{}, err)
			return
		}

		// Entries are append-only, so the slice headers taken here stay valid without the lock.
		l.entriesMu.RLock()
		positions := l.byAccount[accountID]
		positions = positions[:len(positions):len(positions)]
		entries := l.entries[:len(l.entries):len(l.entries)]
		l.entriesMu.RUnlock()

		for _, pos := range positions {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			e := entries[pos]
			if !r.Contains(e.CreatedAt) {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (l *inMemoryLedger) Balances(ctx context.Context, ids []string) (map[string]account.Account, error) {
	unlock := l.rlockSorted(ids)
	defer unlock()

	out := make(map[string]account.Account, len(ids))
	for _, id := range ids {
		a, err := l.accounts.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
		out[id] = a
	}
	return out, nil
}

func (l *inMemoryLedger) TotalBalance(ctx context.Context, ids []string) (decimal.Decimal, error) {
	accounts, err := l.Balances(ctx, ids)
	if err != nil {
		return decimal.Zero, err
	}
	return sumBalances(accounts), nil
}

func (l *inMemoryLedger) EntryCount(_ context.Context, ids []string) (int, error) {
	l.entriesMu.RLock()
	defer l.entriesMu.RUnlock()
	n := 0
	for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
		n += len(l.byAccount[id])
	}
	return n, nil
}

// WithAccountLock runs fn while holding the account exclusively. It fails with
// account.ErrInvalidTransition instead of waiting when a posting holds the account.
func (l *inMemoryLedger) WithAccountLock(ctx context.Context, id string, fn func(context.Context, account.Repository) error) error {
	lk := l.lock(id)
	if !lk.mu.TryLock() {
		if lk.posting.Load() {
			return fmt.Errorf("%w: account %s has a posting in progress", account.ErrInvalidTransition, id)
		}
		lk.mu.Lock()
	}
	defer lk.mu.Unlock()
	return fn(ctx, l.accounts)
}
