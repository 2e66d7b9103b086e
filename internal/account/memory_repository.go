package account

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
	order    []string
	numbers  map[string]string
	counters map[Type]int64
}

// NewMemoryRepository builds an in-memory account store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		accounts: make(map[string]Account),
		numbers:  make(map[string]string),
		counters: make(map[Type]int64),
	}
}

func (r *memoryRepository) NextNumber(_ context.Context, t Type) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	number, err := FormatNumber(t, r.counters[t]+1)
	if err != nil {
		return "", err
	}
	r.counters[t]++
	return number, nil
}

func (r *memoryRepository) Create(_ context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[a.ID]; exists {
		return errors.New("account exists")
	}
	if _, exists := r.numbers[a.Number]; exists {
		return errors.New("account number exists")
	}
	r.accounts[a.ID] = a
	r.numbers[a.Number] = a.ID
	r.order = append(r.order, a.ID)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) ListByOwner(_ context.Context, ownerID string) ([]Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Account
	for _, id := range r.order {
		if a := r.accounts[id]; a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRepository) AdjustBalance(_ context.Context, id string, amount decimal.Decimal, d Direction) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	if a.Status != StatusActive {
		return Account{}, ErrInvalidAccount
	}
	a.Balance = a.Balance.Add(a.Type.Effect(d, amount))
	r.accounts[id] = a
	return a, nil
}

func (r *memoryRepository) SetStatus(_ context.Context, id string, status Status) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	a.Status = status
	r.accounts[id] = a
	return a, nil
}
