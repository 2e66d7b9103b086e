package auth

import (
	"context"
	"sync"
	"time"
)

// Family is the server-side state of one session family: the lineage of token pairs
// descended from a single Issue.
type Family struct {
	ID         string
	UserID     string
	Username   string
	Role       string
	RefreshJTI string
	Revoked    bool
	ExpiresAt  time.Time
}

// Store keeps session families. Rotate and Revoke must be linearizable per family.
type Store interface {
	Create(ctx context.Context, f Family) error
	// Get returns ErrInvalid for unknown or expired families.
	Get(ctx context.Context, id string) (Family, error)
	// Rotate swaps the current refresh token id from presented to next. A presented id that is
	// not current revokes the family and fails with ErrReused.
	Rotate(ctx context.Context, id, presented, next string, expiresAt time.Time) (Family, error)
	Revoke(ctx context.Context, id string) error
}

type memoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	families map[string]Family
}

// NewMemoryStore builds an in-process session store for tests and development.
func NewMemoryStore(now func() time.Time) Store {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{now: now, families: make(map[string]Family)}
}

func (s *memoryStore) Create(_ context.Context, f Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.families[f.ID] = f
	return nil
}

func (s *memoryStore) lookup(id string) (Family, bool) {
	f, ok := s.families[id]
	if !ok {
		return Family{}, false
	}
	if s.now().After(f.ExpiresAt) {
		delete(s.families, id)
		return Family{}, false
	}
	return f, true
}

func (s *memoryStore) Get(_ context.Context, id string) (Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(id)
	if !ok {
		return Family{}, ErrInvalid
	}
	return f, nil
}

func (s *memoryStore) Rotate(_ context.Context, id, presented, next string, expiresAt time.Time) (Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(id)
	if !ok || f.Revoked {
		return Family{}, ErrInvalid
	}
	if f.RefreshJTI != presented {
		f.Revoked = true
		s.families[id] = f
		return Family{}, ErrReused
	}
	f.RefreshJTI = next
	f.ExpiresAt = expiresAt
	s.families[id] = f
	return f, nil
}

func (s *memoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.lookup(id)
	if !ok {
		return ErrInvalid
	}
	f.Revoked = true
	s.families[id] = f
	return nil
}
