package identity

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu         sync.RWMutex
	byID       map[string]User
	byUsername map[string]string
	byEmail    map[string]string
}

// NewMemoryRepository builds an in-memory user store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:       make(map[string]User),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byUsername[user.Username]; exists {
		return ErrUsernameTaken
	}
	if _, exists := r.byEmail[user.Email]; exists {
		return ErrEmailTaken
	}
	r.byID[user.ID] = user
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *memoryRepository) FindByUsername(_ context.Context, username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUsername[username]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}
