package identity

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Hasher runs bcrypt work on a bounded number of goroutines, off the caller's path.
type Hasher struct {
	cost  int
	sem   *semaphore.Weighted
	dummy []byte
}

// NewHasher builds a hasher. cost <= 0 selects bcrypt.DefaultCost and
// concurrency <= 0 selects runtime.NumCPU().
func NewHasher(cost, concurrency int) (*Hasher, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("vaultcore-dummy-secret"), cost)
	if err != nil {
		return nil, err
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(concurrency)), dummy: dummy}, nil
}

// Hash derives a bcrypt hash of secret.
func (h *Hasher) Hash(ctx context.Context, secret string) ([]byte, error) {
	var hash []byte
	err := h.run(ctx, func() error {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(secret), h.cost)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hash, nil
}

// Compare reports whether secret matches hash. A nil hash is compared against a
// dummy hash so that unknown users cost the same as wrong secrets.
func (h *Hasher) Compare(ctx context.Context, hash []byte, secret string) (bool, error) {
	target := hash
	if len(target) == 0 {
		target = h.dummy
	}
	err := h.run(ctx, func() error {
		return bcrypt.CompareHashAndPassword(target, []byte(secret))
	})
	switch {
	case err == nil:
		return len(hash) > 0, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

func (h *Hasher) run(ctx context.Context, work func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer h.sem.Release(1)
		done <- work()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
