package auth

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu      sync.Mutex
	idEntropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// newID returns a time-sortable identifier for session families and token ids.
func newID(now time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), idEntropy)
	if err != nil {
		// Monotonic entropy only fails when the clock moves backwards within a millisecond burst.
		return ulid.Make().String()
	}
	return id.String()
}
