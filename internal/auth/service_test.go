package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vaultcore/vaultcore/internal/identity"
	"github.com/vaultcore/vaultcore/internal/logging"
	"github.com/vaultcore/vaultcore/internal/notification"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (r *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return nil
}

type harness struct {
	svc      *Service
	clock    *clock
	notifier *recordingNotifier
	user     identity.User
}

func newHarness(t *testing.T, store func(now func() time.Time) Store) *harness {
	t.Helper()
	hasher, err := identity.NewHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)
	ids := identity.NewService(identity.NewMemoryRepository(), hasher, logging.Discard())
	user, err := ids.Register(context.Background(), identity.RegisterInput{
		Username: "john_doe", Email: "john@example.com", FullName: "John Doe", Secret: "SecurePass@123",
	})
	require.NoError(t, err)

	// Issued a quarter second past the minute so that second-granular expiry is exercised.
	clk := &clock{now: time.Date(2024, 3, 1, 9, 0, 0, 250_000_000, time.UTC)}
	notifier := &recordingNotifier{}
	svc, err := NewService(Options{Secret: testSecret, Clock: clk.Now}, store(clk.Now), ids, notifier, logging.Discard())
	require.NoError(t, err)
	return &harness{svc: svc, clock: clk, notifier: notifier, user: user}
}

func memoryHarness(t *testing.T) *harness {
	return newHarness(t, NewMemoryStore)
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(Options{Secret: "short"}, NewMemoryStore(nil), nil, nil, logging.Discard())
	require.ErrorIs(t, err, ErrSigningUnavailable)
}

func TestLoginThenValidate(t *testing.T) {
	h := memoryHarness(t)
	ctx := context.Background()

	pair, user, err := h.svc.Login(ctx, "john_doe", "SecurePass@123")
	require.NoError(t, err)
	assert.Equal(t, h.user.ID, user.ID)
	assert.EqualValues(t, 900, pair.ExpiresIn)
	assert.EqualValues(t, 86400, pair.RefreshExpiresIn)

	id, err := h.svc.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, h.user.ID, id.UserID)
	assert.Equal(t, "john_doe", id.Username)
	assert.Equal(t, "USER", id.Role)
	assert.Equal(t, pair.SessionID, id.SessionID)

	_, _, err = h.svc.Login(ctx, "john_doe", "nope")
	require.ErrorIs(t, err, identity.ErrAuthFailed)
}

func TestAccessTokenExpiry(t *testing.T) {
	h := memoryHarness(t)
	ctx := context.Background()
	pair, err := h.svc.Issue(ctx, h.user)
	require.NoError(t, err)

	h.clock.Advance(15*time.Minute - time.Second)
	_, err = h.svc.Validate(ctx, pair.AccessToken)
	require.NoError(t, err, "one second before expiry the token is valid")

	h.clock.Advance(time.Second)
	_, err = h.svc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrExpired, "after 15 minutes the token is expired")
}

func TestValidateRejectsTampering(t *testing.T) {
	h := memoryHarness(t)
	ctx := context.Background()
	pair, err := h.svc.Issue(ctx, h.user)
	require.NoError(t, err)

	parts := strings.Split(pair.AccessToken, ".")
	forged, err := SignHS256(Claims{Subject: h.user.ID, Role: "ADMIN", Type: TokenAccess, SessionID: pair.SessionID, TokenID: "x", ExpiresAt: h.clock.Now().Add(time.Hour).Unix()}, []byte("another-secret-another-secret-xx"))
	require.NoError(t, err)
	forgedParts := strings.Split(forged, ".")

	cases := map[string]string{
		"garbage":           "not-a-token",
		"swapped payload":   parts[0] + "." + forgedParts[1] + "." + parts[2],
		"foreign signature": forged,
		"refresh as access": pair.RefreshToken,
	}
	for name, token := range cases {
		_, err := h.svc.Validate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalid, name)
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	h := memoryHarness(t)
	ctx := context.Background()
	first, err := h.svc.Issue(ctx, h.user)
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	second, err := h.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The old access token is still honoured until its own expiry.
	_, err = h.svc.Validate(ctx, first.AccessToken)
	require.NoError(t, err)

	_, err = h.svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrReused)

	// Reuse revokes every token of the family.
	_, err = h.svc.Validate(ctx, second.AccessToken)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = h.svc.Validate(ctx, first.AccessToken)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = h.svc.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrInvalid)

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	require.Len(t, h.notifier.messages, 1)
	assert.Equal(t, notification.KindRefreshReused, h.notifier.messages[0].Kind)
	assert.Equal(t, first.SessionID, h.notifier.messages[0].Key)
}

func TestConcurrentRefreshSucceedsOnce(t *testing.T) {
	h := memoryHarness(t)
	ctx := context.Background()
	pair, err := h.svc.Issue(ctx, h.user)
	require.NoError(t, err)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Refresh(ctx, pair.RefreshToken); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestRefreshTokenExpiry(t *testing.T) {
	h := memoryHarness(t)
	ctx := context.Background()
	pair, err := h.svc.Issue(ctx, h.user)
	require.NoError(t, err)

	h.clock.Advance(24*time.Hour + time.Second)
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrExpired)
}

func TestRevokeInvalidatesSession(t *testing.T) {
	h := memoryHarness(t)
	ctx := context.Background()
	pair, err := h.svc.Issue(ctx, h.user)
	require.NoError(t, err)
	other, err := h.svc.Issue(ctx, h.user)
	require.NoError(t, err)

	require.NoError(t, h.svc.RevokeToken(ctx, pair.AccessToken))

	_, err = h.svc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalid)

	_, err = h.svc.Validate(ctx, other.AccessToken)
	require.NoError(t, err, "other sessions of the same user are unaffected")

	require.ErrorIs(t, h.svc.Revoke(ctx, "unknown-session"), ErrInvalid)
}
