package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vaultcore/vaultcore/internal/identity"
	"github.com/vaultcore/vaultcore/internal/notification"
)

var (
	// ErrExpired is returned for a well-formed token whose expiry has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for tokens that fail integrity checks, have the wrong type,
	// or belong to a revoked or unknown session.
	ErrInvalid = errors.New("invalid token")
	// ErrReused is returned when a consumed refresh token is presented again. The whole
	// session family is revoked.
	ErrReused = errors.New("refresh token reused")
	// ErrSigningUnavailable is returned when no usable signing secret is configured.
	ErrSigningUnavailable = errors.New("token signing unavailable")
)

// MinSecretLength is the shortest accepted signing secret in bytes.
const MinSecretLength = 32

// Verifier checks credentials. identity.Service satisfies it.
type Verifier interface {
	Verify(ctx context.Context, username, secret string) (identity.User, error)
}

// Options configures the Session Manager.
type Options struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      func() time.Time
}

// Identity is what a valid access token proves about its bearer.
type Identity struct {
	UserID    string
	Username  string
	Role      string
	SessionID string
	ExpiresAt time.Time
}

// TokenPair is returned by Issue and Refresh.
type TokenPair struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	SessionID        string `json:"session_id"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

// Service is the Session Manager.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	store      Store
	ids        Verifier
	notifier   notification.Notifier
	logger     *slog.Logger
}

// NewService builds the Session Manager. It refuses to start without a signing secret of
// at least MinSecretLength bytes.
func NewService(opts Options, store Store, ids Verifier, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if len(opts.Secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: secret must be at least %d bytes", ErrSigningUnavailable, MinSecretLength)
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		secret:     []byte(opts.Secret),
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		now:        opts.Clock,
		store:      store,
		ids:        ids,
		notifier:   notifier,
		logger:     logger,
	}, nil
}

// Login verifies credentials and issues a token pair for a new session family.
func (s *Service) Login(ctx context.Context, username, secret string) (TokenPair, identity.User, error) {
	user, err := s.ids.Verify(ctx, username, secret)
	if err != nil {
		return TokenPair{}, identity.User{}, err
	}
	pair, err := s.Issue(ctx, user)
	if err != nil {
		return TokenPair{}, identity.User{}, err
	}
	return pair, user, nil
}

// Issue starts a session family for user.
func (s *Service) Issue(ctx context.Context, user identity.User) (TokenPair, error) {
	now := s.now()
	f := Family{
		ID:         newID(now),
		UserID:     user.ID,
		Username:   user.Username,
		Role:       string(user.Role),
		RefreshJTI: newID(now),
		ExpiresAt:  now.Add(s.refreshTTL).UTC(),
	}
	pair, err := s.pair(f, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Create(ctx, f); err != nil {
		return TokenPair{}, fmt.Errorf("store session: %w", err)
	}
	s.logger.Info("session issued", slog.String("user_id", f.UserID), slog.String("session_id", f.ID))
	return pair, nil
}

// Validate checks an access token and returns the identity it carries.
func (s *Service) Validate(ctx context.Context, token string) (Identity, error) {
	claims, err := s.verify(token, TokenAccess)
	if err != nil {
		return Identity{}, err
	}
	f, err := s.store.Get(ctx, claims.SessionID)
	if err != nil {
		return Identity{}, err
	}
	if f.Revoked {
		return Identity{}, fmt.Errorf("%w: session revoked", ErrInvalid)
	}
	return Identity{
		UserID:    claims.Subject,
		Username:  claims.Username,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

// Refresh consumes a refresh token and returns the next pair of its family. Access tokens
// issued earlier stay valid until their own expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.verify(refreshToken, TokenRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	now := s.now()
	next := newID(now)
	f, err := s.store.Rotate(ctx, claims.SessionID, claims.TokenID, next, now.Add(s.refreshTTL).UTC())
	if errors.Is(err, ErrReused) {
		s.logger.Warn("refresh token reuse, session revoked",
			slog.String("user_id", claims.Subject),
			slog.String("session_id", claims.SessionID),
		)
		s.notifyReuse(ctx, claims)
		return TokenPair{}, err
	}
	if err != nil {
		return TokenPair{}, err
	}
	return s.pair(f, now)
}

// Revoke ends a session family; every token from it stops validating.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	if err := s.store.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session revoked", slog.String("session_id", sessionID))
	return nil
}

// RevokeToken revokes the session an access token belongs to.
func (s *Service) RevokeToken(ctx context.Context, accessToken string) error {
	id, err := s.Validate(ctx, accessToken)
	if err != nil {
		return err
	}
	return s.Revoke(ctx, id.SessionID)
}

func (s *Service) pair(f Family, now time.Time) (TokenPair, error) {
	accessExp := now.Add(s.accessTTL)
	access, err := SignHS256(Claims{
		Subject:   f.UserID,
		Username:  f.Username,
		Role:      f.Role,
		Type:      TokenAccess,
		SessionID: f.ID,
		TokenID:   newID(now),
		IssuedAt:  now.Unix(),
		ExpiresAt: accessExp.Unix(),
	}, s.secret)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := SignHS256(Claims{
		Subject:   f.UserID,
		Username:  f.Username,
		Type:      TokenRefresh,
		SessionID: f.ID,
		TokenID:   f.RefreshJTI,
		IssuedAt:  now.Unix(),
		ExpiresAt: f.ExpiresAt.Unix(),
	}, s.secret)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        f.ID,
		ExpiresIn:        int64(s.accessTTL.Seconds()),
		RefreshExpiresIn: int64(s.refreshTTL.Seconds()),
	}, nil
}

func (s *Service) verify(token string, want TokenType) (Claims, error) {
	claims, err := ParseAndVerifyHS256(token, s.secret)
	if err != nil {
		return Claims{}, err
	}
	if claims.Type != want {
		return Claims{}, fmt.Errorf("%w: expected %s token", ErrInvalid, want)
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.TokenID == "" {
		return Claims{}, fmt.Errorf("%w: incomplete claims", ErrInvalid)
	}
	if s.now().After(time.Unix(claims.ExpiresAt, 0)) {
		return Claims{}, ErrExpired
	}
	return claims, nil
}

func (s *Service) notifyReuse(ctx context.Context, claims Claims) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindRefreshReused,
		Destination: claims.Subject,
		Key:         claims.SessionID,
		Body:        "A refresh token was reused; the session has been revoked",
	}); err != nil {
		s.logger.Warn("reuse notification failed", slog.String("session_id", claims.SessionID), slog.Any("error", err))
	}
}
