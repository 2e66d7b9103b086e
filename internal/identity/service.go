package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service is the Credential Store.
type Service struct {
	repo   Repository
	hasher *Hasher
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, hasher *Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, logger: logger, now: time.Now}
}

// Register validates the profile and secret, then creates the user with a hashed secret.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in = normalize(in)
	if err := validateProfile(in); err != nil {
		return User{}, err
	}
	if err := CheckSecret(in.Secret); err != nil {
		return User{}, err
	}
	role, err := ParseRole(string(in.Role))
	if err != nil {
		return User{}, err
	}

	hash, err := s.hasher.Hash(ctx, in.Secret)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("username", user.Username))
	return user, nil
}

// Verify checks a username and secret. Unknown users and wrong secrets both yield ErrAuthFailed
// after the same amount of hashing work.
func (s *Service) Verify(ctx context.Context, username, secret string) (User, error) {
	user, err := s.repo.FindByUsername(ctx, normalizeUsername(username))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	ok, err := s.hasher.Compare(ctx, user.PasswordHash, secret)
	if err != nil {
		return User{}, err
	}
	if !ok {
		return User{}, ErrAuthFailed
	}
	return user, nil
}

// Get returns a user by identifier.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByUsername returns a user by login name.
func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.FindByUsername(ctx, normalizeUsername(username))
}
