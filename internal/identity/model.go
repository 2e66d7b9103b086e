package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAuthFailed is returned for any credential mismatch, including unknown usernames.
	ErrAuthFailed = errors.New("invalid username or password")
	// ErrUsernameTaken is returned when the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrWeakSecret is returned when a secret fails the strength policy.
	ErrWeakSecret = errors.New("password does not meet strength policy")
	// ErrValidation marks malformed profile input.
	ErrValidation = errors.New("invalid registration input")
	// ErrNotFound is returned when no user matches the identifier.
	ErrNotFound = errors.New("user not found")
)

// Role is a coarse authorization level carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole accepts a case-insensitive role; empty means USER.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case "":
		return RoleUser, nil
	case RoleUser, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrValidation, s)
}

// User represents a registered account holder.
type User struct {
	ID           string
	Username     string
	Email        string
	FullName     string
	Role         Role
	PasswordHash []byte
	CreatedAt    time.Time
}

// RegisterInput is the profile and secret supplied at registration.
type RegisterInput struct {
	Username string
	Email    string
	FullName string
	Secret   string
	Role     Role
}
