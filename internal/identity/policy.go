package identity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minSecretLength = 8
	// bcrypt ignores input past 72 bytes.
	maxSecretBytes  = 72
	secretSpecials  = "@$!%*#?&"
	minFullNameRune = 3
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{4,20}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func normalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

func normalize(in RegisterInput) RegisterInput {
	in.Username = normalizeUsername(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	return in
}

func validateProfile(in RegisterInput) error {
	if !usernamePattern.MatchString(in.Username) {
		return fmt.Errorf("%w: username must be 4-20 letters, digits or underscores", ErrValidation)
	}
	if !emailPattern.MatchString(in.Email) {
		return fmt.Errorf("%w: email address is malformed", ErrValidation)
	}
	if utf8.RuneCountInString(in.FullName) < minFullNameRune {
		return fmt.Errorf("%w: full name must be at least %d characters", ErrValidation, minFullNameRune)
	}
	return nil
}

// CheckSecret applies the strength policy: at least 8 characters and at most 72 bytes,
// with a letter, a digit and one of @$!%*#?&.
func CheckSecret(secret string) error {
	if utf8.RuneCountInString(secret) < minSecretLength {
		return fmt.Errorf("%w: at least %d characters required", ErrWeakSecret, minSecretLength)
	}
	if len(secret) > maxSecretBytes {
		return fmt.Errorf("%w: at most %d bytes allowed", ErrWeakSecret, maxSecretBytes)
	}
	var letter, digit, special bool
	for _, r := range secret {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(secretSpecials, r):
			special = true
		}
	}
	if !letter || !digit || !special {
		return fmt.Errorf("%w: needs a letter, a digit and one of %s", ErrWeakSecret, secretSpecials)
	}
	return nil
}
