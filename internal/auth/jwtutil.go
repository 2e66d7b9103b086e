package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

var (
	b64 = base64.RawURLEncoding

	hs256Header = mustEncodeHeader()
)

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "ACCESS"
	TokenRefresh TokenType = "REFRESH"
)

// Claims is the signed token payload.
type Claims struct {
	Subject   string    `json:"sub"`
	Username  string    `json:"username"`
	Role      string    `json:"role,omitempty"`
	Type      TokenType `json:"typ"`
	SessionID string    `json:"sid"`
	TokenID   string    `json:"jti"`
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
}

func mustEncodeHeader() string {
	h, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		panic(err)
	}
	return b64.EncodeToString(h)
}

// SignHS256 creates a compact JWT string using HS256.
func SignHS256(claims Claims, secret []byte) (string, error) {
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := hs256Header + "." + b64.EncodeToString(c)
	return unsigned + "." + b64.EncodeToString(mac(unsigned, secret)), nil
}

// ParseAndVerifyHS256 verifies the token signature and returns its claims.
// Every failure wraps ErrInvalid.
func ParseAndVerifyHS256(token string, secret []byte) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("%w: malformed token", ErrInvalid)
	}
	if parts[0] != hs256Header {
		return Claims{}, fmt.Errorf("%w: unsupported header", ErrInvalid)
	}
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature encoding", ErrInvalid)
	}
	if !hmac.Equal(sig, mac(parts[0]+"."+parts[1], secret)) {
		return Claims{}, fmt.Errorf("%w: signature mismatch", ErrInvalid)
	}
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload encoding", ErrInvalid)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: claims json", ErrInvalid)
	}
	return claims, nil
}

func mac(unsigned string, secret []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(unsigned))
	return m.Sum(nil)
}
