// Package auth resolves the calling participant from a bearer token and
// throttles their mutations.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Tokens signs and verifies HS256 tokens whose "sub" claim is the
// participant id.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens returns a signer for secret. Issued tokens live for ttl.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for participant.
func (t *Tokens) Issue(participant string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": participant,
		"iat": now.Unix(),
		"exp": now.Add(t.ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(t.secret)
}

// Parse validates tok and returns the participant id.
func (t *Tokens) Parse(tok string) (string, error) {
	if tok == "" {
		return "", ErrMissingToken
	}
	parsed, err := jwt.Parse(tok, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return "", fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return sub, nil
}

// FromRequest reads the bearer token from the Authorization header, or from
// the access_token query parameter for WebSocket upgrades.
func (t *Tokens) FromRequest(r *http.Request) (string, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if raw == "" {
		raw = r.URL.Query().Get("access_token")
	}
	return t.Parse(raw)
}
