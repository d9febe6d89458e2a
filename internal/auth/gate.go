package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// HeaderName is the request header carrying the bearer token.
const HeaderName = "X-Auth-Token"

// ErrUnauthorized is returned when the supplied token does not match.
var ErrUnauthorized = errors.New("unauthorized")

// Gate validates mutating requests against the process-wide token.
// The token is generated once at startup and printed for the operator;
// there is no rotation endpoint.
type Gate struct {
	token string
}

// NewGate generates a fresh random token and returns a gate enforcing it.
func NewGate() (*Gate, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	return &Gate{token: token}, nil
}

// NewGateWithToken builds a gate around a known token. Used by tests.
func NewGateWithToken(token string) *Gate {
	return &Gate{token: token}
}

// GenerateToken produces a URL-safe token with 16 bytes of entropy.
func GenerateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate auth token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Token returns the generated token so main can log it once at startup.
func (g *Gate) Token() string {
	return g.token
}

// Authorize checks a supplied header value against the token.
// Comparison is constant-time.
func (g *Gate) Authorize(supplied string) error {
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(g.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
