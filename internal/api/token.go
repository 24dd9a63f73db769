package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token for authenticated requests. An empty token
// means the request is sent anonymously.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns the same token
type StaticToken string

// Token returns the token
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// TokenExpired reports whether the token's exp claim is at or before now. The signature
// is not checked; only the server can do that. A token that cannot be parsed counts as
// expired, and one without an exp claim never expires.
func TokenExpired(token string, now time.Time) bool {
	if token == "" {
		return true
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
