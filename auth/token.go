// Package auth provides the credential plumbing used when dialing the chat
// server.
//
// The synchronization core never refreshes credentials itself: a
// TokenProvider is consulted on every dial, so an out-of-band refresh that
// completes during the connection manager's retry delay is picked up on the
// next attempt.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider supplies the bearer token presented during the transport
// handshake. Implementations may block briefly (e.g. on a refresh) but must
// honor ctx.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

// Token implements TokenProvider.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// TokenFunc adapts a function to the TokenProvider interface.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Expired reports whether a JWT's exp claim has passed, with the given
// leeway subtracted from the expiry. The signature is deliberately not
// verified: the client only needs the timestamp to decide whether a refresh
// is worth attempting before dialing. Tokens without an exp claim, and
// strings that do not parse as JWTs, are treated as unexpired so opaque
// session tokens keep working.
func Expired(token string, leeway time.Duration) bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(leeway).After(claims.ExpiresAt.Time)
}
