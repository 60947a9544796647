package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, expiresAt time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestStaticToken(t *testing.T) {
	provider := StaticToken("abc123")
	got, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestTokenFunc(t *testing.T) {
	calls := 0
	provider := TokenFunc(func(ctx context.Context) (string, error) {
		calls++
		return "fresh", nil
	})

	got, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
	assert.Equal(t, 1, calls)

	wantErr := errors.New("refresh failed")
	failing := TokenFunc(func(ctx context.Context) (string, error) {
		return "", wantErr
	})
	_, err = failing.Token(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestExpired(t *testing.T) {
	t.Run("future expiry", func(t *testing.T) {
		token := signedToken(t, time.Now().Add(time.Hour))
		assert.False(t, Expired(token, 0))
	})

	t.Run("past expiry", func(t *testing.T) {
		token := signedToken(t, time.Now().Add(-time.Minute))
		assert.True(t, Expired(token, 0))
	})

	t.Run("leeway pushes a near expiry over the line", func(t *testing.T) {
		token := signedToken(t, time.Now().Add(30*time.Second))
		assert.False(t, Expired(token, 0))
		assert.True(t, Expired(token, time.Minute))
	})

	t.Run("no exp claim", func(t *testing.T) {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "u1"})
		signed, err := tok.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		assert.False(t, Expired(signed, time.Hour))
	})

	t.Run("opaque session token", func(t *testing.T) {
		assert.False(t, Expired("not-a-jwt", time.Hour))
		assert.False(t, Expired("", 0))
	})
}
