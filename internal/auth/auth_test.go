package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

func signedToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err, "failed to sign test token")
	return token
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testSigningKey)

	t.Run("valid token", func(t *testing.T) {
		token := signedToken(t, testSigningKey, jwt.MapClaims{
			"user_id": 42,
			"email":   "traveler@example.com",
			"role":    "traveler",
			"exp":     time.Now().Add(time.Hour).Unix(),
		})

		identity, err := v.Verify(token)
		assert.NoError(t, err, "expected no error for valid token")
		assert.Equal(t, 42, identity.Id, "expected user id claim to be decoded")
		assert.Equal(t, "traveler@example.com", identity.Email, "expected email claim to be decoded")
		assert.Equal(t, "traveler", identity.Role, "expected role claim to be decoded")
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := v.Verify("")
		assert.ErrorIs(t, err, ErrMissingToken, "expected missing token error")
	})

	t.Run("expired token", func(t *testing.T) {
		token := signedToken(t, testSigningKey, jwt.MapClaims{
			"user_id": 42,
			"exp":     time.Now().Add(-time.Hour).Unix(),
		})

		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "expected invalid token error for expired token")
	})

	t.Run("wrong signing key", func(t *testing.T) {
		token := signedToken(t, []byte("some-other-key"), jwt.MapClaims{
			"user_id": 42,
			"exp":     time.Now().Add(time.Hour).Unix(),
		})

		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "expected invalid token error for bad signature")
	})

	t.Run("missing user id claim", func(t *testing.T) {
		token := signedToken(t, testSigningKey, jwt.MapClaims{
			"email": "traveler@example.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "expected invalid token error for missing user id claim")
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := v.Verify("not-a-jwt")
		assert.ErrorIs(t, err, ErrInvalidToken, "expected invalid token error for malformed token")
	})
}

func TestBearerToken(t *testing.T) {
	t.Run("token query field wins", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=query-token", nil)
		r.Header.Set("Authorization", "Bearer header-token")

		assert.Equal(t, "query-token", BearerToken(r), "expected explicit token field to take precedence")
	})

	t.Run("authorization header fallback", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer header-token")

		assert.Equal(t, "header-token", BearerToken(r), "expected header token")
	})

	t.Run("non-bearer authorization header is ignored", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

		assert.Empty(t, BearerToken(r), "expected no token for non-bearer scheme")
	})

	t.Run("no credential", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)

		assert.Empty(t, BearerToken(r), "expected no token")
	})
}
