// Package auth verifies bearer credentials presented at connection
// handshake. Token issuance lives elsewhere in the platform; only
// verification is done here, and it never touches the data store.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/tripware/tripchat/internal/types"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

const (
	userIdClaim = "user_id"
	emailClaim  = "email"
	roleClaim   = "role"

	tokenQueryKey = "token"
	bearerPrefix  = "Bearer "
)

type Verifier struct {
	signingKey []byte
}

func NewVerifier(signingKey []byte) *Verifier {
	return &Verifier{signingKey: signingKey}
}

// BearerToken extracts the handshake credential from a request. The
// explicit token field in the connection metadata (query string) wins over
// the Authorization header; first non-empty source is used.
func BearerToken(r *http.Request) string {
	if token := r.URL.Query().Get(tokenQueryKey); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}

	return ""
}

// Verify checks the token's signature and expiry and decodes the identity
// claims. An empty token is ErrMissingToken; any parse or claim failure is
// ErrInvalidToken.
func (v *Verifier) Verify(tokenString string) (types.Identity, error) {
	if tokenString == "" {
		return types.Identity{}, ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return types.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: unexpected claims type", ErrInvalidToken)
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return types.Identity{}, fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}

	identity := types.Identity{Id: int(userId)}
	if email, ok := claims[emailClaim].(string); ok {
		identity.Email = email
	}
	if role, ok := claims[roleClaim].(string); ok {
		identity.Role = role
	}

	return identity, nil
}

// VerifyRequest resolves and verifies the credential on a handshake
// request in one step.
func (v *Verifier) VerifyRequest(r *http.Request) (types.Identity, error) {
	return v.Verify(BearerToken(r))
}
