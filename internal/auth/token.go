// Package auth verifies the bearer credentials minted by the identity
// provider. Tokens are HS256 JWTs signed with a shared secret; the
// subject claim carries the stable user identifier every handler binds
// its ownership checks to.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: bad signature,
// wrong algorithm, expiry, missing subject. Callers map it to 401
// without distinguishing causes.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to the caller's user ID.
type Verifier interface {
	Verify(token string) (string, error)
}

// HS256Verifier validates HS256-signed JWTs against a shared secret.
type HS256Verifier struct {
	secret []byte
}

// NewHS256Verifier creates a verifier for the given shared secret.
func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning its subject claim.
func (v *HS256Verifier) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("%w: missing subject claim", ErrInvalidToken)
	}

	return subject, nil
}

// Issue mints an HS256 token for userID, valid for ttl. Used by the
// token subcommand to produce development credentials; in production
// the identity provider issues tokens.
func Issue(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
