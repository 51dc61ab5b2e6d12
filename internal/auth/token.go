// Package auth verifies the bearer tokens the mobile client presents.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arcanalabs/arcana-server/pkg/config"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token is expired")
)

// Claims carries the token payload. Subject is the user id.
type Claims struct {
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens signed with the shared secret.
type Verifier struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewVerifier constructs a Verifier from auth configuration.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		tokenTTL: ttl,
	}
}

// Verify parses and validates a token, returning the user id and session id.
func (v *Verifier) Verify(tokenString string) (userID, sessionID string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrTokenExpired
		}
		return "", "", ErrTokenInvalid
	}

	if !token.Valid || claims.Subject == "" {
		return "", "", ErrTokenInvalid
	}

	sessionID = claims.SessionID
	if sessionID == "" {
		// Older clients carry no session; fall back to the token id so
		// session-scoped unlocks still expire with the token.
		sessionID = claims.ID
	}

	return claims.Subject, sessionID, nil
}

// Issue signs a token for a user and session. Used by tooling and tests;
// production tokens come from the account service.
func (v *Verifier) Issue(userID, sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
