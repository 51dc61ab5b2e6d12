package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arcanalabs/arcana-server/pkg/config"
)

func newTestVerifier(ttl time.Duration) *Verifier {
	return NewVerifier(config.AuthConfig{
		JWTSecret: "unit-test-secret",
		TokenTTL:  ttl,
	})
}

func TestVerifier_RoundTrip(t *testing.T) {
	v := newTestVerifier(time.Hour)

	token, err := v.Issue("user-42", "session-abc")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	userID, sessionID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("userID = %q, want user-42", userID)
	}
	if sessionID != "session-abc" {
		t.Errorf("sessionID = %q, want session-abc", sessionID)
	}
}

func TestVerifier_ExpiredToken(t *testing.T) {
	// Negative TTL falls back to the default, so sign an already-expired
	// token by hand.
	v := newTestVerifier(time.Hour)

	now := time.Now()
	claims := &Claims{
		SessionID: "session-abc",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-42",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := v.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifier_WrongSecret(t *testing.T) {
	token, err := newTestVerifier(time.Hour).Issue("user-42", "session-abc")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewVerifier(config.AuthConfig{JWTSecret: "different-secret", TokenTTL: time.Hour})
	if _, _, err := other.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Verify error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifier_RejectsMissingSubject(t *testing.T) {
	v := newTestVerifier(time.Hour)

	token, err := v.Issue("", "session-abc")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, _, err := v.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Verify error = %v, want ErrTokenInvalid", err)
	}
}

func TestVerifier_SessionFallsBackToTokenID(t *testing.T) {
	v := newTestVerifier(time.Hour)

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-123",
			Subject:   "user-42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, sessionID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sessionID != "jti-123" {
		t.Fatalf("sessionID = %q, want jti-123", sessionID)
	}
}

func TestVerifier_RejectsUnsignedToken(t *testing.T) {
	v := newTestVerifier(time.Hour)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-42"},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := v.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("Verify error = %v, want ErrTokenInvalid", err)
	}
}
