// Package middleware provides the HTTP middleware chain: authentication,
// request logging, metrics, per-user rate limiting, and request replay
// protection.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/arcanalabs/arcana-server/internal/auth"
)

// AuthMiddleware verifies the bearer token and stores the identity on the
// request context.
type AuthMiddleware struct {
	verifier *auth.Verifier
	log      *slog.Logger
}

// NewAuthMiddleware constructs an auth middleware component.
func NewAuthMiddleware(verifier *auth.Verifier, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &AuthMiddleware{
		verifier: verifier,
		log:      log,
	}
}

// Handle rejects requests without a valid bearer token.
func (m *AuthMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token", "E401")
			return
		}

		userID, sessionID, err := m.verifier.Verify(token)
		if err != nil {
			m.log.Warn("token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			writeError(w, http.StatusUnauthorized, "invalid or expired token", "E401")
			return
		}

		ctx := auth.WithIdentity(r.Context(), userID, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
