package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user rate limits for API requests.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *slog.Logger
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		log:     log,
	}
}

// Handle rejects requests over the per-user limit with 429.
func (m *RateLimitMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.rules == nil {
			next.ServeHTTP(w, r)
			return
		}

		userID := auth.UserIDFromContext(r.Context())
		if userID == "" || m.rules.IsWhitelisted(userID) {
			next.ServeHTTP(w, r)
			return
		}

		limit, window, err := m.rules.GetPerUserLimit()
		if err != nil || limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("api:%s", userID)
		result, err := m.limiter.Check(r.Context(), key, limit, window)
		if err != nil {
			if errors.Is(err, ratelimit.ErrLimitExceeded) {
				m.reject(w, userID, window)
				return
			}

			// Fail open on limiter backend trouble.
			m.log.Warn("rate limit check failed", slog.String("user_id", userID), slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}

		if !result.Allowed {
			m.reject(w, userID, time.Until(result.ResetAt))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) reject(w http.ResponseWriter, userID string, retryAfter time.Duration) {
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}

	m.log.Warn("request rate limited", slog.String("user_id", userID))

	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, "too many requests", "E429")
}
