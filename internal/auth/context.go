package auth

import "context"

type contextKey string

const (
	userIDKey    contextKey = "auth_user_id"
	sessionIDKey contextKey = "auth_session_id"
)

// WithIdentity stores the verified user and session ids on the context.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// UserIDFromContext returns the verified user id, empty when unauthenticated.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// SessionIDFromContext returns the session id bound to the token.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}
