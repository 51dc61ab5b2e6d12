package apperrors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/arcanalabs/arcana-server/pkg/logger"
)

// Handler is the single funnel for errors leaving the service layer. It logs
// with correlation context, forwards high-severity errors to Sentry, and
// returns the user-safe message callers may show.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
	}
}

// Handle logs err and returns (userMessage, retryable).
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}

	if ctx == nil {
		ctx = context.Background()
	}

	log := h.log
	if log == nil {
		log = slog.Default()
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		attrs := []any{
			slog.String("code", appErr.Code),
			slog.String("message", appErr.Message),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
		}

		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			attrs = append(attrs, slog.String("correlation_id", correlationID))
		}

		log.Error("application error", attrs...)

		if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
			h.sendToSentry(err)
		}

		userMessage := appErr.UserMessage
		if userMessage == "" {
			userMessage = "Something went wrong. Please try again later"
		}

		return userMessage, appErr.Retryable
	}

	attrs := []any{
		slog.String("message", err.Error()),
		slog.String("severity", string(SeverityHigh)),
		slog.Bool("retryable", false),
	}

	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	log.Error("unknown error", attrs...)

	if h.sentryEnabled {
		h.sendToSentry(err)
	}

	return "Something went wrong. Please try again later", false
}

func (h *Handler) sendToSentry(err error) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}

			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}

		sentry.CaptureException(err)
	})
}
