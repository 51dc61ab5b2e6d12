// Package logger builds the application slog.Logger from configuration.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	slogsentry "github.com/samber/slog-sentry/v2"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/arcanalabs/arcana-server/pkg/config"
)

// New constructs the application logger. Output format and level come from
// configuration; sensitive attributes are masked before any handler sees
// them, and error-level records are mirrored to Sentry when enabled.
func New(cfg config.Config) *slog.Logger {
	level := parseLevel(cfg.Logger.Level)

	var out io.Writer = os.Stdout
	if cfg.Logger.File.Enabled && cfg.Logger.File.Path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Logger.File.Path,
			MaxSize:    cfg.Logger.File.MaxSizeMB,
			MaxBackups: cfg.Logger.File.MaxBackups,
			MaxAge:     cfg.Logger.File.MaxAgeDays,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if strings.EqualFold(cfg.Logger.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}

	handlers := []slog.Handler{base}
	if cfg.Sentry.Enabled {
		sentryHandler := slogsentry.Option{
			Level: slog.LevelError,
		}.NewSentryHandler()
		handlers = append(handlers, sentryHandler)
	}

	var handler slog.Handler
	if len(handlers) == 1 {
		handler = handlers[0]
	} else {
		handler = newFanoutHandler(handlers...)
	}

	return slog.New(NewMaskingHandler(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanoutHandler delivers every record to all wrapped handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) *fanoutHandler {
	return &fanoutHandler{handlers: handlers}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}
