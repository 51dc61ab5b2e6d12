package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/arcanalabs/arcana-server/internal/jobs"
)

// Precomputer warms the daily horoscope cache.
type Precomputer interface {
	PrecomputeAll(ctx context.Context) error
}

type HoroscopeHandler struct {
	horoscopes Precomputer
	log        *slog.Logger
}

func NewHoroscopeHandler(horoscopes Precomputer, log *slog.Logger) *HoroscopeHandler {
	if log == nil {
		log = slog.Default()
	}

	return &HoroscopeHandler{
		horoscopes: horoscopes,
		log:        log,
	}
}

func (h *HoroscopeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.HoroscopePrecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "horoscope precompute: failed to decode payload",
			slog.String("task_type", t.Type()), slog.Any("error", err))
		return err
	}

	h.log.InfoContext(ctx, "precomputing daily horoscopes", slog.String("day", payload.Day))

	return h.horoscopes.PrecomputeAll(ctx)
}
