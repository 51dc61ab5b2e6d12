package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/arcanalabs/arcana-server/internal/jobs"
)

// RecordCleaner removes expired grant and replay records.
type RecordCleaner interface {
	CleanupStale(ctx context.Context) (int, error)
}

type CleanupHandler struct {
	cleaner RecordCleaner
	log     *slog.Logger
}

func NewCleanupHandler(cleaner RecordCleaner, log *slog.Logger) *CleanupHandler {
	if log == nil {
		log = slog.Default()
	}

	return &CleanupHandler{
		cleaner: cleaner,
		log:     log,
	}
}

func (h *CleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.CleanupRecordsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "record cleanup: failed to decode payload",
			slog.String("task_type", t.Type()), slog.Any("error", err))
		return err
	}

	removed, err := h.cleaner.CleanupStale(ctx)
	if err != nil {
		return err
	}

	h.log.InfoContext(ctx, "stale records removed", slog.Int("count", removed))

	return nil
}
