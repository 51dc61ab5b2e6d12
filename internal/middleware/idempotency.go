package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/idempotency"
)

const idempotencyHeader = "Idempotency-Key"

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// Idempotency replays the recorded response for repeated mutating requests
// carrying the same Idempotency-Key. Requests without the header pass
// through untouched; the grant endpoints have their own impression and
// transaction keys underneath.
func Idempotency(manager idempotency.Manager, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headerKey := r.Header.Get(idempotencyHeader)
			if headerKey == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			userID := auth.UserIDFromContext(r.Context())
			key := idempotency.GenerateKey("http", userID, r.Method, r.URL.Path, headerKey)

			result, err := manager.Execute(r.Context(), key, 24*time.Hour, func(ctx context.Context) (interface{}, error) {
				recorder := httptest.NewRecorder()
				next.ServeHTTP(recorder, r.WithContext(ctx))

				return storedResponse{
					Status:      recorder.Code,
					ContentType: recorder.Header().Get("Content-Type"),
					Body:        base64.StdEncoding.EncodeToString(recorder.Body.Bytes()),
				}, nil
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrRequestInProgress) {
					writeError(w, http.StatusConflict, "request is already being processed", "E429")
					return
				}

				log.Error("idempotent request failed", slog.String("key", headerKey), slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, "internal error", "E200")
				return
			}

			replay, err := decodeStoredResponse(result.Response)
			if err != nil {
				log.Error("failed to decode stored response", slog.String("key", headerKey), slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, "internal error", "E200")
				return
			}

			if result.FromCache {
				w.Header().Set("Idempotent-Replay", "true")
			}
			if replay.ContentType != "" {
				w.Header().Set("Content-Type", replay.ContentType)
			}
			w.WriteHeader(replay.Status)

			body, err := base64.StdEncoding.DecodeString(replay.Body)
			if err == nil {
				_, _ = w.Write(body)
			}
		})
	}
}

func decodeStoredResponse(v interface{}) (storedResponse, error) {
	if resp, ok := v.(storedResponse); ok {
		return resp, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return storedResponse{}, err
	}

	var resp storedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return storedResponse{}, err
	}

	return resp, nil
}
