package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/reward"
	"github.com/arcanalabs/arcana-server/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps known error kinds onto HTTP statuses. AppError carries
// its own status and safe user message; everything else becomes an opaque 500.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr != nil {
		userMessage, _ := s.errHandler.Handle(r.Context(), appErr)
		respondJSON(w, appErr.HTTPStatus(), errorResponse{Error: userMessage, Code: appErr.Code})
		return
	}

	switch {
	case errors.Is(err, reward.ErrInvalidTransition):
		respondJSON(w, http.StatusConflict, errorResponse{Error: "action is not valid in the current ad flow state"})
	case errors.Is(err, reward.ErrFlowLocked):
		respondJSON(w, http.StatusConflict, errorResponse{Error: "another ad flow action is in progress, try again"})
	default:
		s.log.Error("unhandled request error",
			slog.String("path", r.URL.Path),
			slog.String("correlation_id", logger.CorrelationIDFromContext(r.Context())),
			slog.Any("error", err),
		)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request body")
	}

	return nil
}
