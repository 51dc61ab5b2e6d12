package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/auth"
)

type unlockRequest struct {
	ContentID string `json:"content_id"`
	SessionID string `json:"session_id,omitempty"`
}

// handleUnlock spends a credit to open a reading for the session.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req unlockRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.ContentID == "" {
		s.respondError(w, r, apperrors.NewValidationError("content_id is required"))
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = auth.SessionIDFromContext(r.Context())
	}

	result, err := s.gate.Unlock(r.Context(), userID, sessionID, req.ContentID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if !result.Unlocked {
		respondJSON(w, http.StatusPaymentRequired, result)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

type unlockStatusResponse struct {
	ContentID string `json:"content_id"`
	Unlocked  bool   `json:"unlocked"`
}

func (s *Server) handleUnlockStatus(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sessionID := auth.SessionIDFromContext(r.Context())
	contentID := chi.URLParam(r, "contentID")

	unlocked, err := s.gate.IsUnlocked(r.Context(), userID, sessionID, contentID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, unlockStatusResponse{ContentID: contentID, Unlocked: unlocked})
}
