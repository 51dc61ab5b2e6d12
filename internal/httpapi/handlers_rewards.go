package httpapi

import (
	"net/http"

	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/reward"
)

type flowStateResponse struct {
	State reward.State `json:"state"`
}

// handleAdLoad marks the start of an ad load for the user.
func (s *Server) handleAdLoad(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	state, err := s.rewards.RequestAd(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, flowStateResponse{State: state})
}

// handleAdLoaded records that the ad SDK delivered a ready creative.
func (s *Server) handleAdLoaded(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	state, err := s.rewards.AdLoaded(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, flowStateResponse{State: state})
}

// handleAdShown records playback start. When the flow had no loaded ad the
// response carries the restarted state so the client reloads instead of
// showing a stale creative.
func (s *Server) handleAdShown(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	state, err := s.rewards.AdShown(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, flowStateResponse{State: state})
}

type adEarnedRequest struct {
	ImpressionID string `json:"impression_id"`
}

func (s *Server) handleAdEarned(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req adEarnedRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.rewards.RewardEarned(r.Context(), userID, req.ImpressionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
