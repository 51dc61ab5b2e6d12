package httpapi

import (
	"net/http"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/internal/repository"
)

type profileResponse struct {
	Profile *domain.Profile `json:"profile"`
	Balance domain.Balance  `json:"balance"`
}

// handleGetProfile returns the profile, creating it on first contact.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	profile, err := s.ledger.Provision(r.Context(), userID, "")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, profileResponse{Profile: profile, Balance: profile.Balance()})
}

type patchProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	ZodiacSign  *string `json:"zodiac_sign,omitempty"`
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req patchProfileRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	update := repository.ProfileUpdate{DisplayName: req.DisplayName}
	if req.ZodiacSign != nil {
		sign := domain.ZodiacSign(*req.ZodiacSign)
		if !sign.Valid() {
			s.respondError(w, r, apperrors.NewValidationError("unknown zodiac sign"))
			return
		}
		update.ZodiacSign = &sign
	}

	if update.DisplayName == nil && update.ZodiacSign == nil {
		s.respondError(w, r, apperrors.NewValidationError("nothing to update"))
		return
	}

	profile, err := s.ledger.UpdateProfile(r.Context(), userID, update)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, profileResponse{Profile: profile, Balance: profile.Balance()})
}
