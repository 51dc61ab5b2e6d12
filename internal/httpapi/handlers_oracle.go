package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/idempotency"
	"github.com/arcanalabs/arcana-server/internal/oracle"
)

type readingResponse struct {
	ContentID string `json:"content_id"`
	Unlocked  bool   `json:"unlocked"`
	Text      string `json:"text"`
	Teaser    string `json:"teaser,omitempty"`
}

type dreamRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

// handleDream generates a dream reading. The full text is returned only for
// premium profiles or sessions that paid to unlock this reading; everyone
// else gets the truncated teaser plus the content id to unlock.
func (s *Server) handleDream(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sessionID := auth.SessionIDFromContext(r.Context())

	var req dreamRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		s.respondError(w, r, apperrors.NewValidationError("dream text is required"))
		return
	}

	text, err := s.generator.Generate(r.Context(), oracle.Request{
		Kind:   oracle.KindDream,
		Text:   req.Text,
		Locale: req.Locale,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	contentID := "dream:" + idempotency.GenerateKey("dream", userID, req.Text)[:16]

	s.respondReading(w, r, userID, sessionID, contentID, text)
}

// handleHoroscope returns today's horoscope for the profile's zodiac sign.
func (s *Server) handleHoroscope(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sessionID := auth.SessionIDFromContext(r.Context())

	profile, err := s.ledger.Profile(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if !profile.ZodiacSign.Valid() {
		s.respondError(w, r, apperrors.NewValidationError("set a zodiac sign on the profile first"))
		return
	}

	text, err := s.horoscopes.ForSign(r.Context(), profile.ZodiacSign)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	day := time.Now().UTC().Format("2006-01-02")
	contentID := fmt.Sprintf("horoscope:%s:%s", day, profile.ZodiacSign)

	s.respondReading(w, r, userID, sessionID, contentID, text)
}

func (s *Server) respondReading(w http.ResponseWriter, r *http.Request, userID, sessionID, contentID, text string) {
	unlocked, err := s.gate.IsUnlocked(r.Context(), userID, sessionID, contentID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if unlocked {
		respondJSON(w, http.StatusOK, readingResponse{
			ContentID: contentID,
			Unlocked:  true,
			Text:      text,
		})
		return
	}

	respondJSON(w, http.StatusOK, readingResponse{
		ContentID: contentID,
		Unlocked:  false,
		Text:      s.previewer.Long(text),
		Teaser:    s.previewer.Short(text),
	})
}
