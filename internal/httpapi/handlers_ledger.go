package httpapi

import (
	"net/http"

	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/domain"
)

type balanceResponse struct {
	Balance domain.Balance `json:"balance"`
}

// handleRefresh re-reads the authoritative balance; the client calls this on
// screen mount instead of trusting its local copy.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	profile, err := s.ledger.Refresh(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, balanceResponse{Balance: profile.Balance()})
}

type spendRequest struct {
	Amount int64 `json:"amount"`
}

type spendResponse struct {
	OK      bool           `json:"ok"`
	Balance domain.Balance `json:"balance"`
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req spendRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ok, balance, err := s.ledger.Spend(r.Context(), userID, req.Amount)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, spendResponse{OK: ok, Balance: balance})
}

type dailyBonusResponse struct {
	Granted bool           `json:"granted"`
	Balance domain.Balance `json:"balance"`
}

func (s *Server) handleDailyBonus(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	granted, balance, err := s.ledger.ClaimDailyBonus(r.Context(), userID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, dailyBonusResponse{Granted: granted, Balance: balance})
}
