package httpapi

import (
	"net/http"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/auth"
)

type purchaseConfirmRequest struct {
	ProductID     string `json:"product_id"`
	TransactionID string `json:"transaction_id"`
}

// handlePurchaseConfirm credits a verified store transaction. Replayed
// confirmations return the current balance without a second credit.
func (s *Server) handlePurchaseConfirm(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req purchaseConfirmRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if req.ProductID == "" || req.TransactionID == "" {
		s.respondError(w, r, apperrors.NewValidationError("product_id and transaction_id are required"))
		return
	}

	result, err := s.purchases.Confirm(r.Context(), userID, req.ProductID, req.TransactionID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
