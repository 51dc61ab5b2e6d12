package purchase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/internal/profilecache"
	"github.com/arcanalabs/arcana-server/internal/repository"
	"github.com/arcanalabs/arcana-server/pkg/metrics"
)

// ConfirmResult reports the outcome of a purchase confirmation.
type ConfirmResult struct {
	Applied        bool           `json:"applied"`
	CreditsGranted int64          `json:"credits_granted"`
	Balance        domain.Balance `json:"balance"`
}

// Service applies store purchase confirmations to the balance.
type Service struct {
	repo    repository.ProfileRepository
	catalog *Catalog
	cache   *profilecache.Cache
	log     *slog.Logger
}

// NewService constructs the purchase service.
func NewService(repo repository.ProfileRepository, catalog *Catalog, cache *profilecache.Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   cache,
		log:     log,
	}
}

// Confirm credits the balance for a verified store transaction. The insert
// into the purchases table carries the uniqueness guarantee: a replayed
// transaction id returns the current balance with Applied false and no
// second credit.
func (s *Service) Confirm(ctx context.Context, userID, productID, transactionID string) (*ConfirmResult, error) {
	if transactionID == "" {
		return nil, apperrors.NewValidationError("transaction id is required")
	}

	credits, ok := s.catalog.Credits(productID)
	if !ok {
		return nil, apperrors.NewValidationError("unknown product: " + productID)
	}

	balance, applied, err := s.repo.RecordPurchase(ctx, &domain.Purchase{
		UserID:         userID,
		ProductID:      productID,
		TransactionID:  transactionID,
		CreditsGranted: credits,
	})
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperrors.NewNotFoundError("profile")
		}

		s.log.Error("purchase confirmation failed",
			slog.String("user_id", userID),
			slog.String("product_id", productID),
			slog.Any("error", err),
		)
		metrics.RecordGrant("purchase", "error")
		return nil, apperrors.NewStoreWriteError(err)
	}

	if applied {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			s.log.Warn("profile cache invalidate failed", slog.String("user_id", userID), slog.Any("error", err))
		}
		metrics.RecordGrant("purchase", "granted")
		s.log.Info("purchase applied",
			slog.String("user_id", userID),
			slog.String("product_id", productID),
			slog.Int64("credits", credits),
		)
	} else {
		metrics.RecordGrant("purchase", "duplicate")
		s.log.Info("duplicate purchase confirmation absorbed",
			slog.String("user_id", userID),
			slog.String("product_id", productID),
		)
	}

	return &ConfirmResult{
		Applied:        applied,
		CreditsGranted: credits,
		Balance:        domain.Balance{Credits: balance},
	}, nil
}
