// Package ledger owns the energy balance of a profile: refresh, spend,
// credit, and the daily bonus. All mutations delegate to atomic repository
// statements; this layer adds the premium bypass, the cache mirror, and the
// error taxonomy at the boundary.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/internal/profilecache"
	"github.com/arcanalabs/arcana-server/internal/repository"
	"github.com/arcanalabs/arcana-server/pkg/config"
	"github.com/arcanalabs/arcana-server/pkg/metrics"
)

// Service provides balance operations over profiles.
type Service struct {
	repo  repository.ProfileRepository
	cache *profilecache.Cache
	cfg   config.LedgerConfig
	log   *slog.Logger
}

// NewService constructs a new ledger Service.
func NewService(repo repository.ProfileRepository, cache *profilecache.Cache, cfg config.LedgerConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		repo:  repo,
		cache: cache,
		cfg:   cfg,
		log:   log,
	}
}

// Provision fetches the profile, creating it with the starting credit grant
// when missing. Called on first authenticated contact.
func (s *Service) Provision(ctx context.Context, userID, displayName string) (*domain.Profile, error) {
	profile, err := s.repo.GetByID(ctx, userID)
	if err == nil {
		return profile, nil
	}

	if !errors.Is(err, repository.ErrProfileNotFound) {
		s.logError("provision.get", userID, err)
		return nil, apperrors.NewDatabaseError(err)
	}

	now := time.Now().UTC()
	profile = &domain.Profile{
		UserID:      userID,
		DisplayName: displayName,
		Credits:     s.cfg.StartingCredits,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, profile); err != nil {
		s.logError("provision.create", userID, err)
		return nil, apperrors.NewStoreWriteError(err)
	}

	if err := s.cache.Set(ctx, profile); err != nil {
		s.log.Warn("profile cache set failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	return profile, nil
}

// Refresh fetches the authoritative profile row and replaces the cached
// mirror. Used by the client on screen mount.
func (s *Service) Refresh(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperrors.NewNotFoundError("profile")
		}

		s.logError("refresh", userID, err)
		return nil, apperrors.NewDatabaseError(err)
	}

	if err := s.cache.Set(ctx, profile); err != nil {
		s.log.Warn("profile cache set failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	return profile, nil
}

// Profile returns the profile, preferring the cache mirror.
func (s *Service) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	cached, err := s.cache.Get(ctx, userID)
	if err != nil {
		s.log.Warn("profile cache get failed", slog.String("user_id", userID), slog.Any("error", err))
	}
	if cached != nil {
		return cached, nil
	}

	return s.Refresh(ctx, userID)
}

// UpdateProfile applies a partial profile update and drops the stale mirror.
func (s *Service) UpdateProfile(ctx context.Context, userID string, fields repository.ProfileUpdate) (*domain.Profile, error) {
	if err := s.repo.UpdateProfile(ctx, userID, fields); err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return nil, apperrors.NewNotFoundError("profile")
		}

		s.logError("update_profile", userID, err)
		return nil, apperrors.NewStoreWriteError(err)
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("profile cache invalidate failed", slog.String("user_id", userID), slog.Any("error", err))
	}

	return s.Refresh(ctx, userID)
}

// Spend debits amount from the balance. Premium profiles always succeed
// without a debit. The boolean reports whether the content may be shown;
// insufficient funds is a false, not an error.
func (s *Service) Spend(ctx context.Context, userID string, amount int64) (bool, domain.Balance, error) {
	if amount <= 0 {
		return false, domain.Balance{}, apperrors.NewValidationError("spend amount must be positive")
	}

	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return false, domain.Balance{}, err
	}

	if profile.IsPremium {
		metrics.RecordLedgerOp("spend", "premium_bypass")
		return true, profile.Balance(), nil
	}

	if profile.Credits < amount {
		// Cheap local reject; the conditional UPDATE below remains the
		// authoritative check.
		metrics.RecordLedgerOp("spend", "insufficient")
		return false, profile.Balance(), nil
	}

	balance, err := s.repo.SpendCredits(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			metrics.RecordLedgerOp("spend", "insufficient")
			if refreshed, refreshErr := s.Refresh(ctx, userID); refreshErr == nil {
				return false, refreshed.Balance(), nil
			}
			return false, profile.Balance(), nil
		}
		if errors.Is(err, repository.ErrProfileNotFound) {
			return false, domain.Balance{}, apperrors.NewNotFoundError("profile")
		}

		s.logError("spend", userID, err)
		metrics.RecordLedgerOp("spend", "error")
		return false, profile.Balance(), apperrors.NewStoreWriteError(err)
	}

	s.syncBalance(ctx, profile, balance)
	metrics.RecordLedgerOp("spend", "ok")

	return true, domain.Balance{Credits: balance, IsPremium: false}, nil
}

// Credit adds a fixed amount to the balance. Used by ad-reward and purchase
// flows; the amount is always strictly positive and the result monotonic.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, reason string) (domain.Balance, error) {
	if amount <= 0 {
		return domain.Balance{}, apperrors.NewValidationError("credit amount must be positive")
	}

	balance, err := s.repo.AddCredits(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return domain.Balance{}, apperrors.NewNotFoundError("profile")
		}

		s.logError("credit."+reason, userID, err)
		metrics.RecordLedgerOp("credit", "error")
		return domain.Balance{}, apperrors.NewStoreWriteError(err)
	}

	s.invalidate(ctx, userID)
	metrics.RecordLedgerOp("credit", "ok")
	metrics.RecordGrant(reason, "granted")

	return s.balanceFor(ctx, userID, balance), nil
}

// ClaimDailyBonus grants the daily bonus at most once per UTC calendar day.
// granted is false when today's bonus was already claimed.
func (s *Service) ClaimDailyBonus(ctx context.Context, userID string) (bool, domain.Balance, error) {
	balance, granted, err := s.repo.ClaimDailyBonus(ctx, userID, s.cfg.DailyBonusAmount)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return false, domain.Balance{}, apperrors.NewNotFoundError("profile")
		}

		s.logError("daily_bonus", userID, err)
		metrics.RecordGrant("daily_bonus", "error")
		return false, domain.Balance{}, apperrors.NewStoreWriteError(err)
	}

	if granted {
		s.invalidate(ctx, userID)
		metrics.RecordGrant("daily_bonus", "granted")
	} else {
		metrics.RecordGrant("daily_bonus", "already_claimed")
	}

	return granted, s.balanceFor(ctx, userID, balance), nil
}

// syncBalance updates the cached mirror with the post-mutation balance so a
// subsequent Profile read inside the same session observes the new value.
func (s *Service) syncBalance(ctx context.Context, profile *domain.Profile, balance int64) {
	updated := *profile
	updated.Credits = balance
	if err := s.cache.Set(ctx, &updated); err != nil {
		s.log.Warn("profile cache sync failed", slog.String("user_id", profile.UserID), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.log.Warn("profile cache invalidate failed", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) balanceFor(ctx context.Context, userID string, credits int64) domain.Balance {
	if profile, err := s.Profile(ctx, userID); err == nil {
		balance := profile.Balance()
		balance.Credits = credits
		return balance
	}

	return domain.Balance{Credits: credits}
}

func (s *Service) logError(operation, userID string, err error) {
	if s == nil || s.log == nil || err == nil {
		return
	}

	s.log.Error("ledger operation failed",
		slog.String("operation", operation),
		slog.String("user_id", userID),
		slog.Any("error", err),
	)
}
