package reward

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/internal/idempotency"
	"github.com/arcanalabs/arcana-server/internal/ratelimit"
	"github.com/arcanalabs/arcana-server/pkg/config"
)

// grantRecordTTL keeps impression grant records long enough to absorb any
// realistic SDK retry storm.
const grantRecordTTL = 24 * time.Hour

// Ledger is the slice of the balance service the grant flow needs.
type Ledger interface {
	Credit(ctx context.Context, userID string, amount int64, reason string) (domain.Balance, error)
}

// GrantResult reports the outcome of a reward callback.
type GrantResult struct {
	Granted   bool           `json:"granted"`
	Duplicate bool           `json:"duplicate"`
	Balance   domain.Balance `json:"balance"`
}

// Service drives the rewarded-ad flow and applies the credit grant exactly
// once per impression.
type Service struct {
	machine Machine
	ledger  Ledger
	idem    idempotency.Manager
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	cfg     config.LedgerConfig
	log     *slog.Logger
}

// NewService wires the flow controller, the ledger, and the grant guards.
func NewService(
	machine Machine,
	ledger Ledger,
	idem idempotency.Manager,
	limiter ratelimit.Limiter,
	rules *ratelimit.Rules,
	cfg config.LedgerConfig,
	log *slog.Logger,
) *Service {
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		machine: machine,
		ledger:  ledger,
		idem:    idem,
		limiter: limiter,
		rules:   rules,
		cfg:     cfg,
		log:     log,
	}
}

// RequestAd marks the start of an ad load. A flow stuck in a non-loadable
// state is reset first so a client relaunch can always begin a fresh load.
func (s *Service) RequestAd(ctx context.Context, userID string) (State, error) {
	err := s.machine.TransitionTo(ctx, userID, StateAdRequested)
	if err == nil {
		return StateAdRequested, nil
	}

	if !errors.Is(err, ErrInvalidTransition) {
		return "", err
	}

	if err := s.machine.ClearState(ctx, userID); err != nil {
		return "", err
	}
	if err := s.machine.SetState(ctx, userID, StateAdRequested, nil); err != nil {
		return "", err
	}

	s.log.Info("reward flow reset before ad request", slog.String("user_id", userID))

	return StateAdRequested, nil
}

// AdLoaded records that the ad SDK reported a ready ad.
func (s *Service) AdLoaded(ctx context.Context, userID string) (State, error) {
	if err := s.machine.TransitionTo(ctx, userID, StateAdLoaded); err != nil {
		return "", err
	}

	return StateAdLoaded, nil
}

// AdShown records that playback started. If no loaded ad is on record the
// flow silently falls back to a fresh load instead of failing the client.
func (s *Service) AdShown(ctx context.Context, userID string) (State, error) {
	current := s.currentState(ctx, userID)
	if current != StateAdLoaded {
		s.log.Warn("ad shown without a loaded ad, restarting flow",
			slog.String("user_id", userID),
			slog.String("state", string(current)),
		)
		if err := s.machine.SetState(ctx, userID, StateAdRequested, nil); err != nil {
			return "", err
		}
		return StateAdRequested, nil
	}

	if err := s.machine.TransitionTo(ctx, userID, StateAdShown); err != nil {
		return "", err
	}

	return StateAdShown, nil
}

// RewardEarned handles the SDK reward callback. The grant is keyed by the
// impression so a replayed callback returns the recorded balance without a
// second credit; the cooldown limiter rejects rapid-fire duplicates before
// they reach the flow at all.
func (s *Service) RewardEarned(ctx context.Context, userID, impressionID string) (*GrantResult, error) {
	if impressionID == "" {
		return nil, apperrors.NewValidationError("impression id is required")
	}

	if err := s.checkCooldown(ctx, userID); err != nil {
		return nil, err
	}

	// The flow transitions run inside the idempotent section: a replayed
	// callback short-circuits to the recorded balance before touching the
	// flow, while a fresh impression must still arrive through AdShown.
	key := idempotency.GenerateKey("ad_grant", userID, impressionID)
	result, err := s.idem.Execute(ctx, key, grantRecordTTL, func(ctx context.Context) (interface{}, error) {
		if err := s.machine.TransitionTo(ctx, userID, StateRewardEarned); err != nil {
			return nil, err
		}
		if err := s.machine.TransitionTo(ctx, userID, StateGranting); err != nil {
			return nil, err
		}

		balance, err := s.ledger.Credit(ctx, userID, s.cfg.AdRewardAmount, "ad_reward")
		if err != nil {
			if setErr := s.machine.SetState(ctx, userID, StateError, nil); setErr != nil {
				s.log.Error("failed to record error state", slog.String("user_id", userID), slog.Any("error", setErr))
			}
			return nil, err
		}

		if err := s.machine.ClearState(ctx, userID); err != nil {
			s.log.Warn("failed to reset reward flow", slog.String("user_id", userID), slog.Any("error", err))
		}

		return balance, nil
	})
	if err != nil {
		s.log.Error("reward grant failed",
			slog.String("user_id", userID),
			slog.String("impression_id", impressionID),
			slog.Any("error", err),
		)
		return nil, err
	}

	balance, err := decodeBalance(result.Response)
	if err != nil {
		return nil, err
	}

	if result.FromCache {
		s.log.Info("duplicate reward callback absorbed",
			slog.String("user_id", userID),
			slog.String("impression_id", impressionID),
		)
	}

	return &GrantResult{
		Granted:   !result.FromCache,
		Duplicate: result.FromCache,
		Balance:   balance,
	}, nil
}

// FlowState returns the current flow step for a user, Idle when none exists.
func (s *Service) FlowState(ctx context.Context, userID string) State {
	return s.currentState(ctx, userID)
}

func (s *Service) currentState(ctx context.Context, userID string) State {
	state, err := s.machine.GetState(ctx, userID)
	if err != nil || state == nil {
		return StateIdle
	}

	return state.CurrentState
}

func (s *Service) checkCooldown(ctx context.Context, userID string) error {
	if s.limiter == nil || s.rules == nil || s.rules.IsWhitelisted(userID) {
		return nil
	}

	limit, window, err := s.rules.GetRewardLimit()
	if err != nil || limit <= 0 {
		return nil
	}

	result, err := s.limiter.Check(ctx, "reward:"+userID, limit, window)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLimitExceeded) {
			return apperrors.NewRateLimitError(retryAfterSeconds(window))
		}
		// Limiter backend trouble must not block grants.
		s.log.Warn("reward cooldown check failed", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	if !result.Allowed {
		return apperrors.NewRateLimitError(retryAfterSeconds(time.Until(result.ResetAt)))
	}

	return nil
}

func retryAfterSeconds(d time.Duration) int {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// decodeBalance normalizes the idempotency record payload. A fresh grant
// carries the Balance struct directly; a replayed one comes back as the
// generic JSON shape.
func decodeBalance(v interface{}) (domain.Balance, error) {
	if balance, ok := v.(domain.Balance); ok {
		return balance, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return domain.Balance{}, err
	}

	var balance domain.Balance
	if err := json.Unmarshal(raw, &balance); err != nil {
		return domain.Balance{}, err
	}

	return balance, nil
}
