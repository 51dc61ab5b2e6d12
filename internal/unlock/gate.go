// Package unlock gates paid readings. Premium profiles see everything; for
// everyone else a reading costs one credit and stays open for the rest of
// the session.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/pkg/config"
	"github.com/arcanalabs/arcana-server/pkg/metrics"
)

const unlockKeyPattern = "unlock:%s:%s:%s"

// Ledger is the slice of the balance service the gate needs.
type Ledger interface {
	Spend(ctx context.Context, userID string, amount int64) (bool, domain.Balance, error)
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
}

// Result reports the outcome of an unlock attempt.
type Result struct {
	Unlocked        bool           `json:"unlocked"`
	AlreadyUnlocked bool           `json:"already_unlocked"`
	Balance         domain.Balance `json:"balance"`
}

// Gate decides whether full reading text may be shown and records paid
// unlocks for the remainder of the session.
type Gate struct {
	ledger      Ledger
	redisClient *redis.Client
	cost        int64
	sessionTTL  time.Duration
	log         *slog.Logger
}

// NewGate constructs the unlock gate.
func NewGate(ledger Ledger, redisClient *redis.Client, ledgerCfg config.LedgerConfig, unlockCfg config.UnlockConfig, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}

	return &Gate{
		ledger:      ledger,
		redisClient: redisClient,
		cost:        ledgerCfg.UnlockCost,
		sessionTTL:  unlockCfg.SessionTTL,
		log:         log,
	}
}

// IsUnlocked reports whether the content may be shown in full: either the
// profile is premium or this session already paid for it.
func (g *Gate) IsUnlocked(ctx context.Context, userID, sessionID, contentID string) (bool, error) {
	profile, err := g.ledger.Profile(ctx, userID)
	if err != nil {
		return false, err
	}
	if profile.IsPremium {
		return true, nil
	}

	return g.hasSessionUnlock(ctx, userID, sessionID, contentID)
}

// Unlock spends a credit and opens the content for the session. Re-unlocking
// content the session already paid for is free.
func (g *Gate) Unlock(ctx context.Context, userID, sessionID, contentID string) (*Result, error) {
	profile, err := g.ledger.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.IsPremium {
		metrics.RecordUnlock("premium")
		return &Result{Unlocked: true, AlreadyUnlocked: true, Balance: profile.Balance()}, nil
	}

	unlocked, err := g.hasSessionUnlock(ctx, userID, sessionID, contentID)
	if err != nil {
		g.log.Warn("unlock flag lookup failed", slog.String("user_id", userID), slog.Any("error", err))
	}
	if unlocked {
		metrics.RecordUnlock("already_unlocked")
		return &Result{Unlocked: true, AlreadyUnlocked: true, Balance: profile.Balance()}, nil
	}

	ok, balance, err := g.ledger.Spend(ctx, userID, g.cost)
	if err != nil {
		metrics.RecordUnlock("error")
		return nil, err
	}
	if !ok {
		metrics.RecordUnlock("insufficient")
		return &Result{Unlocked: false, Balance: balance}, nil
	}

	if err := g.setSessionUnlock(ctx, userID, sessionID, contentID); err != nil {
		// The credit is already spent. Failing the request now would charge
		// the user again on retry, so log and report the unlock as done.
		g.log.Error("failed to persist unlock flag",
			slog.String("user_id", userID),
			slog.String("content_id", contentID),
			slog.Any("error", err),
		)
	}

	metrics.RecordUnlock("paid")

	return &Result{Unlocked: true, Balance: balance}, nil
}

func (g *Gate) hasSessionUnlock(ctx context.Context, userID, sessionID, contentID string) (bool, error) {
	if g.redisClient == nil {
		return false, nil
	}

	key := fmt.Sprintf(unlockKeyPattern, userID, sessionID, contentID)
	if err := g.redisClient.Get(ctx, key).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (g *Gate) setSessionUnlock(ctx context.Context, userID, sessionID, contentID string) error {
	if g.redisClient == nil {
		return nil
	}

	key := fmt.Sprintf(unlockKeyPattern, userID, sessionID, contentID)
	return g.redisClient.Set(ctx, key, 1, g.sessionTTL).Err()
}
