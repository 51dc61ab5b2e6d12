package reward

import (
	"context"
	"log/slog"
	"time"
)

// staleFlowAge is how long a flow may sit in a non-idle state before it is
// considered abandoned. Ad SDK sessions never legitimately last this long.
const staleFlowAge = 30 * time.Minute

// Cleaner resets abandoned flows so users whose app died mid-ad are not
// stuck outside the loadable states forever.
type Cleaner struct {
	machine  Machine
	log      *slog.Logger
	interval time.Duration
}

// NewCleaner constructs a Cleaner instance.
func NewCleaner(machine Machine, log *slog.Logger, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		machine:  machine,
		log:      log,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("reward flow cleaner stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) {
	states, err := c.machine.GetAllStates(ctx)
	if err != nil {
		c.log.Error("failed to list reward flow states", slog.Any("error", err))
		return
	}

	cutoff := time.Now().Add(-staleFlowAge)
	cleared := 0

	for _, state := range states {
		if state == nil || state.CurrentState == StateIdle {
			continue
		}
		if state.UpdatedAt.After(cutoff) {
			continue
		}

		if err := c.machine.ClearState(ctx, state.UserID); err != nil {
			c.log.Warn("failed to clear stale reward flow",
				slog.String("user_id", state.UserID),
				slog.Any("error", err),
			)
			continue
		}
		cleared++
	}

	if cleared > 0 {
		c.log.Info("stale reward flows cleared", slog.Int("count", cleared))
	}
}
