package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cleaner removes idempotency records that lost their TTL or outlived the
// longest grant window.
type Cleaner struct {
	client   *redis.Client
	log      *slog.Logger
	interval time.Duration
}

func NewCleaner(client *redis.Client, log *slog.Logger, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		log:      log,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.CleanupStale(ctx); err != nil {
				c.log.Error("idempotency cleanup failed", slog.Any("error", err))
			}
		}
	}
}

// CleanupStale removes records without a TTL or with one past the longest
// grant window and reports how many keys were deleted.
func (c *Cleaner) CleanupStale(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
		err     error
	)

	for {
		var keys []string
		keys, cursor, err = c.client.Scan(ctx, cursor, "idempotency:*", 100).Result()
		if err != nil {
			return removed, err
		}

		for _, key := range keys {
			ttl, err := c.client.TTL(ctx, key).Result()
			if err != nil {
				c.log.Warn("failed to get key ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if ttl < 0 || ttl > 25*time.Hour {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.Warn("failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				removed++
			}
		}

		if cursor == 0 {
			break
		}
	}

	return removed, nil
}
