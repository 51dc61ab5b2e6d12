package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/arcanalabs/arcana-server/pkg/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		_ = client.Close()
	}

	return client, cleanup
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:allows", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
		assert.NoError(t, err)
		if i < 2 {
			assert.True(t, result.Allowed)
		} else {
			assert.False(t, result.Allowed)
		}
	}
}

func TestRedisLimiter_GrantCooldown(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	// The reward cooldown rule: a single grant per window.
	first, err := limiter.Check(ctx, "reward:u1", 1, time.Minute)
	assert.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := limiter.Check(ctx, "reward:u1", 1, time.Minute)
	assert.NoError(t, err)
	assert.False(t, second.Allowed)
}

func TestRules_RewardLimit(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		PerUser:   config.RateLimitRule{Limit: 60, Window: "1m"},
		Reward:    config.RateLimitRule{Limit: 1, Window: "3s"},
		Whitelist: []string{"qa-user"},
	})

	limit, window, err := rules.GetRewardLimit()
	assert.NoError(t, err)
	assert.Equal(t, 1, limit)
	assert.Equal(t, 3*time.Second, window)

	assert.True(t, rules.IsWhitelisted("qa-user"))
	assert.False(t, rules.IsWhitelisted("someone-else"))

	rules.Reload(config.RateLimitConfig{
		Reward: config.RateLimitRule{Limit: 2, Window: "10s"},
	})

	limit, window, err = rules.GetRewardLimit()
	assert.NoError(t, err)
	assert.Equal(t, 2, limit)
	assert.Equal(t, 10*time.Second, window)
	assert.False(t, rules.IsWhitelisted("qa-user"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
