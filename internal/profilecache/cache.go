// Package profilecache provides Redis-backed caching for profile rows.
package profilecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/arcanalabs/arcana-server/internal/domain"
)

// Store is the key-value surface the cache needs. Both the plain Redis
// wrapper and its metrics-instrumented variant satisfy it.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache mirrors profile rows in Redis. The database stays the source of
// truth; every balance mutation invalidates the mirror.
type Cache struct {
	client Store
	ttl    time.Duration
}

// NewCache constructs a profile cache backed by the provided store.
func NewCache(client Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{client: client, ttl: ttl}
}

// Get fetches a cached profile if it exists. A nil result with nil error
// means cache miss.
func (c *Cache) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	return &profile, nil
}

// Set stores the profile in cache.
func (c *Cache) Set(ctx context.Context, profile *domain.Profile) error {
	if c == nil || c.client == nil || profile == nil {
		return nil
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(profile.UserID), payload, c.ttl); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

// Invalidate removes the cached profile entry if it exists.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("delete cached profile: %w", err)
	}

	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("profile:%s", userID)
}
