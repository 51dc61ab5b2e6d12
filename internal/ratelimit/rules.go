package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/arcanalabs/arcana-server/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods. Rules are
// swappable at runtime so a config reload takes effect without a restart.
type Rules struct {
	mu     sync.RWMutex
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Reload replaces the rule set.
func (r *Rules) Reload(cfg config.RateLimitConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.config.Whitelist {
		if id == userID {
			return true
		}
	}
	return false
}

// GetPerUserLimit returns the per-user rate limiting rule.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return parseRule(r.config.PerUser)
}

// GetRewardLimit returns the reward-grant cooldown rule. It acts as the
// re-entrancy guard against double-fired ad SDK callbacks.
func (r *Rules) GetRewardLimit() (int, time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return parseRule(r.config.Reward)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
