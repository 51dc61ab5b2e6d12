package reward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	flowKeyPattern  = "reward:flow:%s"
	flowScanPattern = "reward:flow:*"
	flowTTL         = time.Hour
)

// RedisStorage persists rewarded-ad flow states in Redis.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client *redis.Client, log *slog.Logger) Storage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{
		client: client,
		log:    log,
	}
}

// GetState returns the stored flow state or ErrStateNotFound when absent.
func (s *RedisStorage) GetState(ctx context.Context, userID string) (*FlowState, error) {
	key := flowKey(userID)

	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}

		s.log.Error("failed to get flow state from redis", "user_id", userID, "error", err)
		return nil, err
	}

	var state FlowState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		s.log.Error("failed to decode flow state", "user_id", userID, "error", err)
		return nil, err
	}

	return &state, nil
}

// SetState saves the provided flow state with a one-hour TTL. An abandoned
// flow simply expires back to idle.
func (s *RedisStorage) SetState(ctx context.Context, userID string, state *FlowState) error {
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		s.log.Error("failed to encode flow state", "user_id", userID, "error", err)
		return err
	}

	if err := s.client.Set(ctx, flowKey(userID), data, flowTTL).Err(); err != nil {
		s.log.Error("failed to save flow state in redis", "user_id", userID, "error", err)
		return err
	}

	return nil
}

// ClearState removes the stored flow state for the given user.
func (s *RedisStorage) ClearState(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, flowKey(userID)).Err(); err != nil {
		s.log.Error("failed to clear flow state", "user_id", userID, "error", err)
		return err
	}

	return nil
}

// GetAllStates retrieves every stored flow state by scanning Redis keys.
func (s *RedisStorage) GetAllStates(ctx context.Context) ([]*FlowState, error) {
	var (
		cursor uint64
		result []*FlowState
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, flowScanPattern, 100).Result()
		if err != nil {
			s.log.Error("failed to scan flow states", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}

				s.log.Error("failed to fetch flow state", "key", key, "error", err)
				return nil, err
			}

			var state FlowState
			if err := json.Unmarshal([]byte(data), &state); err != nil {
				s.log.Error("failed to decode flow state", "key", key, "error", err)
				continue
			}

			copied := state
			result = append(result, &copied)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func flowKey(userID string) string {
	return fmt.Sprintf(flowKeyPattern, userID)
}
