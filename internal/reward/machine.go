package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	flowLockKeyPattern = "reward:lock:%s"
	flowLockTTL        = 5 * time.Second
)

var (
	// ErrInvalidTransition indicates that a requested flow transition is not allowed.
	ErrInvalidTransition = errors.New("invalid flow transition")
	// ErrStateNotFound indicates that a flow state record does not exist.
	ErrStateNotFound = errors.New("flow state not found")
	// ErrFlowLocked indicates that a concurrent operation already holds the lock.
	ErrFlowLocked = errors.New("flow is locked, try again later")
)

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe flow transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// Machine describes the operations supported by the flow controller.
type Machine interface {
	GetState(ctx context.Context, userID string) (*FlowState, error)
	SetState(ctx context.Context, userID string, state State, contextData map[string]interface{}) error
	TransitionTo(ctx context.Context, userID string, newState State) error
	ClearState(ctx context.Context, userID string) error
	GetAllStates(ctx context.Context) ([]*FlowState, error)
}

// machine implements Machine backed by Storage and Redis locking. The lock
// covers the read-check-write of a transition so a double-tapped client and
// a late SDK callback cannot interleave.
type machine struct {
	storage     Storage
	log         *slog.Logger
	redisClient *redis.Client
}

// NewMachine creates a flow controller using the provided storage backend
// and redis client for locking.
func NewMachine(storage Storage, log *slog.Logger, redisClient *redis.Client) Machine {
	if log == nil {
		log = slog.Default()
	}

	return &machine{
		storage:     storage,
		log:         log,
		redisClient: redisClient,
	}
}

// GetState proxies to the underlying storage implementation.
func (m *machine) GetState(ctx context.Context, userID string) (*FlowState, error) {
	return m.storage.GetState(ctx, userID)
}

// GetAllStates returns every persisted flow state.
func (m *machine) GetAllStates(ctx context.Context) ([]*FlowState, error) {
	type allStates interface {
		GetAllStates(ctx context.Context) ([]*FlowState, error)
	}

	if scanner, ok := m.storage.(allStates); ok {
		return scanner.GetAllStates(ctx)
	}

	return nil, nil
}

// SetState composes a FlowState and persists it via storage under a lock.
func (m *machine) SetState(ctx context.Context, userID string, state State, contextData map[string]interface{}) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	return m.saveState(ctx, userID, state, contextData)
}

// TransitionTo changes the state if the transition is allowed, guarded by a lock.
func (m *machine) TransitionTo(ctx context.Context, userID string, newState State) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	current := StateIdle

	storedState, err := m.storage.GetState(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			return err
		}
	} else if storedState != nil {
		current = storedState.CurrentState
	}

	if !IsTransitionAllowed(current, newState) {
		m.log.Warn("invalid flow transition", "user_id", userID, "from", current, "to", newState)
		return ErrInvalidTransition
	}

	transitionRecorder(string(current), string(newState))

	var contextData map[string]interface{}
	if storedState != nil {
		contextData = storedState.Context
	}

	return m.saveState(ctx, userID, newState, contextData)
}

// ClearState removes the stored state via the backing storage while holding the lock.
func (m *machine) ClearState(ctx context.Context, userID string) error {
	if err := m.lock(ctx, userID); err != nil {
		return err
	}
	defer m.unlock(ctx, userID)

	return m.storage.ClearState(ctx, userID)
}

func (m *machine) saveState(ctx context.Context, userID string, state State, contextData map[string]interface{}) error {
	flowState := &FlowState{
		UserID:       userID,
		CurrentState: state,
		Context:      contextData,
	}

	return m.storage.SetState(ctx, userID, flowState)
}

func (m *machine) lock(ctx context.Context, userID string) error {
	if m.redisClient == nil {
		m.log.Warn("redis client not configured for flow locks; skipping", "user_id", userID)
		return nil
	}

	key := fmt.Sprintf(flowLockKeyPattern, userID)
	acquired, err := m.redisClient.SetNX(ctx, key, 1, flowLockTTL).Result()
	if err != nil {
		m.log.Error("failed to acquire flow lock", "user_id", userID, "error", err)
		return err
	}

	if !acquired {
		m.log.Warn("flow lock already held", "user_id", userID)
		return ErrFlowLocked
	}

	return nil
}

func (m *machine) unlock(ctx context.Context, userID string) {
	if m.redisClient == nil {
		return
	}

	key := fmt.Sprintf(flowLockKeyPattern, userID)
	if err := m.redisClient.Del(ctx, key).Err(); err != nil {
		m.log.Error("failed to release flow lock", "user_id", userID, "error", err)
	}
}
