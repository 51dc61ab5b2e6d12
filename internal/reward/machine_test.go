package reward

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

var errStorageFailure = errors.New("storage error")

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) GetState(ctx context.Context, userID string) (*FlowState, error) {
	args := m.Called(ctx, userID)
	state, _ := args.Get(0).(*FlowState)
	return state, args.Error(1)
}

func (m *mockStorage) SetState(ctx context.Context, userID string, state *FlowState) error {
	args := m.Called(ctx, userID, state)
	return args.Error(0)
}

func (m *mockStorage) ClearState(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func TestMachine_TransitionTo(t *testing.T) {
	ctx := context.Background()
	userID := "user-42"
	log := testLogger()

	testCases := []struct {
		name        string
		setupMocks  func(ms *mockStorage)
		newState    State
		expectedErr error
	}{
		{
			name: "successful transition",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&FlowState{CurrentState: StateIdle}, nil).Once()
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *FlowState) bool {
					return state.CurrentState == StateAdRequested
				})).Return(nil).Once()
			},
			newState:    StateAdRequested,
			expectedErr: nil,
		},
		{
			name: "invalid transition",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&FlowState{CurrentState: StateIdle}, nil).Once()
			},
			newState:    StateRewardEarned,
			expectedErr: ErrInvalidTransition,
		},
		{
			name: "new user starts from idle",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return((*FlowState)(nil), ErrStateNotFound).Once()
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *FlowState) bool {
					return state.CurrentState == StateAdRequested
				})).Return(nil).Once()
			},
			newState:    StateAdRequested,
			expectedErr: nil,
		},
		{
			name: "context survives the transition",
			setupMocks: func(ms *mockStorage) {
				ms.On("GetState", mock.Anything, userID).
					Return(&FlowState{
						CurrentState: StateAdShown,
						Context:      map[string]interface{}{"impression_id": "imp-1"},
					}, nil).Once()
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *FlowState) bool {
					return state.CurrentState == StateRewardEarned && state.Context["impression_id"] == "imp-1"
				})).Return(nil).Once()
			},
			newState:    StateRewardEarned,
			expectedErr: nil,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStorage{}
			tc.setupMocks(ms)

			machine := NewMachine(ms, log, nil)
			err := machine.TransitionTo(ctx, userID, tc.newState)

			if tc.expectedErr != nil {
				if err == nil || err != tc.expectedErr {
					t.Fatalf("expected error %v, got %v", tc.expectedErr, err)
				}
			} else if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			ms.AssertExpectations(t)
		})
	}
}

func TestMachine_SetState(t *testing.T) {
	ctx := context.Background()
	userID := "user-11"
	log := testLogger()

	testCases := []struct {
		name       string
		setupMocks func(ms *mockStorage)
		expectErr  error
	}{
		{
			name: "set state success",
			setupMocks: func(ms *mockStorage) {
				ms.On("SetState", mock.Anything, userID, mock.MatchedBy(func(state *FlowState) bool {
					return state.CurrentState == StateAdLoaded
				})).Return(nil).Once()
			},
			expectErr: nil,
		},
		{
			name: "set state error",
			setupMocks: func(ms *mockStorage) {
				ms.On("SetState", mock.Anything, userID, mock.Anything).
					Return(errStorageFailure).Once()
			},
			expectErr: errStorageFailure,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStorage{}
			tc.setupMocks(ms)

			machine := NewMachine(ms, log, nil)
			err := machine.SetState(ctx, userID, StateAdLoaded, nil)

			if tc.expectErr != nil {
				if err == nil || err != tc.expectErr {
					t.Fatalf("expected error %v, got %v", tc.expectErr, err)
				}
			} else if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}

			ms.AssertExpectations(t)
		})
	}
}

func TestMachine_ClearState(t *testing.T) {
	ctx := context.Background()
	userID := "user-13"

	ms := &mockStorage{}
	ms.On("ClearState", mock.Anything, userID).Return(nil).Once()

	machine := NewMachine(ms, testLogger(), nil)
	if err := machine.ClearState(ctx, userID); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	ms.AssertExpectations(t)
}

func TestMachine_Lock(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	storage := newInMemoryStorage(100 * time.Millisecond)
	machine := NewMachine(storage, testLogger(), client)

	ctx := context.Background()
	userID := "user-77"

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- machine.SetState(ctx, userID, StateAdRequested, nil)
		}()
	}

	wg.Wait()
	close(errCh)

	var success, locked int
	for err := range errCh {
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, ErrFlowLocked) {
			locked++
			continue
		}

		t.Fatalf("unexpected error: %v", err)
	}

	if success != 1 {
		t.Fatalf("expected 1 successful transition, got %d", success)
	}
	if locked != 1 {
		t.Fatalf("expected 1 locked transition, got %d", locked)
	}
}

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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type inMemoryStorage struct {
	mu     sync.Mutex
	states map[string]*FlowState
	delay  time.Duration
}

func newInMemoryStorage(delay time.Duration) *inMemoryStorage {
	return &inMemoryStorage{
		states: make(map[string]*FlowState),
		delay:  delay,
	}
}

func (s *inMemoryStorage) GetState(ctx context.Context, userID string) (*FlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, ErrStateNotFound
	}

	return cloneFlowState(state), nil
}

func (s *inMemoryStorage) SetState(ctx context.Context, userID string, state *FlowState) error {
	time.Sleep(s.delay)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = cloneFlowState(state)
	return nil
}

func (s *inMemoryStorage) ClearState(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, userID)
	return nil
}

func cloneFlowState(state *FlowState) *FlowState {
	if state == nil {
		return nil
	}

	copyState := *state
	if state.Context != nil {
		ctxCopy := make(map[string]interface{}, len(state.Context))
		for k, v := range state.Context {
			ctxCopy[k] = v
		}
		copyState.Context = ctxCopy
	}
	return &copyState
}
