package reward

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/internal/idempotency"
	"github.com/arcanalabs/arcana-server/pkg/config"
)

type fakeLedger struct {
	mu      sync.Mutex
	credits int64
	calls   int
}

func (f *fakeLedger) Credit(ctx context.Context, userID string, amount int64, reason string) (domain.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.credits += amount
	f.calls++
	return domain.Balance{Credits: f.credits}, nil
}

func newTestService(t *testing.T) (*Service, *fakeLedger) {
	t.Helper()

	client, cleanup := setupTestRedis(t)
	t.Cleanup(cleanup)

	machine := NewMachine(newInMemoryStorage(0), testLogger(), client)
	ledger := &fakeLedger{}
	manager := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())

	svc := NewService(machine, ledger, manager, nil, nil, config.LedgerConfig{AdRewardAmount: 1}, testLogger())
	return svc, ledger
}

func walkToShown(t *testing.T, svc *Service, userID string) {
	t.Helper()
	ctx := context.Background()

	if _, err := svc.RequestAd(ctx, userID); err != nil {
		t.Fatalf("RequestAd: %v", err)
	}
	if _, err := svc.AdLoaded(ctx, userID); err != nil {
		t.Fatalf("AdLoaded: %v", err)
	}
	if state, err := svc.AdShown(ctx, userID); err != nil || state != StateAdShown {
		t.Fatalf("AdShown = %v, %v", state, err)
	}
}

func TestService_RewardEarned_GrantsOnce(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()
	userID := "user-1"

	walkToShown(t, svc, userID)

	result, err := svc.RewardEarned(ctx, userID, "imp-1")
	if err != nil {
		t.Fatalf("RewardEarned: %v", err)
	}
	if !result.Granted || result.Duplicate {
		t.Fatalf("expected fresh grant, got %+v", result)
	}
	if result.Balance.Credits != 1 {
		t.Fatalf("expected balance 1, got %d", result.Balance.Credits)
	}

	// The SDK replays the same impression.
	replay, err := svc.RewardEarned(ctx, userID, "imp-1")
	if err != nil {
		t.Fatalf("replayed RewardEarned: %v", err)
	}
	if replay.Granted || !replay.Duplicate {
		t.Fatalf("expected duplicate replay, got %+v", replay)
	}
	if replay.Balance.Credits != 1 {
		t.Fatalf("replay balance = %d, want 1", replay.Balance.Credits)
	}

	if ledger.calls != 1 {
		t.Fatalf("ledger credited %d times, want 1", ledger.calls)
	}
}

func TestService_RewardEarned_RequiresShownFlow(t *testing.T) {
	svc, ledger := newTestService(t)
	ctx := context.Background()

	_, err := svc.RewardEarned(ctx, "user-2", "imp-forged")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if ledger.calls != 0 {
		t.Fatalf("ledger credited %d times, want 0", ledger.calls)
	}
}

func TestService_RewardEarned_EmptyImpression(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.RewardEarned(context.Background(), "user-3", ""); err == nil {
		t.Fatal("expected error for missing impression id")
	}
}

func TestService_AdShown_FallsBackWithoutLoadedAd(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := "user-4"

	state, err := svc.AdShown(ctx, userID)
	if err != nil {
		t.Fatalf("AdShown: %v", err)
	}
	if state != StateAdRequested {
		t.Fatalf("expected fallback to %s, got %s", StateAdRequested, state)
	}
}

func TestService_RequestAd_ResetsStuckFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	userID := "user-5"

	walkToShown(t, svc, userID)

	// AdShown cannot go back to AdRequested directly; the request resets.
	state, err := svc.RequestAd(ctx, userID)
	if err != nil {
		t.Fatalf("RequestAd: %v", err)
	}
	if state != StateAdRequested {
		t.Fatalf("expected %s, got %s", StateAdRequested, state)
	}
	if current := svc.FlowState(ctx, userID); current != StateAdRequested {
		t.Fatalf("flow state = %s, want %s", current, StateAdRequested)
	}
}
