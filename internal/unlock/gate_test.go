package unlock

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/pkg/config"
)

type fakeLedger struct {
	profile    domain.Profile
	spendCalls int
}

func (f *fakeLedger) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	p := f.profile
	return &p, nil
}

func (f *fakeLedger) Spend(ctx context.Context, userID string, amount int64) (bool, domain.Balance, error) {
	f.spendCalls++
	if f.profile.IsPremium {
		return true, f.profile.Balance(), nil
	}
	if f.profile.Credits < amount {
		return false, f.profile.Balance(), nil
	}
	f.profile.Credits -= amount
	return true, f.profile.Balance(), nil
}

func newTestGate(t *testing.T, ledger *fakeLedger) *Gate {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGate(ledger, client,
		config.LedgerConfig{UnlockCost: 1},
		config.UnlockConfig{SessionTTL: time.Hour},
		log,
	)
}

func TestGate_Unlock_SpendsOnce(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{profile: domain.Profile{UserID: "u1", Credits: 3}}
	gate := newTestGate(t, ledger)

	result, err := gate.Unlock(ctx, "u1", "sess-1", "dream:abc")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !result.Unlocked || result.AlreadyUnlocked {
		t.Fatalf("expected paid unlock, got %+v", result)
	}
	if result.Balance.Credits != 2 {
		t.Fatalf("credits = %d, want 2", result.Balance.Credits)
	}

	// Same session re-unlocks for free.
	again, err := gate.Unlock(ctx, "u1", "sess-1", "dream:abc")
	if err != nil {
		t.Fatalf("second Unlock: %v", err)
	}
	if !again.Unlocked || !again.AlreadyUnlocked {
		t.Fatalf("expected free re-unlock, got %+v", again)
	}
	if ledger.spendCalls != 1 {
		t.Fatalf("spend called %d times, want 1", ledger.spendCalls)
	}
}

func TestGate_Unlock_NewSessionPaysAgain(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{profile: domain.Profile{UserID: "u1", Credits: 3}}
	gate := newTestGate(t, ledger)

	if _, err := gate.Unlock(ctx, "u1", "sess-1", "dream:abc"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	result, err := gate.Unlock(ctx, "u1", "sess-2", "dream:abc")
	if err != nil {
		t.Fatalf("Unlock in new session: %v", err)
	}
	if !result.Unlocked || result.AlreadyUnlocked {
		t.Fatalf("expected a second paid unlock, got %+v", result)
	}
	if ledger.spendCalls != 2 {
		t.Fatalf("spend called %d times, want 2", ledger.spendCalls)
	}
}

func TestGate_Unlock_InsufficientCredits(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{profile: domain.Profile{UserID: "u2", Credits: 0}}
	gate := newTestGate(t, ledger)

	result, err := gate.Unlock(ctx, "u2", "sess-1", "dream:abc")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if result.Unlocked {
		t.Fatalf("expected locked result, got %+v", result)
	}

	unlocked, err := gate.IsUnlocked(ctx, "u2", "sess-1", "dream:abc")
	if err != nil {
		t.Fatalf("IsUnlocked: %v", err)
	}
	if unlocked {
		t.Fatal("content must stay locked after a failed spend")
	}
}

func TestGate_PremiumSeesEverything(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{profile: domain.Profile{UserID: "u3", Credits: 0, IsPremium: true}}
	gate := newTestGate(t, ledger)

	unlocked, err := gate.IsUnlocked(ctx, "u3", "sess-1", "dream:abc")
	if err != nil {
		t.Fatalf("IsUnlocked: %v", err)
	}
	if !unlocked {
		t.Fatal("premium profile must see full content")
	}

	result, err := gate.Unlock(ctx, "u3", "sess-1", "dream:abc")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !result.Unlocked || !result.AlreadyUnlocked {
		t.Fatalf("expected premium passthrough, got %+v", result)
	}
	if ledger.spendCalls != 0 {
		t.Fatalf("spend called %d times, want 0", ledger.spendCalls)
	}
}
