package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arcanalabs/arcana-server/internal/auth"
	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/internal/ledger"
	appmiddleware "github.com/arcanalabs/arcana-server/internal/middleware"
	"github.com/arcanalabs/arcana-server/internal/repository"
	"github.com/arcanalabs/arcana-server/pkg/config"
)

// memoryRepo is an in-memory profile store for handler tests.
type memoryRepo struct {
	mu        sync.Mutex
	profiles  map[string]*domain.Profile
	purchases map[string]*domain.Purchase
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		profiles:  make(map[string]*domain.Profile),
		purchases: make(map[string]*domain.Purchase),
	}
}

func (r *memoryRepo) GetByID(_ context.Context, userID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	clone := *profile
	return &clone, nil
}

func (r *memoryRepo) Create(_ context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *profile
	r.profiles[profile.UserID] = &clone
	return nil
}

func (r *memoryRepo) UpdateProfile(_ context.Context, userID string, fields repository.ProfileUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return repository.ErrProfileNotFound
	}
	if fields.DisplayName != nil {
		profile.DisplayName = *fields.DisplayName
	}
	if fields.ZodiacSign != nil {
		profile.ZodiacSign = *fields.ZodiacSign
	}
	return nil
}

func (r *memoryRepo) SpendCredits(_ context.Context, userID string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return 0, repository.ErrProfileNotFound
	}
	if profile.Credits < amount {
		return 0, repository.ErrInsufficientCredits
	}
	profile.Credits -= amount
	return profile.Credits, nil
}

func (r *memoryRepo) AddCredits(_ context.Context, userID string, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return 0, repository.ErrProfileNotFound
	}
	profile.Credits += amount
	return profile.Credits, nil
}

func (r *memoryRepo) ClaimDailyBonus(_ context.Context, userID string, amount int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[userID]
	if !ok {
		return 0, false, repository.ErrProfileNotFound
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	if profile.LastDailyBonus != nil && !profile.LastDailyBonus.Before(today) {
		return profile.Credits, false, nil
	}

	profile.Credits += amount
	stamp := time.Now().UTC()
	profile.LastDailyBonus = &stamp
	return profile.Credits, true, nil
}

func (r *memoryRepo) RecordPurchase(_ context.Context, purchase *domain.Purchase) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[purchase.UserID]
	if !ok {
		return 0, false, repository.ErrProfileNotFound
	}
	if _, exists := r.purchases[purchase.TransactionID]; exists {
		return profile.Credits, false, nil
	}

	clone := *purchase
	r.purchases[purchase.TransactionID] = &clone
	profile.Credits += purchase.CreditsGranted
	return profile.Credits, true, nil
}

func (r *memoryRepo) GetPurchase(_ context.Context, transactionID string) (*domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purchase, ok := r.purchases[transactionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *purchase
	return &clone, nil
}

type testAPI struct {
	handler  http.Handler
	repo     *memoryRepo
	verifier *auth.Verifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := newMemoryRepo()

	ledgerSvc := ledger.NewService(repo, nil, config.LedgerConfig{
		StartingCredits:  3,
		UnlockCost:       1,
		DailyBonusAmount: 1,
		AdRewardAmount:   1,
	}, log)

	verifier := auth.NewVerifier(config.AuthConfig{
		JWTSecret: "handler-test-secret",
		TokenTTL:  time.Hour,
	})

	_, handler := NewServer(Deps{
		Ledger: ledgerSvc,
		Auth:   appmiddleware.NewAuthMiddleware(verifier, log),
		Log:    log,
	})

	return &testAPI{handler: handler, repo: repo, verifier: verifier}
}

func (a *testAPI) request(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := a.verifier.Issue(userID, "session-1")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestAPI_RejectsMissingToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.request(t, http.MethodGet, "/v1/profile", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAPI_ProfileProvisionedOnFirstContact(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	rec := api.request(t, http.MethodGet, "/v1/profile", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Balance.Credits != 3 {
		t.Fatalf("starting credits = %d, want 3", resp.Balance.Credits)
	}
}

func TestAPI_SpendDebitsBalance(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	// Provision the default three credits.
	api.request(t, http.MethodGet, "/v1/profile", token, "")

	rec := api.request(t, http.MethodPost, "/v1/ledger/spend", token, `{"amount":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp spendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK {
		t.Fatal("spend refused with sufficient credits")
	}
	if resp.Balance.Credits != 2 {
		t.Fatalf("balance = %d, want 2", resp.Balance.Credits)
	}
}

func TestAPI_SpendRefusedWhenBroke(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	api.request(t, http.MethodGet, "/v1/profile", token, "")

	rec := api.request(t, http.MethodPost, "/v1/ledger/spend", token, `{"amount":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp spendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK {
		t.Fatal("spend succeeded past the balance")
	}
	if resp.Balance.Credits != 3 {
		t.Fatalf("balance = %d, want untouched 3", resp.Balance.Credits)
	}
}

func TestAPI_DailyBonusOncePerDay(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	api.request(t, http.MethodGet, "/v1/profile", token, "")

	first := api.request(t, http.MethodPost, "/v1/ledger/daily-bonus", token, "")
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", first.Code, first.Body.String())
	}

	var resp dailyBonusResponse
	if err := json.NewDecoder(first.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Granted {
		t.Fatal("first claim refused")
	}
	if resp.Balance.Credits != 4 {
		t.Fatalf("balance = %d, want 4", resp.Balance.Credits)
	}

	second := api.request(t, http.MethodPost, "/v1/ledger/daily-bonus", token, "")
	if err := json.NewDecoder(second.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Granted {
		t.Fatal("second claim granted on the same day")
	}
	if resp.Balance.Credits != 4 {
		t.Fatalf("balance = %d, want 4 after refused claim", resp.Balance.Credits)
	}
}

func TestAPI_PatchProfileValidatesSign(t *testing.T) {
	api := newTestAPI(t)
	token := api.token(t, "user-1")

	api.request(t, http.MethodGet, "/v1/profile", token, "")

	rec := api.request(t, http.MethodPatch, "/v1/profile", token, `{"zodiac_sign":"dragon"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = api.request(t, http.MethodPatch, "/v1/profile", token, `{"zodiac_sign":"leo"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp profileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Profile.ZodiacSign != domain.SignLeo {
		t.Fatalf("zodiac sign = %q, want leo", resp.Profile.ZodiacSign)
	}
}
