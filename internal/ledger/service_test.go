package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/arcanalabs/arcana-server/internal/domain"
	"github.com/arcanalabs/arcana-server/internal/repository"
	"github.com/arcanalabs/arcana-server/pkg/config"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetByID(ctx context.Context, userID string) (*domain.Profile, error) {
	args := m.Called(ctx, userID)
	profile, _ := args.Get(0).(*domain.Profile)
	return profile, args.Error(1)
}

func (m *mockRepo) Create(ctx context.Context, profile *domain.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *mockRepo) UpdateProfile(ctx context.Context, userID string, fields repository.ProfileUpdate) error {
	args := m.Called(ctx, userID, fields)
	return args.Error(0)
}

func (m *mockRepo) SpendCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepo) ClaimDailyBonus(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockRepo) RecordPurchase(ctx context.Context, purchase *domain.Purchase) (int64, bool, error) {
	args := m.Called(ctx, purchase)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *mockRepo) GetPurchase(ctx context.Context, transactionID string) (*domain.Purchase, error) {
	args := m.Called(ctx, transactionID)
	purchase, _ := args.Get(0).(*domain.Purchase)
	return purchase, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, nil, config.LedgerConfig{
		StartingCredits:  3,
		UnlockCost:       1,
		DailyBonusAmount: 1,
		AdRewardAmount:   1,
	}, testLogger())
}

func TestService_Spend(t *testing.T) {
	ctx := context.Background()
	userID := "user-1"

	testCases := []struct {
		name          string
		amount        int64
		setupMocks    func(repo *mockRepo)
		expectOK      bool
		expectCredits int64
		expectErr     bool
	}{
		{
			name:   "debits one credit",
			amount: 1,
			setupMocks: func(repo *mockRepo) {
				repo.On("GetByID", mock.Anything, userID).
					Return(&domain.Profile{UserID: userID, Credits: 3}, nil).Once()
				repo.On("SpendCredits", mock.Anything, userID, int64(1)).
					Return(int64(2), nil).Once()
			},
			expectOK:      true,
			expectCredits: 2,
		},
		{
			name:   "insufficient balance leaves credits untouched",
			amount: 5,
			setupMocks: func(repo *mockRepo) {
				repo.On("GetByID", mock.Anything, userID).
					Return(&domain.Profile{UserID: userID, Credits: 3}, nil).Once()
			},
			expectOK:      false,
			expectCredits: 3,
		},
		{
			name:   "premium bypasses the debit",
			amount: 100,
			setupMocks: func(repo *mockRepo) {
				repo.On("GetByID", mock.Anything, userID).
					Return(&domain.Profile{UserID: userID, Credits: 0, IsPremium: true}, nil).Once()
			},
			expectOK:      true,
			expectCredits: 0,
		},
		{
			name:   "concurrent spend loses the conditional update",
			amount: 1,
			setupMocks: func(repo *mockRepo) {
				// A second device drained the balance between the cached
				// read and the conditional debit.
				repo.On("GetByID", mock.Anything, userID).
					Return(&domain.Profile{UserID: userID, Credits: 1}, nil).Once()
				repo.On("SpendCredits", mock.Anything, userID, int64(1)).
					Return(int64(0), repository.ErrInsufficientCredits).Once()
				repo.On("GetByID", mock.Anything, userID).
					Return(&domain.Profile{UserID: userID, Credits: 0}, nil).Once()
			},
			expectOK:      false,
			expectCredits: 0,
		},
		{
			name:       "zero amount is rejected",
			amount:     0,
			setupMocks: func(repo *mockRepo) {},
			expectErr:  true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockRepo{}
			tc.setupMocks(repo)

			svc := newTestService(repo)
			ok, balance, err := svc.Spend(ctx, userID, tc.amount)

			if tc.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.expectOK {
				t.Fatalf("ok = %t, want %t", ok, tc.expectOK)
			}
			if balance.Credits != tc.expectCredits {
				t.Fatalf("credits = %d, want %d", balance.Credits, tc.expectCredits)
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestService_ClaimDailyBonus(t *testing.T) {
	ctx := context.Background()
	userID := "user-2"

	t.Run("first claim of the day grants", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("ClaimDailyBonus", mock.Anything, userID, int64(1)).
			Return(int64(4), true, nil).Once()
		repo.On("GetByID", mock.Anything, userID).
			Return(&domain.Profile{UserID: userID, Credits: 4}, nil).Maybe()

		svc := newTestService(repo)
		granted, balance, err := svc.ClaimDailyBonus(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !granted {
			t.Fatal("expected the bonus to be granted")
		}
		if balance.Credits != 4 {
			t.Fatalf("credits = %d, want 4", balance.Credits)
		}
	})

	t.Run("second claim the same day is refused", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("ClaimDailyBonus", mock.Anything, userID, int64(1)).
			Return(int64(4), false, nil).Once()
		repo.On("GetByID", mock.Anything, userID).
			Return(&domain.Profile{UserID: userID, Credits: 4}, nil).Maybe()

		svc := newTestService(repo)
		granted, balance, err := svc.ClaimDailyBonus(ctx, userID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if granted {
			t.Fatal("expected the second claim to be refused")
		}
		if balance.Credits != 4 {
			t.Fatalf("credits = %d, want 4", balance.Credits)
		}
	})
}

func TestService_Credit(t *testing.T) {
	ctx := context.Background()
	userID := "user-3"

	t.Run("purchase credits are added", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("AddCredits", mock.Anything, userID, int64(50)).
			Return(int64(52), nil).Once()
		repo.On("GetByID", mock.Anything, userID).
			Return(&domain.Profile{UserID: userID, Credits: 52}, nil).Maybe()

		svc := newTestService(repo)
		balance, err := svc.Credit(ctx, userID, 50, "purchase")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if balance.Credits != 52 {
			t.Fatalf("credits = %d, want 52", balance.Credits)
		}
		repo.AssertExpectations(t)
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		svc := newTestService(&mockRepo{})
		if _, err := svc.Credit(ctx, userID, 0, "ad_reward"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}

func TestService_Provision(t *testing.T) {
	ctx := context.Background()
	userID := "user-4"

	t.Run("creates profile with starting credits", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("GetByID", mock.Anything, userID).
			Return((*domain.Profile)(nil), repository.ErrProfileNotFound).Once()
		repo.On("Create", mock.Anything, mock.MatchedBy(func(p *domain.Profile) bool {
			return p.UserID == userID && p.Credits == 3
		})).Return(nil).Once()

		svc := newTestService(repo)
		profile, err := svc.Provision(ctx, userID, "Luna")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Credits != 3 {
			t.Fatalf("credits = %d, want 3", profile.Credits)
		}
		repo.AssertExpectations(t)
	})

	t.Run("existing profile is returned as is", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("GetByID", mock.Anything, userID).
			Return(&domain.Profile{UserID: userID, Credits: 7}, nil).Once()

		svc := newTestService(repo)
		profile, err := svc.Provision(ctx, userID, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if profile.Credits != 7 {
			t.Fatalf("credits = %d, want 7", profile.Credits)
		}
	})

	t.Run("storage failure surfaces as error", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("GetByID", mock.Anything, userID).
			Return((*domain.Profile)(nil), errors.New("connection refused")).Once()

		svc := newTestService(repo)
		if _, err := svc.Provision(ctx, userID, ""); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
