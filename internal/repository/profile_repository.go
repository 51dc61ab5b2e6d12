// Package repository persists profiles and purchases in PostgreSQL. Every
// balance mutation is a single conditional statement so that concurrent
// spends from multiple devices can never observe or produce a negative
// balance.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arcanalabs/arcana-server/internal/domain"
)

var (
	// ErrProfileNotFound indicates that no profile row exists for the user.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInsufficientCredits indicates a conditional debit matched no row
	// because the balance was below the requested amount.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// ProfileRepository defines persistence operations for profiles and purchases.
type ProfileRepository interface {
	GetByID(ctx context.Context, userID string) (*domain.Profile, error)
	Create(ctx context.Context, profile *domain.Profile) error
	UpdateProfile(ctx context.Context, userID string, fields ProfileUpdate) error

	// SpendCredits decrements the balance iff credits >= amount, returning
	// the new balance.
	SpendCredits(ctx context.Context, userID string, amount int64) (int64, error)
	// AddCredits increments the balance unconditionally, returning the new
	// balance.
	AddCredits(ctx context.Context, userID string, amount int64) (int64, error)
	// ClaimDailyBonus credits amount and stamps today's date in one write.
	// granted is false when the bonus was already claimed today.
	ClaimDailyBonus(ctx context.Context, userID string, amount int64) (balance int64, granted bool, err error)

	// RecordPurchase inserts the purchase and credits the grant in a single
	// transaction. applied is false when the transaction id was already
	// recorded; in that case the balance is left untouched.
	RecordPurchase(ctx context.Context, purchase *domain.Purchase) (balance int64, applied bool, err error)
	GetPurchase(ctx context.Context, transactionID string) (*domain.Purchase, error)
}

// ProfileUpdate carries the optional fields of a partial profile update.
type ProfileUpdate struct {
	DisplayName *string
	ZodiacSign  *domain.ZodiacSign
}

type profileRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewProfileRepository creates a new SQL-backed profile repository.
func NewProfileRepository(db *sql.DB, log *slog.Logger) ProfileRepository {
	if log == nil {
		log = slog.Default()
	}

	return &profileRepository{
		db:  db,
		log: log,
	}
}

// GetByID retrieves a profile from the database by user identifier.
func (r *profileRepository) GetByID(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `
		SELECT user_id, display_name, zodiac_sign, credits, is_premium, last_daily_bonus, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, userID)

	var profile domain.Profile
	if err := row.Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.ZodiacSign,
		&profile.Credits,
		&profile.IsPremium,
		&profile.LastDailyBonus,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}

		r.log.Error("failed to fetch profile", slog.String("user_id", userID), slog.Any("error", err))
		return nil, fmt.Errorf("select profile: %w", err)
	}

	return &profile, nil
}

// Create persists a new profile row seeded with the starting credit grant.
func (r *profileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	const query = `
		INSERT INTO profiles (user_id, display_name, zodiac_sign, credits, is_premium, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	if _, err := r.db.ExecContext(
		ctx,
		query,
		profile.UserID,
		profile.DisplayName,
		profile.ZodiacSign,
		profile.Credits,
		profile.IsPremium,
		profile.CreatedAt,
	); err != nil {
		r.log.Error("failed to create profile", slog.String("user_id", profile.UserID), slog.Any("error", err))
		return fmt.Errorf("insert profile: %w", err)
	}

	return nil
}

// UpdateProfile applies the non-nil fields of the partial update.
func (r *profileRepository) UpdateProfile(ctx context.Context, userID string, fields ProfileUpdate) error {
	const query = `
		UPDATE profiles
		SET display_name = COALESCE($2, display_name),
		    zodiac_sign  = COALESCE($3, zodiac_sign),
		    updated_at   = now()
		WHERE user_id = $1
	`

	var sign *string
	if fields.ZodiacSign != nil {
		s := string(*fields.ZodiacSign)
		sign = &s
	}

	result, err := r.db.ExecContext(ctx, query, userID, fields.DisplayName, sign)
	if err != nil {
		r.log.Error("failed to update profile", slog.String("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("update profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile rows affected: %w", err)
	}
	if affected == 0 {
		return ErrProfileNotFound
	}

	return nil
}

// SpendCredits performs the conditional debit. The WHERE clause carries the
// sufficiency check, so two concurrent spends can never both commit past
// zero.
func (r *profileRepository) SpendCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	const query = `
		UPDATE profiles
		SET credits = credits - $2, updated_at = now()
		WHERE user_id = $1 AND credits >= $2
		RETURNING credits
	`

	var balance int64
	err := r.db.QueryRowContext(ctx, query, userID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to spend credits", slog.String("user_id", userID), slog.Int64("amount", amount), slog.Any("error", err))
		return 0, fmt.Errorf("spend credits: %w", err)
	}

	// No row matched: either the profile is missing or the balance is short.
	if _, getErr := r.GetByID(ctx, userID); getErr != nil {
		return 0, getErr
	}

	return 0, ErrInsufficientCredits
}

// AddCredits atomically increments the balance.
func (r *profileRepository) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	const query = `
		UPDATE profiles
		SET credits = credits + $2, updated_at = now()
		WHERE user_id = $1
		RETURNING credits
	`

	var balance int64
	if err := r.db.QueryRowContext(ctx, query, userID, amount).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrProfileNotFound
		}

		r.log.Error("failed to add credits", slog.String("user_id", userID), slog.Int64("amount", amount), slog.Any("error", err))
		return 0, fmt.Errorf("add credits: %w", err)
	}

	return balance, nil
}

// ClaimDailyBonus credits the bonus and stamps the claim date in one
// statement; the date check and both field writes are inseparable, so a
// given UTC day can grant at most once no matter how many devices race.
func (r *profileRepository) ClaimDailyBonus(ctx context.Context, userID string, amount int64) (int64, bool, error) {
	const query = `
		UPDATE profiles
		SET credits = credits + $2, last_daily_bonus = CURRENT_DATE, updated_at = now()
		WHERE user_id = $1
		  AND (last_daily_bonus IS NULL OR last_daily_bonus < CURRENT_DATE)
		RETURNING credits
	`

	var balance int64
	err := r.db.QueryRowContext(ctx, query, userID, amount).Scan(&balance)
	if err == nil {
		return balance, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to claim daily bonus", slog.String("user_id", userID), slog.Any("error", err))
		return 0, false, fmt.Errorf("claim daily bonus: %w", err)
	}

	profile, getErr := r.GetByID(ctx, userID)
	if getErr != nil {
		return 0, false, getErr
	}

	return profile.Credits, false, nil
}

// RecordPurchase inserts the purchase row and credits the grant in a single
// database transaction. The unique transaction id makes re-delivered store
// confirmations a no-op.
func (r *profileRepository) RecordPurchase(ctx context.Context, purchase *domain.Purchase) (int64, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin purchase transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const insertQuery = `
		INSERT INTO purchases (user_id, product_id, transaction_id, credits_granted, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (transaction_id) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, insertQuery,
		purchase.UserID,
		purchase.ProductID,
		purchase.TransactionID,
		purchase.CreditsGranted,
	)
	if err != nil {
		r.log.Error("failed to record purchase", slog.String("user_id", purchase.UserID), slog.String("transaction_id", purchase.TransactionID), slog.Any("error", err))
		return 0, false, fmt.Errorf("insert purchase: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("purchase rows affected: %w", err)
	}

	if inserted == 0 {
		// Duplicate delivery: return the current balance without crediting.
		var balance int64
		const balanceQuery = `SELECT credits FROM profiles WHERE user_id = $1`
		if err := tx.QueryRowContext(ctx, balanceQuery, purchase.UserID).Scan(&balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, false, ErrProfileNotFound
			}
			return 0, false, fmt.Errorf("select balance: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("commit purchase transaction: %w", err)
		}

		return balance, false, nil
	}

	const creditQuery = `
		UPDATE profiles
		SET credits = credits + $2, updated_at = now()
		WHERE user_id = $1
		RETURNING credits
	`

	var balance int64
	if err := tx.QueryRowContext(ctx, creditQuery, purchase.UserID, purchase.CreditsGranted).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrProfileNotFound
		}
		return 0, false, fmt.Errorf("credit purchase: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit purchase transaction: %w", err)
	}

	return balance, true, nil
}

// GetPurchase looks up a recorded purchase by its provider transaction id.
func (r *profileRepository) GetPurchase(ctx context.Context, transactionID string) (*domain.Purchase, error) {
	const query = `
		SELECT id, user_id, product_id, transaction_id, credits_granted, created_at
		FROM purchases
		WHERE transaction_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, transactionID)

	var purchase domain.Purchase
	if err := row.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.ProductID,
		&purchase.TransactionID,
		&purchase.CreditsGranted,
		&purchase.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		r.log.Error("failed to fetch purchase", slog.String("transaction_id", transactionID), slog.Any("error", err))
		return nil, fmt.Errorf("select purchase: %w", err)
	}

	return &purchase, nil
}
