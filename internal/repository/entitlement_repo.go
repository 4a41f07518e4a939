package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntitlementRepository stores the per-user paid status and Stripe linkage.
type EntitlementRepository interface {
	// Get returns the user's entitlement. A missing row is not an error:
	// it comes back as the Free-tier default.
	Get(ctx context.Context, userID string) (*model.Entitlement, error)
	// BindStripeCustomer records the Stripe customer ID for a user,
	// creating the row if needed. An already-bound customer ID is never
	// overwritten.
	BindStripeCustomer(ctx context.Context, userID, customerID string) error
	// SetPro flips the user's paid status, creating the row if needed.
	SetPro(ctx context.Context, userID string, isPro bool) error
	// SetProAndBindCustomer applies both effects of a completed checkout
	// in one statement.
	SetProAndBindCustomer(ctx context.Context, userID, customerID string) error
	// GetUserIDByStripeCustomerID resolves a Stripe customer to a user.
	// Returns "" with no error when the customer is unknown.
	GetUserIDByStripeCustomerID(ctx context.Context, customerID string) (string, error)
}

type entitlementRepo struct {
	pool *pgxpool.Pool
}

// NewEntitlementRepo creates a new EntitlementRepository.
func NewEntitlementRepo(pool *pgxpool.Pool) EntitlementRepository {
	return &entitlementRepo{pool: pool}
}

func (r *entitlementRepo) Get(ctx context.Context, userID string) (*model.Entitlement, error) {
	const q = `
        SELECT user_id, is_pro, stripe_customer_id, created_at, updated_at
        FROM profiles
        WHERE user_id = $1
    `
	var e model.Entitlement
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&e.UserID,
		&e.IsPro,
		&e.StripeCustomerID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Absence means Free tier.
			return &model.Entitlement{UserID: userID}, nil
		}
		return nil, fmt.Errorf("fetch entitlement for user %s: %w", userID, err)
	}
	return &e, nil
}

func (r *entitlementRepo) BindStripeCustomer(ctx context.Context, userID, customerID string) error {
	const q = `
        INSERT INTO profiles (user_id, stripe_customer_id, created_at, updated_at)
        VALUES ($1, $2, NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET stripe_customer_id = COALESCE(profiles.stripe_customer_id, EXCLUDED.stripe_customer_id),
            updated_at = NOW();
    `
	if _, err := r.pool.Exec(ctx, q, userID, customerID); err != nil {
		return fmt.Errorf("bind stripe customer for user %s: %w", userID, err)
	}
	return nil
}

func (r *entitlementRepo) SetPro(ctx context.Context, userID string, isPro bool) error {
	const q = `
        INSERT INTO profiles (user_id, is_pro, created_at, updated_at)
        VALUES ($1, $2, NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET is_pro = EXCLUDED.is_pro,
            updated_at = NOW();
    `
	if _, err := r.pool.Exec(ctx, q, userID, isPro); err != nil {
		return fmt.Errorf("set is_pro=%t for user %s: %w", isPro, userID, err)
	}
	return nil
}

func (r *entitlementRepo) SetProAndBindCustomer(ctx context.Context, userID, customerID string) error {
	const q = `
        INSERT INTO profiles (user_id, is_pro, stripe_customer_id, created_at, updated_at)
        VALUES ($1, TRUE, NULLIF($2, ''), NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET is_pro = TRUE,
            stripe_customer_id = COALESCE(profiles.stripe_customer_id, EXCLUDED.stripe_customer_id),
            updated_at = NOW();
    `
	if _, err := r.pool.Exec(ctx, q, userID, customerID); err != nil {
		return fmt.Errorf("activate entitlement for user %s: %w", userID, err)
	}
	return nil
}

func (r *entitlementRepo) GetUserIDByStripeCustomerID(ctx context.Context, customerID string) (string, error) {
	const q = `SELECT user_id FROM profiles WHERE stripe_customer_id = $1`
	var userID string
	err := r.pool.QueryRow(ctx, q, customerID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("lookup user by stripe customer %s: %w", customerID, err)
	}
	return userID, nil
}
