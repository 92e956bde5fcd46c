package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

// CouponRepository handles coupon lookups and usage counting
type CouponRepository struct {
	db *sqlx.DB
}

// NewCouponRepository creates a new CouponRepository
func NewCouponRepository(db *sqlx.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByCode retrieves a coupon by its code. Codes are matched case-insensitively.
// Returns nil, nil when no coupon has that code.
func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	query := `
		SELECT id, code, description, discount_type, discount_value,
			max_discount, min_purchase, valid_from, valid_until,
			usage_limit, usage_count, status, created_at, updated_at
		FROM coupons
		WHERE UPPER(code) = $1
		LIMIT 1`

	err := r.db.GetContext(ctx, &coupon, query, strings.ToUpper(strings.TrimSpace(code)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &coupon, nil
}

// IncrementUsage atomically adds one to a coupon's usage counter
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	query := `
		UPDATE coupons
		SET usage_count = usage_count + 1,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, couponID)
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("coupon %s not found", couponID)
	}
	return nil
}
