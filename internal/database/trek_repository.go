package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

// TrekRepository reads the trek catalog
type TrekRepository struct {
	db *sqlx.DB
}

// NewTrekRepository creates a new TrekRepository
func NewTrekRepository(db *sqlx.DB) *TrekRepository {
	return &TrekRepository{db: db}
}

// GetByID retrieves an active trek. Returns nil, nil when absent or inactive.
func (r *TrekRepository) GetByID(ctx context.Context, id string) (*models.Trek, error) {
	var trek models.Trek
	query := `
		SELECT id, name, location, duration_days, unit_price,
			available_dates, available_months, is_active, created_at, updated_at
		FROM treks
		WHERE id = $1 AND is_active = TRUE`

	err := r.db.GetContext(ctx, &trek, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trek %s: %w", id, err)
	}
	return &trek, nil
}
