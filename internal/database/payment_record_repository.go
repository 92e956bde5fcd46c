package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

// PaymentRecordRepository stores the write-once audit copy of completed payments
type PaymentRecordRepository struct {
	db *sqlx.DB
}

// NewPaymentRecordRepository creates a new PaymentRecordRepository
func NewPaymentRecordRepository(db *sqlx.DB) *PaymentRecordRepository {
	return &PaymentRecordRepository{db: db}
}

// RecordOnce inserts the record unless one already exists for the payment id.
// Returns true when this call wrote the row.
func (r *PaymentRecordRepository) RecordOnce(ctx context.Context, record *models.PaymentRecord) (bool, error) {
	if record.PaymentID == "" {
		return false, fmt.Errorf("payment id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payments (
			payment_id, booking_id, order_id, signature, signature_verified,
			amount, currency, raw_response, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (payment_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		record.PaymentID, record.BookingID, record.OrderID, record.Signature, record.SignatureVerified,
		record.Amount, record.Currency, record.RawResponse, record.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record payment %s: %w", record.PaymentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record payment %s: %w", record.PaymentID, err)
	}
	return rows > 0, nil
}
