package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

const bookingColumns = `
	id, status, payment_status,
	user_id, user_email, user_name, contact_number,
	trek_id, trek_name, participants, start_date,
	amount, original_amount, total_amount, currency,
	coupon, payment_id, payment_order_id, payment_signature,
	error_description, recovery_reason, raw_payment,
	payment_reconciled_at, created_at, updated_at`

// BookingRepository handles trek booking database operations
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// WRITES
// ============================================================================

// Create inserts a booking under a store-assigned id and returns that id
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) (string, error) {
	booking.ID = uuid.New().String()
	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	if _, err := r.insert(ctx, booking, false); err != nil {
		return "", fmt.Errorf("failed to create booking: %w", err)
	}
	return booking.ID, nil
}

// SetByID writes a booking under a caller-chosen id.
// An existing row is never overwritten; the returned bool reports whether the row was written.
func (r *BookingRepository) SetByID(ctx context.Context, booking *models.Booking) (bool, error) {
	if booking.ID == "" {
		return false, fmt.Errorf("booking id is required")
	}
	now := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now

	inserted, err := r.insert(ctx, booking, true)
	if err != nil {
		return false, fmt.Errorf("failed to set booking %s: %w", booking.ID, err)
	}
	return inserted, nil
}

func (r *BookingRepository) insert(ctx context.Context, b *models.Booking, skipExisting bool) (bool, error) {
	query := `
		INSERT INTO bookings (` + bookingColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)`
	if skipExisting {
		query += ` ON CONFLICT (id) DO NOTHING`
	}

	result, err := r.db.ExecContext(ctx, query,
		b.ID, b.Status, b.PaymentStatus,
		b.UserID, b.UserEmail, b.UserName, b.ContactNumber,
		b.TrekID, b.TrekName, b.Participants, b.StartDate,
		b.Amount, b.OriginalAmount, b.TotalAmount, b.Currency,
		b.Coupon, b.PaymentID, b.PaymentOrderID, b.PaymentSignature,
		b.ErrorDescription, b.RecoveryReason, b.RawPayment,
		b.PaymentReconciledAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkConfirmed moves a pending, failed or already confirmed booking to confirmed.
// The returned bool is true only for the call that set payment_reconciled_at.
func (r *BookingRepository) MarkConfirmed(ctx context.Context, id string, completion models.PaymentCompletion) (bool, error) {
	completedAt := completion.CompletedAt.UTC().Truncate(time.Microsecond)

	query := `
		UPDATE bookings
		SET status = $2,
			payment_status = $3,
			payment_id = $4,
			payment_order_id = $5,
			payment_signature = $6,
			error_description = NULL,
			payment_reconciled_at = COALESCE(payment_reconciled_at, $7),
			updated_at = $7
		WHERE id = $1
		AND status IN ('pending', 'failed', 'confirmed')
		RETURNING payment_reconciled_at = $7`

	var first bool
	err := r.db.QueryRowContext(ctx, query,
		id, models.BookingStatusConfirmed, models.PaymentStatusCompleted,
		completion.PaymentID, completion.OrderID, completion.Signature,
		completedAt,
	).Scan(&first)
	if err == sql.ErrNoRows {
		return false, models.ErrBookingStateConflict
	}
	if err != nil {
		return false, fmt.Errorf("failed to confirm booking %s: %w", id, err)
	}
	return first, nil
}

// MarkFailed moves a pending booking to failed and stores the gateway's description
func (r *BookingRepository) MarkFailed(ctx context.Context, id string, description string, failedAt time.Time) error {
	query := `
		UPDATE bookings
		SET status = $2,
			payment_status = $3,
			error_description = $4,
			updated_at = $5
		WHERE id = $1
		AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query,
		id, models.BookingStatusFailed, models.PaymentStatusFailed, description, failedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to mark booking %s failed: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark booking %s failed: %w", id, err)
	}
	if rows == 0 {
		return models.ErrBookingStateConflict
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

// GetByID retrieves a booking by id. Returns nil, nil when absent.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %s: %w", id, err)
	}
	return &booking, nil
}

// ListByStatusSince returns bookings in any of the given statuses created after since
func (r *BookingRepository) ListByStatusSince(ctx context.Context, statuses []models.BookingStatus, since time.Time, limit int) ([]*models.Booking, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = ANY($1)
		AND created_at >= $2
		ORDER BY created_at ASC
		LIMIT $3`

	var bookings []*models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, pq.Array(values), since, limit); err != nil {
		return nil, fmt.Errorf("failed to list bookings by status: %w", err)
	}
	return bookings, nil
}

// ListStalePending returns pending bookings last touched before olderThan
func (r *BookingRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending'
		AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`

	var bookings []*models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, olderThan, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale pending bookings: %w", err)
	}
	return bookings, nil
}
