package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends an audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, booking_id, payment_id, order_id,
			event_type, event_source,
			amount, currency,
			previous_status, result_status,
			payload, error_message, error_code, is_duplicate,
			ip_address, user_agent, device_summary,
			created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8,
			$9, $10,
			$11, $12, $13, $14,
			$15, $16, $17,
			$18
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.BookingID, audit.PaymentID, audit.OrderID,
		audit.EventType, audit.EventSource,
		audit.Amount, audit.Currency,
		audit.PreviousStatus, audit.ResultStatus,
		audit.Payload, audit.ErrorMessage, audit.ErrorCode, audit.IsDuplicate,
		audit.IPAddress, audit.UserAgent, audit.DeviceSummary,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"booking_id": audit.BookingID,
			"payment_id": audit.PaymentID,
		}).Error("Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")

	return nil
}

// HasEvent reports whether an event of the given type was already logged for a booking
func (r *PaymentAuditRepository) HasEvent(ctx context.Context, bookingID string, eventType models.PaymentEventType) (bool, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM payment_audits
		WHERE booking_id = $1
		AND event_type = $2`

	if err := r.db.GetContext(ctx, &count, query, bookingID, eventType); err != nil {
		return false, fmt.Errorf("failed to check audit events: %w", err)
	}
	return count > 0, nil
}

// GetByBookingID retrieves all audit entries for a booking, oldest first
func (r *PaymentAuditRepository) GetByBookingID(ctx context.Context, bookingID string) ([]*models.PaymentAudit, error) {
	var audits []*models.PaymentAudit
	query := `
		SELECT id, booking_id, payment_id, order_id, event_type, event_source,
			amount, currency, previous_status, result_status,
			payload, error_message, error_code, is_duplicate,
			ip_address, user_agent, device_summary, created_at
		FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at ASC`

	if err := r.db.SelectContext(ctx, &audits, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get audits by booking id: %w", err)
	}
	return audits, nil
}
