package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// BOOKING STATUSES (matches DB ENUMs)
// ============================================================================

// BookingStatus represents the lifecycle state of a trek booking
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Draft written, checkout not finished
	BookingStatusConfirmed BookingStatus = "confirmed" // Payment reconciled against the draft
	BookingStatusFailed    BookingStatus = "failed"    // Gateway reported failure or cancellation
	BookingStatusRecovered BookingStatus = "recovered" // Payment arrived for an id that had no draft
	BookingStatusFallback  BookingStatus = "fallback"  // Store error during reconciliation, new record written
)

// PaymentStatus represents the payment state stored on a booking
// Matches PostgreSQL ENUM: booking_payment_status
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var (
	// ErrInvalidStatusTransition is returned when a booking cannot move to the requested status
	ErrInvalidStatusTransition = errors.New("invalid booking status transition")

	// ErrBookingStateConflict is returned by conditional updates that matched no row,
	// either because the booking vanished or because another writer moved it first
	ErrBookingStateConflict = errors.New("booking state changed concurrently")
)

// bookingTransitions lists the allowed next states per status.
// failed -> confirmed covers a retry inside the same checkout popup after a failed attempt.
// confirmed -> confirmed is the idempotent re-write of a duplicate success callback.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending: {
		BookingStatusConfirmed,
		BookingStatusFailed,
		BookingStatusRecovered,
		BookingStatusFallback,
	},
	BookingStatusFailed:    {BookingStatusConfirmed},
	BookingStatusConfirmed: {BookingStatusConfirmed},
}

// IsValid reports whether the status is a known value
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusFailed,
		BookingStatusRecovered, BookingStatusFallback:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidStatusTransition wrapped with both states when not allowed
func (s BookingStatus) ValidateTransition(next BookingStatus) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, s, next)
	}
	return nil
}

// ============================================================================
// BOOKING
// ============================================================================

// Booking is the persisted record of one reservation attempt.
// ID is assigned once at creation and is the only reconciliation key.
type Booking struct {
	ID            string        `json:"id" db:"id"`
	Status        BookingStatus `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	// Identity snapshot
	UserID        string `json:"user_id" db:"user_id"`
	UserEmail     string `json:"user_email" db:"user_email"`
	UserName      string `json:"user_name" db:"user_name"`
	ContactNumber string `json:"contact_number" db:"contact_number"`

	// Trek reference (weak, the trek may be edited or removed later)
	TrekID       string `json:"trek_id" db:"trek_id"`
	TrekName     string `json:"trek_name" db:"trek_name"`
	Participants int    `json:"participants" db:"participants"`
	StartDate    string `json:"start_date" db:"start_date"` // YYYY-MM-DD

	// Amounts in the smallest currency unit
	Amount         int64  `json:"amount" db:"amount"`
	OriginalAmount int64  `json:"original_amount" db:"original_amount"`
	TotalAmount    int64  `json:"total_amount" db:"total_amount"`
	Currency       string `json:"currency" db:"currency"`

	Coupon *BookingCoupon `json:"coupon,omitempty" db:"coupon"`

	// Set only on completion
	PaymentID        *string `json:"payment_id,omitempty" db:"payment_id"`
	PaymentOrderID   *string `json:"payment_order_id,omitempty" db:"payment_order_id"`
	PaymentSignature *string `json:"payment_signature,omitempty" db:"payment_signature"`

	// Set on failure
	ErrorDescription *string `json:"error_description,omitempty" db:"error_description"`

	// Recovery and fallback records only
	RecoveryReason *string `json:"recovery_reason,omitempty" db:"recovery_reason"`
	RawPayment     JSONB   `json:"raw_payment,omitempty" db:"raw_payment"`

	PaymentReconciledAt *time.Time `json:"payment_reconciled_at,omitempty" db:"payment_reconciled_at"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// BookingCoupon is the coupon snapshot embedded into a booking
type BookingCoupon struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Discount     int64        `json:"discount"`
	DiscountType DiscountType `json:"discount_type"`
}

// Value implements the driver.Valuer interface
func (c BookingCoupon) Value() (driver.Value, error) {
	bytes, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (c *BookingCoupon) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("type assertion to []byte failed for BookingCoupon")
	}
}

// PaymentCompletion holds the payment fields written when a booking is confirmed
type PaymentCompletion struct {
	PaymentID   string
	OrderID     string
	Signature   string
	CompletedAt time.Time
	// FirstReconciliation is true when this write moves the booking into confirmed
	FirstReconciliation bool
}

// IsTerminal reports whether the booking has left the pending state
func (b *Booking) IsTerminal() bool {
	return b.Status != BookingStatusPending
}

// HasCoupon reports whether the booking carries a coupon reference
func (b *Booking) HasCoupon() bool {
	return b.Coupon != nil && b.Coupon.ID != ""
}
