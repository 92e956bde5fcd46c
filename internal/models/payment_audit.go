package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated              PaymentEventType = "payment_initiated"
	PaymentEventSuccess                PaymentEventType = "payment_success"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventCancelled              PaymentEventType = "payment_cancelled"
	PaymentEventBookingConfirmed       PaymentEventType = "booking_confirmed"
	PaymentEventBookingRecovered       PaymentEventType = "booking_recovered"
	PaymentEventBookingFallback        PaymentEventType = "booking_fallback"
	PaymentEventBookingFailed          PaymentEventType = "booking_failed"
	PaymentEventDuplicateCallback      PaymentEventType = "duplicate_callback"
	PaymentEventSignatureMismatch      PaymentEventType = "signature_mismatch"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
	PaymentEventReviewFlagged          PaymentEventType = "review_flagged"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend  PaymentEventSource = "backend"
	PaymentSourceCheckout PaymentEventSource = "checkout_widget"
	PaymentSourceUser     PaymentEventSource = "user"
	PaymentSourceSystem   PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BookingID *string   `json:"booking_id,omitempty" db:"booking_id"`
	PaymentID *string   `json:"payment_id,omitempty" db:"payment_id"`
	OrderID   *string   `json:"order_id,omitempty" db:"order_id"`

	// Event info
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	// Amounts in the smallest currency unit
	Amount   *int64  `json:"amount,omitempty" db:"amount"`
	Currency *string `json:"currency,omitempty" db:"currency"`

	// Booking state around the event
	PreviousStatus *string `json:"previous_status,omitempty" db:"previous_status"`
	ResultStatus   *string `json:"result_status,omitempty" db:"result_status"`

	// Raw gateway payload
	Payload JSONB `json:"payload,omitempty" db:"payload"`

	// Error tracking
	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	IsDuplicate bool `json:"is_duplicate" db:"is_duplicate"`

	// Request metadata
	IPAddress     *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceSummary *string `json:"device_summary,omitempty" db:"device_summary"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RequestMeta is the client information attached to audit entries
type RequestMeta struct {
	IPAddress     string
	UserAgent     string
	DeviceSummary string
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetBooking sets the booking the event belongs to
func (pa *PaymentAudit) SetBooking(bookingID string) *PaymentAudit {
	if bookingID != "" {
		pa.BookingID = &bookingID
	}
	return pa
}

// SetPayment sets the gateway payment and order ids
func (pa *PaymentAudit) SetPayment(paymentID, orderID string) *PaymentAudit {
	if paymentID != "" {
		pa.PaymentID = &paymentID
	}
	if orderID != "" {
		pa.OrderID = &orderID
	}
	return pa
}

// SetAmount sets the amount and currency
func (pa *PaymentAudit) SetAmount(amount int64, currency string) *PaymentAudit {
	pa.Amount = &amount
	if currency != "" {
		pa.Currency = &currency
	}
	return pa
}

// SetTransition records the booking status before and after the event
func (pa *PaymentAudit) SetTransition(previous, result BookingStatus) *PaymentAudit {
	if previous != "" {
		p := string(previous)
		pa.PreviousStatus = &p
	}
	if result != "" {
		r := string(result)
		pa.ResultStatus = &r
	}
	return pa
}

// SetPayload stores the raw gateway payload
func (pa *PaymentAudit) SetPayload(payload map[string]interface{}) *PaymentAudit {
	if len(payload) > 0 {
		pa.Payload = JSONB(payload)
	}
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string, code string) *PaymentAudit {
	pa.ErrorMessage = &message
	if code != "" {
		pa.ErrorCode = &code
	}
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(meta RequestMeta) *PaymentAudit {
	if meta.IPAddress != "" {
		pa.IPAddress = &meta.IPAddress
	}
	if meta.UserAgent != "" {
		pa.UserAgent = &meta.UserAgent
	}
	if meta.DeviceSummary != "" {
		pa.DeviceSummary = &meta.DeviceSummary
	}
	return pa
}

// MarkAsDuplicate marks this event as a duplicate
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}
