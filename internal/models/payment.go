package models

import "time"

// GatewayOutcome is the result of one checkout attempt as reported by the widget.
// It is either a GatewaySuccess or a GatewayFailure.
type GatewayOutcome interface {
	isGatewayOutcome()
}

// GatewaySuccess carries every identifier the gateway returned for a completed payment.
// None of it is trusted as-is; it always goes through reconciliation.
type GatewaySuccess struct {
	// VerifiedBookingID is read back from the options this server handed to the widget
	VerifiedBookingID string                 `json:"verified_booking_id,omitempty"`
	// BookingID is whatever booking id the client echoed in the callback
	BookingID         string                 `json:"booking_id,omitempty"`
	PaymentID         string                 `json:"payment_id,omitempty"`
	OrderID           string                 `json:"order_id,omitempty"`
	Signature         string                 `json:"signature,omitempty"`
	SignatureVerified bool                   `json:"signature_verified"`
	Metadata          map[string]string      `json:"metadata,omitempty"`
	Raw               map[string]interface{} `json:"raw,omitempty"`
}

func (GatewaySuccess) isGatewayOutcome() {}

// RawFields flattens the success into the blob stored on recovery and fallback records
func (s GatewaySuccess) RawFields() JSONB {
	fields := JSONB{
		"verified_booking_id": s.VerifiedBookingID,
		"booking_id":          s.BookingID,
		"payment_id":          s.PaymentID,
		"order_id":            s.OrderID,
		"signature":           s.Signature,
		"signature_verified":  s.SignatureVerified,
	}
	if len(s.Metadata) > 0 {
		metadata := make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			metadata[k] = v
		}
		fields["metadata"] = metadata
	}
	if len(s.Raw) > 0 {
		fields["raw"] = s.Raw
	}
	return fields
}

// GatewayFailure describes a failed or cancelled checkout attempt
type GatewayFailure struct {
	// BookingID is the attempt's booking when known, else what the client sent
	BookingID   string                 `json:"booking_id,omitempty"`
	Code        string                 `json:"code,omitempty"`
	Description string                 `json:"description"`
	Reason      string                 `json:"reason,omitempty"`
	PaymentID   string                 `json:"payment_id,omitempty"`
	Cancelled   bool                   `json:"cancelled"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	Raw         map[string]interface{} `json:"raw,omitempty"`
}

func (GatewayFailure) isGatewayOutcome() {}

// PaymentRecord is the write-once audit copy of a completed payment, keyed by the gateway payment id
type PaymentRecord struct {
	PaymentID         string    `json:"payment_id" db:"payment_id"`
	BookingID         string    `json:"booking_id" db:"booking_id"`
	OrderID           *string   `json:"order_id,omitempty" db:"order_id"`
	Signature         *string   `json:"signature,omitempty" db:"signature"`
	SignatureVerified bool      `json:"signature_verified" db:"signature_verified"`
	Amount            int64     `json:"amount" db:"amount"`
	Currency          string    `json:"currency" db:"currency"`
	RawResponse       JSONB     `json:"raw_response" db:"raw_response"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
