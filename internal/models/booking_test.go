package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatusTransitions(t *testing.T) {
	tests := []struct {
		from BookingStatus
		to   BookingStatus
		want bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusFailed, true},
		{BookingStatusPending, BookingStatusRecovered, true},
		{BookingStatusPending, BookingStatusFallback, true},
		{BookingStatusPending, BookingStatusPending, false},
		{BookingStatusConfirmed, BookingStatusConfirmed, true},
		{BookingStatusConfirmed, BookingStatusFailed, false},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusFailed, BookingStatusConfirmed, true},
		{BookingStatusFailed, BookingStatusFailed, false},
		{BookingStatusRecovered, BookingStatusConfirmed, false},
		{BookingStatusFallback, BookingStatusConfirmed, false},
		{BookingStatusFallback, BookingStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))

			err := tt.from.ValidateTransition(tt.to)
			if tt.want {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidStatusTransition))
			}
		})
	}
}

func TestBookingStatusIsValid(t *testing.T) {
	assert.True(t, BookingStatusRecovered.IsValid())
	assert.False(t, BookingStatus("cancelled").IsValid())
}

func TestBookingCouponValueScan(t *testing.T) {
	coupon := BookingCoupon{ID: "c1", Code: "TREK10", Discount: 1000, DiscountType: DiscountTypePercentage}

	value, err := coupon.Value()
	require.NoError(t, err)

	var scanned BookingCoupon
	require.NoError(t, scanned.Scan([]byte(value.(string))))
	assert.Equal(t, coupon, scanned)

	var empty BookingCoupon
	assert.NoError(t, empty.Scan(nil))
	assert.Error(t, empty.Scan(42))
}

func TestJSONBScan(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"payment_id":"pay_1"}`)))
	assert.Equal(t, "pay_1", j["payment_id"])

	require.NoError(t, j.Scan(`{"order_id":"order_1"}`))
	assert.Equal(t, "order_1", j["order_id"])

	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)

	value, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestCouponResultSnapshot(t *testing.T) {
	coupon := &Coupon{ID: "c1", Code: "FLAT500", DiscountType: DiscountTypeFixed, DiscountValue: decimal.NewFromInt(500)}

	valid := CouponResult{Valid: true, Discount: 500, Coupon: coupon}
	snapshot := valid.Snapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, "c1", snapshot.ID)
	assert.Equal(t, "FLAT500", snapshot.Code)
	assert.Equal(t, int64(500), snapshot.Discount)
	assert.Equal(t, DiscountTypeFixed, snapshot.DiscountType)

	invalid := CouponResult{Valid: false, Coupon: coupon}
	assert.Nil(t, invalid.Snapshot())
}

func TestGatewaySuccessRawFields(t *testing.T) {
	success := GatewaySuccess{
		PaymentID: "pay_123",
		OrderID:   "order_9",
		Metadata:  map[string]string{"booking_id": "b1"},
		Raw:       map[string]interface{}{"razorpay_payment_id": "pay_123"},
	}

	fields := success.RawFields()
	assert.Equal(t, "pay_123", fields["payment_id"])
	assert.Equal(t, "order_9", fields["order_id"])
	assert.Equal(t, map[string]interface{}{"booking_id": "b1"}, fields["metadata"])
	assert.Contains(t, fields, "raw")

	var outcome GatewayOutcome = success
	_, isSuccess := outcome.(GatewaySuccess)
	assert.True(t, isSuccess)
}

func TestPaymentAuditBuilder(t *testing.T) {
	audit := NewPaymentAudit(PaymentEventBookingConfirmed, PaymentSourceCheckout).
		SetBooking("b1").
		SetPayment("pay_1", "").
		SetAmount(250000, "INR").
		SetTransition(BookingStatusPending, BookingStatusConfirmed).
		SetMetadata(RequestMeta{IPAddress: "203.0.113.5"})

	require.NotNil(t, audit.BookingID)
	assert.Equal(t, "b1", *audit.BookingID)
	assert.Equal(t, "pay_1", *audit.PaymentID)
	assert.Nil(t, audit.OrderID)
	assert.Equal(t, int64(250000), *audit.Amount)
	assert.Equal(t, "pending", *audit.PreviousStatus)
	assert.Equal(t, "confirmed", *audit.ResultStatus)
	assert.Equal(t, "203.0.113.5", *audit.IPAddress)
	assert.Nil(t, audit.UserAgent)
	assert.False(t, audit.IsDuplicate)
}
