package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType is how a coupon discount is computed
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// CouponStatus represents whether a coupon can be redeemed at all
type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "active"
	CouponStatusInactive CouponStatus = "inactive"
)

// Coupon is a discount code managed by admins.
// Read-only for the booking flow except for the usage counter.
type Coupon struct {
	ID            string          `json:"id" db:"id"`
	Code          string          `json:"code" db:"code"`
	Description   *string         `json:"description,omitempty" db:"description"`
	DiscountType  DiscountType    `json:"discount_type" db:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value" db:"discount_value"` // percent, or smallest currency unit for fixed
	MaxDiscount   *int64          `json:"max_discount,omitempty" db:"max_discount"`
	MinPurchase   *int64          `json:"min_purchase,omitempty" db:"min_purchase"`
	ValidFrom     *time.Time      `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil    *time.Time      `json:"valid_until,omitempty" db:"valid_until"`
	UsageLimit    *int            `json:"usage_limit,omitempty" db:"usage_limit"`
	UsageCount    int             `json:"usage_count" db:"usage_count"`
	Status        CouponStatus    `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// CouponRejectReason enumerates why a coupon was not applied
type CouponRejectReason string

const (
	CouponReasonInvalidCode       CouponRejectReason = "invalid_code"
	CouponReasonInactive          CouponRejectReason = "inactive"
	CouponReasonNotYetValid       CouponRejectReason = "not_yet_valid"
	CouponReasonExpired           CouponRejectReason = "expired"
	CouponReasonUsageLimitReached CouponRejectReason = "usage_limit_reached"
	CouponReasonMinPurchaseNotMet CouponRejectReason = "min_purchase_not_met"
)

// CouponResult is the outcome of evaluating a coupon against an order total
type CouponResult struct {
	Valid    bool               `json:"valid"`
	Discount int64              `json:"discount"`
	Message  string             `json:"message"`
	Reason   CouponRejectReason `json:"reason,omitempty"`
	Coupon   *Coupon            `json:"coupon,omitempty"`
}

// Snapshot returns the booking-embedded form of an applied coupon
func (r CouponResult) Snapshot() *BookingCoupon {
	if !r.Valid || r.Coupon == nil {
		return nil
	}
	return &BookingCoupon{
		ID:           r.Coupon.ID,
		Code:         r.Coupon.Code,
		Discount:     r.Discount,
		DiscountType: r.Coupon.DiscountType,
	}
}
