package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

// CouponStore is the coupon persistence used by the booking flow
type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	IncrementUsage(ctx context.Context, couponID string) error
}

// CouponService evaluates coupon codes against order totals
type CouponService struct {
	store  CouponStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewCouponService creates a new CouponService
func NewCouponService(store CouponStore, logger *logrus.Logger) *CouponService {
	return &CouponService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Evaluate looks a code up and evaluates it against orderTotal.
// A lookup failure is returned as an error; every business rejection is a result.
func (s *CouponService) Evaluate(ctx context.Context, code string, orderTotal int64) (models.CouponResult, error) {
	normalized := NormalizeCouponCode(code)
	if normalized == "" {
		return EvaluateCoupon(nil, orderTotal, s.now()), nil
	}

	coupon, err := s.store.GetByCode(ctx, normalized)
	if err != nil {
		s.logger.WithError(err).WithField("code", normalized).Error("Coupon lookup failed")
		return models.CouponResult{}, fmt.Errorf("failed to look up coupon: %w", err)
	}

	result := EvaluateCoupon(coupon, orderTotal, s.now())
	s.logger.WithFields(logrus.Fields{
		"code":        normalized,
		"order_total": orderTotal,
		"valid":       result.Valid,
		"discount":    result.Discount,
		"reason":      result.Reason,
	}).Debug("Coupon evaluated")

	return result, nil
}

// NormalizeCouponCode trims and upper-cases a code as entered by a user
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EvaluateCoupon decides whether coupon applies to orderTotal at time now and how much it takes off.
// It has no side effects and does not remember previous evaluations; re-run it whenever the total changes.
//
// Checks run in order and stop at the first failure:
// unknown code, inactive, not yet valid, expired, usage limit, minimum purchase.
func EvaluateCoupon(coupon *models.Coupon, orderTotal int64, now time.Time) models.CouponResult {
	if coupon == nil {
		return reject(models.CouponReasonInvalidCode, "Invalid coupon code")
	}

	if coupon.Status != models.CouponStatusActive {
		return reject(models.CouponReasonInactive, "This coupon is no longer active")
	}

	if coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom) {
		return reject(models.CouponReasonNotYetValid,
			fmt.Sprintf("This coupon is valid from %s", coupon.ValidFrom.Format("02 Jan 2006")))
	}

	if coupon.ValidUntil != nil && now.After(*coupon.ValidUntil) {
		return reject(models.CouponReasonExpired,
			fmt.Sprintf("This coupon expired on %s", coupon.ValidUntil.Format("02 Jan 2006")))
	}

	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return reject(models.CouponReasonUsageLimitReached, "This coupon has reached its usage limit")
	}

	if coupon.MinPurchase != nil && orderTotal < *coupon.MinPurchase {
		return reject(models.CouponReasonMinPurchaseNotMet,
			fmt.Sprintf("A minimum purchase of %s is required for this coupon", FormatAmount(*coupon.MinPurchase)))
	}

	discount := couponDiscount(coupon, orderTotal)
	return models.CouponResult{
		Valid:    true,
		Discount: discount,
		Message:  fmt.Sprintf("Coupon applied: %s off", FormatAmount(discount)),
		Coupon:   coupon,
	}
}

func couponDiscount(coupon *models.Coupon, orderTotal int64) int64 {
	if orderTotal <= 0 {
		return 0
	}

	var discount int64
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		discount = decimal.NewFromInt(orderTotal).
			Mul(coupon.DiscountValue).
			Div(decimal.NewFromInt(100)).
			Floor().
			IntPart()
		if coupon.MaxDiscount != nil && discount > *coupon.MaxDiscount {
			discount = *coupon.MaxDiscount
		}
	case models.DiscountTypeFixed:
		discount = coupon.DiscountValue.Floor().IntPart()
	}

	if discount > orderTotal {
		discount = orderTotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func reject(reason models.CouponRejectReason, message string) models.CouponResult {
	return models.CouponResult{
		Valid:   false,
		Message: message,
		Reason:  reason,
	}
}

// FormatAmount renders an amount in paise as rupees, e.g. 150050 -> "₹1500.50"
func FormatAmount(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s₹%d.%02d", sign, paise/100, paise%100)
}
