package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
func timePtr(t time.Time) *time.Time {
	return &t
}

func percentCoupon(code string, percent int64) *models.Coupon {
	return &models.Coupon{
		ID:            "cpn-" + code,
		Code:          code,
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(percent),
		Status:        models.CouponStatusActive,
	}
}

func fixedCoupon(code string, amount int64) *models.Coupon {
	return &models.Coupon{
		ID:            "cpn-" + code,
		Code:          code,
		DiscountType:  models.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(amount),
		Status:        models.CouponStatusActive,
	}
}

func TestEvaluateCoupon(t *testing.T) {
	now := time.Date(2030, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("Percentage capped by max discount", func(t *testing.T) {
		coupon := percentCoupon("TREK10", 10)
		coupon.MaxDiscount = int64Ptr(5000)

		result := EvaluateCoupon(coupon, 100000, now)
		assert.True(t, result.Valid)
		assert.Equal(t, int64(5000), result.Discount)
		assert.Contains(t, result.Message, "₹50.00")
	})

	t.Run("Percentage under cap", func(t *testing.T) {
		coupon := percentCoupon("TREK10", 10)
		coupon.MaxDiscount = int64Ptr(50000)

		result := EvaluateCoupon(coupon, 100000, now)
		assert.True(t, result.Valid)
		assert.Equal(t, int64(10000), result.Discount)
	})

	t.Run("Percentage is floored", func(t *testing.T) {
		result := EvaluateCoupon(percentCoupon("ODD", 15), 999, now)
		assert.True(t, result.Valid)
		assert.Equal(t, int64(149), result.Discount)
	})

	t.Run("Fractional percentage", func(t *testing.T) {
		coupon := percentCoupon("HALF", 0)
		coupon.DiscountValue = decimal.RequireFromString("12.5")

		result := EvaluateCoupon(coupon, 1000, now)
		assert.Equal(t, int64(125), result.Discount)
	})

	t.Run("Fixed discount clamped to total", func(t *testing.T) {
		result := EvaluateCoupon(fixedCoupon("FLAT", 5000), 3000, now)
		assert.True(t, result.Valid)
		assert.Equal(t, int64(3000), result.Discount)
	})

	t.Run("Unknown code", func(t *testing.T) {
		result := EvaluateCoupon(nil, 100000, now)
		assert.False(t, result.Valid)
		assert.Equal(t, int64(0), result.Discount)
		assert.Equal(t, models.CouponReasonInvalidCode, result.Reason)
	})

	t.Run("Inactive", func(t *testing.T) {
		coupon := fixedCoupon("OLD", 100)
		coupon.Status = models.CouponStatusInactive

		result := EvaluateCoupon(coupon, 100000, now)
		assert.False(t, result.Valid)
		assert.Equal(t, models.CouponReasonInactive, result.Reason)
	})

	t.Run("Not yet valid", func(t *testing.T) {
		coupon := fixedCoupon("SOON", 100)
		coupon.ValidFrom = timePtr(now.Add(24 * time.Hour))

		result := EvaluateCoupon(coupon, 100000, now)
		assert.False(t, result.Valid)
		assert.Equal(t, models.CouponReasonNotYetValid, result.Reason)
		assert.Contains(t, result.Message, "11 Mar 2030")
	})

	t.Run("Expired", func(t *testing.T) {
		coupon := fixedCoupon("GONE", 100)
		coupon.ValidUntil = timePtr(now.Add(-time.Second))

		result := EvaluateCoupon(coupon, 100000, now)
		assert.False(t, result.Valid)
		assert.Equal(t, int64(0), result.Discount)
		assert.Equal(t, models.CouponReasonExpired, result.Reason)
	})

	t.Run("Window bounds are inclusive", func(t *testing.T) {
		coupon := fixedCoupon("EDGE", 100)
		coupon.ValidFrom = timePtr(now)
		coupon.ValidUntil = timePtr(now)

		assert.True(t, EvaluateCoupon(coupon, 100000, now).Valid)
	})

	t.Run("Usage limit reached", func(t *testing.T) {
		coupon := fixedCoupon("LIMITED", 100)
		coupon.UsageLimit = intPtr(5)
		coupon.UsageCount = 5

		result := EvaluateCoupon(coupon, 100000, now)
		assert.False(t, result.Valid)
		assert.Equal(t, models.CouponReasonUsageLimitReached, result.Reason)
	})

	t.Run("Minimum purchase not met", func(t *testing.T) {
		coupon := fixedCoupon("BIG", 100)
		coupon.MinPurchase = int64Ptr(200000)

		result := EvaluateCoupon(coupon, 150000, now)
		assert.False(t, result.Valid)
		assert.Equal(t, models.CouponReasonMinPurchaseNotMet, result.Reason)
		assert.Contains(t, result.Message, "₹2000.00")
	})

	t.Run("First failing check wins", func(t *testing.T) {
		coupon := fixedCoupon("MANY", 100)
		coupon.Status = models.CouponStatusInactive
		coupon.ValidUntil = timePtr(now.Add(-time.Hour))
		coupon.MinPurchase = int64Ptr(1 << 40)

		assert.Equal(t, models.CouponReasonInactive, EvaluateCoupon(coupon, 100, now).Reason)
	})

	t.Run("Zero total", func(t *testing.T) {
		result := EvaluateCoupon(percentCoupon("ZERO", 50), 0, now)
		assert.True(t, result.Valid)
		assert.Equal(t, int64(0), result.Discount)
	})
}

func TestEvaluateCoupon_DiscountBounds(t *testing.T) {
	now := time.Now()
	coupons := []*models.Coupon{
		percentCoupon("P1", 1),
		percentCoupon("P33", 33),
		percentCoupon("P100", 100),
		percentCoupon("P150", 150),
		fixedCoupon("F1", 1),
		fixedCoupon("F999", 999),
		fixedCoupon("FBIG", 1_000_000),
	}
	totals := []int64{0, 1, 99, 100, 101, 12345, 999999}

	for _, coupon := range coupons {
		for _, total := range totals {
			result := EvaluateCoupon(coupon, total, now)
			require.True(t, result.Valid)
			assert.GreaterOrEqual(t, result.Discount, int64(0), "%s on %d", coupon.Code, total)
			assert.LessOrEqual(t, result.Discount, total, "%s on %d", coupon.Code, total)
		}
	}
}

type fakeCouponStore struct {
	mu           sync.Mutex
	coupons      map[string]*models.Coupon
	increments   map[string]int
	lookupErr    error
	incrementErr error
	lastCode     string
}

func newFakeCouponStore(coupons ...*models.Coupon) *fakeCouponStore {
	store := &fakeCouponStore{
		coupons:    make(map[string]*models.Coupon),
		increments: make(map[string]int),
	}
	for _, c := range coupons {
		store.coupons[c.Code] = c
	}
	return store
}

func (f *fakeCouponStore) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	f.lastCode = code
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.coupons[code], nil
}

func (f *fakeCouponStore) IncrementUsage(_ context.Context, couponID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.increments[couponID]++
	return nil
}

func (f *fakeCouponStore) incrementCount(couponID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.increments[couponID]
}

func TestCouponService_Evaluate(t *testing.T) {
	store := newFakeCouponStore(fixedCoupon("MONSOON", 2500))
	service := NewCouponService(store, newTestLogger())

	t.Run("Code is normalized", func(t *testing.T) {
		result, err := service.Evaluate(context.Background(), "  monsoon ", 10000)
		require.NoError(t, err)
		assert.Equal(t, "MONSOON", store.lastCode)
		assert.True(t, result.Valid)
		assert.Equal(t, int64(2500), result.Discount)
		require.NotNil(t, result.Snapshot())
		assert.Equal(t, "cpn-MONSOON", result.Snapshot().ID)
	})

	t.Run("Blank code", func(t *testing.T) {
		store.lastCode = ""
		result, err := service.Evaluate(context.Background(), "   ", 10000)
		require.NoError(t, err)
		assert.False(t, result.Valid)
		assert.Empty(t, store.lastCode)
	})

	t.Run("Store failure", func(t *testing.T) {
		failing := newFakeCouponStore()
		failing.lookupErr = errors.New("connection reset")

		_, err := NewCouponService(failing, newTestLogger()).Evaluate(context.Background(), "X", 100)
		assert.Error(t, err)
	})
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "₹0.00", FormatAmount(0))
	assert.Equal(t, "₹1500.50", FormatAmount(150050))
	assert.Equal(t, "₹0.05", FormatAmount(5))
	assert.Equal(t, "-₹1.00", FormatAmount(-100))
}
