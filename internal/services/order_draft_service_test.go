package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

var draftNow = time.Date(2030, 3, 1, 6, 0, 0, 0, time.UTC)

func newTestDraftService(store DraftStore) *OrderDraftService {
	service := NewOrderDraftService(store, DefaultMinPayableAmount, "INR", newTestLogger())
	service.now = func() time.Time { return draftNow }
	return service
}

func testTrek(unitPrice int64) *models.Trek {
	return &models.Trek{
		ID:              "trek-1",
		Name:            "Hampta Pass",
		UnitPrice:       unitPrice,
		AvailableMonths: models.StringArray{"May", "June"},
		IsActive:        true,
	}
}

func validForm() models.BookingForm {
	return models.BookingForm{
		Name:          "  Asha Rao ",
		Email:         "asha@example.com",
		ContactNumber: "+91 98765-43210",
		Participants:  2,
		StartDate:     "2030-05-10",
	}
}

func TestOrderDraftService_ValidateForm(t *testing.T) {
	service := newTestDraftService(newFakeBookingStore())

	t.Run("Normalizes valid form", func(t *testing.T) {
		form, err := service.ValidateForm(testTrek(500), validForm())
		require.NoError(t, err)
		assert.Equal(t, "Asha Rao", form.Name)
		assert.Equal(t, "9876543210", form.ContactNumber)
	})

	tests := []struct {
		name  string
		edit  func(f *models.BookingForm)
		field string
	}{
		{"Missing name", func(f *models.BookingForm) { f.Name = "  " }, "name"},
		{"Bad email", func(f *models.BookingForm) { f.Email = "asha" }, "email"},
		{"Zero participants", func(f *models.BookingForm) { f.Participants = 0 }, "participants"},
		{"Too many participants", func(f *models.BookingForm) { f.Participants = 51 }, "participants"},
		{"Bad date format", func(f *models.BookingForm) { f.StartDate = "10/05/2030" }, "start_date"},
		{"Bad phone", func(f *models.BookingForm) { f.ContactNumber = "12345" }, "contact_number"},
		{"Date outside open months", func(f *models.BookingForm) { f.StartDate = "2030-08-10" }, "start_date"},
		{"Date in the past", func(f *models.BookingForm) { f.StartDate = "2030-02-10" }, "start_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validForm()
			tt.edit(&form)

			_, err := service.ValidateForm(testTrek(500), form)
			require.Error(t, err)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestOrderDraftService_Build(t *testing.T) {
	service := newTestDraftService(newFakeBookingStore())
	form, err := service.ValidateForm(testTrek(500), validForm())
	require.NoError(t, err)

	t.Run("Participants times unit price", func(t *testing.T) {
		draft, err := service.Build(testTrek(500), form, nil, nil)
		require.NoError(t, err)

		b := draft.Booking
		assert.Equal(t, int64(1000), b.Amount)
		assert.Equal(t, int64(1000), b.OriginalAmount)
		assert.Equal(t, int64(1000), b.TotalAmount)
		assert.Equal(t, models.BookingStatusPending, b.Status)
		assert.Equal(t, models.PaymentStatusPending, b.PaymentStatus)
		assert.Equal(t, "INR", b.Currency)
		assert.Nil(t, b.Coupon)
		assert.False(t, draft.MinimumApplied)
	})

	t.Run("Applies valid coupon", func(t *testing.T) {
		coupon := EvaluateCoupon(percentCoupon("SAVE10", 10), 1000, draftNow)
		draft, err := service.Build(testTrek(500), form, nil, &coupon)
		require.NoError(t, err)

		assert.Equal(t, int64(100), draft.Discount)
		assert.Equal(t, int64(900), draft.Booking.Amount)
		assert.Equal(t, int64(1000), draft.Booking.OriginalAmount)
		require.NotNil(t, draft.Booking.Coupon)
		assert.Equal(t, "SAVE10", draft.Booking.Coupon.Code)
		assert.Equal(t, int64(100), draft.Booking.Coupon.Discount)
	})

	t.Run("Ignores invalid coupon", func(t *testing.T) {
		coupon := EvaluateCoupon(nil, 1000, draftNow)
		draft, err := service.Build(testTrek(500), form, nil, &coupon)
		require.NoError(t, err)
		assert.Zero(t, draft.Discount)
		assert.Nil(t, draft.Booking.Coupon)
	})

	t.Run("Raises payable to gateway minimum", func(t *testing.T) {
		single := form
		single.Participants = 1
		coupon := EvaluateCoupon(fixedCoupon("FLAT50", 50), 30, draftNow)
		draft, err := service.Build(testTrek(30), single, nil, &coupon)
		require.NoError(t, err)

		assert.Equal(t, int64(30), draft.Discount)
		assert.Zero(t, draft.Discounted)
		assert.Equal(t, DefaultMinPayableAmount, draft.Payable)
		assert.True(t, draft.MinimumApplied)
		assert.Equal(t, int64(30), draft.Booking.OriginalAmount)
	})

	t.Run("Anonymous identity", func(t *testing.T) {
		anonymousForm := form
		anonymousForm.Name = ""
		draft, err := service.Build(testTrek(500), anonymousForm, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, AnonymousUserID, draft.Booking.UserID)
		assert.Equal(t, GuestUserName, draft.Booking.UserName)
	})

	t.Run("Signed in identity fills gaps", func(t *testing.T) {
		partial := form
		partial.Name = ""
		draft, err := service.Build(testTrek(500), partial, &models.Identity{
			UserID:      "user-42",
			Email:       "other@example.com",
			DisplayName: "Asha R",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "user-42", draft.Booking.UserID)
		assert.Equal(t, "Asha R", draft.Booking.UserName)
		assert.Equal(t, "asha@example.com", draft.Booking.UserEmail)
	})

	t.Run("Rejects missing trek", func(t *testing.T) {
		_, err := service.Build(nil, form, nil, nil)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "trek_id", vErr.Field)
	})
}

func TestOrderDraftService_Persist(t *testing.T) {
	store := newFakeBookingStore()
	service := newTestDraftService(store)

	form, err := service.ValidateForm(testTrek(500), validForm())
	require.NoError(t, err)
	draft, err := service.Build(testTrek(500), form, nil, nil)
	require.NoError(t, err)

	id, err := service.Persist(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, id, draft.Booking.ID)
	require.NotNil(t, store.get(id))
	assert.Equal(t, models.BookingStatusPending, store.get(id).Status)

	store.createErr = errStoreDown
	_, err = service.Persist(context.Background(), draft)
	assert.ErrorIs(t, err, errStoreDown)
}
