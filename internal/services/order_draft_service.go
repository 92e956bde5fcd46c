package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
	pkgvalidator "github.com/trailpass/trek-booking-backend/pkg/validator"
)

const (
	// AnonymousUserID and GuestUserName stand in for the identity when nobody is signed in
	AnonymousUserID = "anonymous"
	GuestUserName   = "Guest User"

	// DefaultMinPayableAmount is the checkout gateway's minimum charge (₹1.00).
	// It comes from the gateway, not from pricing rules; another gateway may need another value.
	DefaultMinPayableAmount int64 = 100
)

// ValidationError is a form problem reported before anything is written
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// DraftStore persists pending bookings
type DraftStore interface {
	Create(ctx context.Context, booking *models.Booking) (string, error)
}

// OrderDraft is a priced, not yet persisted booking
type OrderDraft struct {
	Booking *models.Booking

	BaseAmount int64
	Discount   int64
	// Discounted is base minus discount, before the gateway minimum is applied
	Discounted     int64
	Payable        int64
	MinimumApplied bool
}

// OrderDraftService builds and persists pending bookings
type OrderDraftService struct {
	store      DraftStore
	minPayable int64
	currency   string
	validate   *validator.Validate
	phone      *pkgvalidator.PhoneValidator
	logger     *logrus.Logger
	now        func() time.Time
}

// NewOrderDraftService creates a new OrderDraftService.
// A negative minPayable falls back to DefaultMinPayableAmount.
func NewOrderDraftService(store DraftStore, minPayable int64, currency string, logger *logrus.Logger) *OrderDraftService {
	if minPayable < 0 {
		minPayable = DefaultMinPayableAmount
	}
	if currency == "" {
		currency = "INR"
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &OrderDraftService{
		store:      store,
		minPayable: minPayable,
		currency:   currency,
		validate:   validate,
		phone:      pkgvalidator.NewPhoneValidator(),
		logger:     logger,
		now:        time.Now,
	}
}

// ValidateForm checks the traveller form and the start date against the trek.
// The returned form has its contact number normalized.
func (s *OrderDraftService) ValidateForm(trek *models.Trek, form models.BookingForm) (models.BookingForm, error) {
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)
	form.StartDate = strings.TrimSpace(form.StartDate)

	if err := s.validate.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return form, fieldError(fieldErrs[0])
		}
		return form, &ValidationError{Message: err.Error()}
	}

	phone, err := s.phone.Validate(form.ContactNumber)
	if err != nil {
		return form, &ValidationError{Field: "contact_number", Message: err.Error()}
	}
	form.ContactNumber = phone

	if err := ValidateStartDate(trek, form.StartDate, s.now()); err != nil {
		return form, &ValidationError{Field: "start_date", Message: err.Error()}
	}

	return form, nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "email":
		return &ValidationError{Field: field, Message: "must be a valid email address"}
	case "min":
		return &ValidationError{Field: field, Message: "must be at least " + fe.Param()}
	case "max":
		return &ValidationError{Field: field, Message: "must be at most " + fe.Param()}
	case "datetime":
		return &ValidationError{Field: field, Message: "must be a date in YYYY-MM-DD format"}
	default:
		return &ValidationError{Field: field, Message: "is invalid"}
	}
}

// Build prices the order and assembles a pending booking. coupon may be nil or invalid,
// in which case no discount applies.
func (s *OrderDraftService) Build(trek *models.Trek, form models.BookingForm, identity *models.Identity, coupon *models.CouponResult) (*OrderDraft, error) {
	if trek == nil {
		return nil, &ValidationError{Field: "trek_id", Message: "trek not found"}
	}
	if form.Participants < 1 {
		return nil, &ValidationError{Field: "participants", Message: "must be at least 1"}
	}
	if trek.UnitPrice < 0 {
		return nil, &ValidationError{Field: "amount", Message: "trek price is invalid"}
	}

	base := trek.UnitPrice * int64(form.Participants)

	var discount int64
	var snapshot *models.BookingCoupon
	if coupon != nil && coupon.Valid {
		discount = coupon.Discount
		snapshot = coupon.Snapshot()
	}

	discounted := base - discount
	if discounted < 0 {
		discounted = 0
	}

	payable := discounted
	minimumApplied := false
	if payable < s.minPayable {
		payable = s.minPayable
		minimumApplied = true
	}

	now := s.now()
	booking := &models.Booking{
		Status:         models.BookingStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		TrekID:         trek.ID,
		TrekName:       trek.Name,
		Participants:   form.Participants,
		StartDate:      form.StartDate,
		Amount:         payable,
		OriginalAmount: base,
		TotalAmount:    payable,
		Currency:       s.currency,
		Coupon:         snapshot,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	applyIdentity(booking, identity, form)

	return &OrderDraft{
		Booking:        booking,
		BaseAmount:     base,
		Discount:       discount,
		Discounted:     discounted,
		Payable:        payable,
		MinimumApplied: minimumApplied,
	}, nil
}

func applyIdentity(booking *models.Booking, identity *models.Identity, form models.BookingForm) {
	booking.UserID = AnonymousUserID
	booking.UserName = GuestUserName
	booking.UserEmail = form.Email
	booking.ContactNumber = form.ContactNumber

	if form.Name != "" {
		booking.UserName = form.Name
	}

	if identity == nil {
		return
	}
	if identity.UserID != "" {
		booking.UserID = identity.UserID
	}
	if booking.UserEmail == "" {
		booking.UserEmail = identity.Email
	}
	if form.Name == "" && identity.DisplayName != "" {
		booking.UserName = identity.DisplayName
	}
	if booking.ContactNumber == "" {
		booking.ContactNumber = identity.Phone
	}
}

// Persist writes the draft as a pending booking and returns the store-assigned id
func (s *OrderDraftService) Persist(ctx context.Context, draft *OrderDraft) (string, error) {
	id, err := s.store.Create(ctx, draft.Booking)
	if err != nil {
		return "", fmt.Errorf("failed to create pending booking: %w", err)
	}
	draft.Booking.ID = id

	s.logger.WithFields(logrus.Fields{
		"booking_id":      id,
		"trek_id":         draft.Booking.TrekID,
		"participants":    draft.Booking.Participants,
		"amount":          draft.Payable,
		"original_amount": draft.BaseAmount,
		"discount":        draft.Discount,
		"minimum_applied": draft.MinimumApplied,
	}).Info("Pending booking created")

	return id, nil
}
