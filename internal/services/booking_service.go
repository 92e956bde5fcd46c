package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
)

// TrekStore reads the trek catalog
type TrekStore interface {
	GetByID(ctx context.Context, id string) (*models.Trek, error)
}

// BookingReader reads bookings back for the UI
type BookingReader interface {
	GetByID(ctx context.Context, id string) (*models.Booking, error)
}

// PaymentEventReader lists a booking's payment audit trail
type PaymentEventReader interface {
	GetByBookingID(ctx context.Context, bookingID string) ([]*models.PaymentAudit, error)
}

// BookingNotifier sends traveller e-mails
type BookingNotifier interface {
	SendBookingConfirmation(ctx context.Context, booking *models.Booking, trek *models.Trek) error
	SendPaymentFailure(ctx context.Context, booking *models.Booking, trek *models.Trek, reason string) error
}

// EventPublisher publishes booking lifecycle events
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// BeginPayment failure codes
const (
	BeginCodeTrekNotFound       = "trek_not_found"
	BeginCodeTrekInactive       = "trek_inactive"
	BeginCodeValidation         = "validation_error"
	BeginCodeCouponLookup       = "coupon_lookup_failed"
	BeginCodeDraftFailed        = "booking_create_failed"
	BeginCodeGatewayUnavailable = "gateway_unavailable"
	BeginCodeGatewayError       = "gateway_error"
)

// Booking event routing keys
const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingRecovered = "booking.recovered"
	EventBookingFallback  = "booking.fallback"
	EventBookingFailed    = "booking.failed"
)

// ErrBookingNotFound is returned by GetBooking for an unknown id
var ErrBookingNotFound = errors.New("booking not found")

// BeginPaymentRequest starts checkout for one trek
type BeginPaymentRequest struct {
	TrekID     string
	Form       models.BookingForm
	CouponCode string
	// Identity is nil for anonymous requests
	Identity   *models.Identity
	SessionKey string
	Meta       models.RequestMeta
}

// BeginPaymentResult is what the storefront needs to open the checkout popup.
// Success false carries Error and Code; nothing else is guaranteed.
type BeginPaymentResult struct {
	Success        bool                 `json:"success"`
	BookingID      string               `json:"booking_id,omitempty"`
	Amount         int64                `json:"amount,omitempty"`
	OriginalAmount int64                `json:"original_amount,omitempty"`
	Discount       int64                `json:"discount,omitempty"`
	Currency       string               `json:"currency,omitempty"`
	AttemptID      string               `json:"attempt_id,omitempty"`
	Checkout       *CheckoutOptions     `json:"checkout,omitempty"`
	Coupon         *models.CouponResult `json:"coupon,omitempty"`
	Error          string               `json:"error,omitempty"`
	Code           string               `json:"code,omitempty"`
	Field          string               `json:"field,omitempty"`
}

// CompletePaymentRequest reports a successful gateway callback
type CompletePaymentRequest struct {
	BookingID  string
	SessionKey string
	Success    models.GatewaySuccess
	Meta       models.RequestMeta
}

// FailPaymentRequest reports a failed or cancelled gateway callback
type FailPaymentRequest struct {
	BookingID  string
	SessionKey string
	Failure    models.GatewayFailure
	Meta       models.RequestMeta
}

// BookingService is the entry point the HTTP layer uses for the booking flow
type BookingService struct {
	treks      TrekStore
	bookings   BookingReader
	events     PaymentEventReader
	coupons    *CouponService
	drafts     *OrderDraftService
	checkout   *CheckoutService
	reconciler *BookingReconciler
	lastIDs    LastBookingIDCache
	notifier   BookingNotifier
	publisher  EventPublisher
	tasks      *TaskRunner
	audit      PaymentAuditLogger
	logger     *logrus.Logger
}

// BookingServiceDeps groups the collaborators of BookingService.
// Notifier and Publisher are optional.
type BookingServiceDeps struct {
	Treks      TrekStore
	Bookings   BookingReader
	Events     PaymentEventReader
	Coupons    *CouponService
	Drafts     *OrderDraftService
	Checkout   *CheckoutService
	Reconciler *BookingReconciler
	LastIDs    LastBookingIDCache
	Notifier   BookingNotifier
	Publisher  EventPublisher
	Tasks      *TaskRunner
	Audit      PaymentAuditLogger
}

// NewBookingService creates a new BookingService
func NewBookingService(deps BookingServiceDeps, logger *logrus.Logger) *BookingService {
	lastIDs := deps.LastIDs
	if lastIDs == nil {
		lastIDs = NewMemoryLastBookingCache(DefaultLastBookingTTL)
	}
	tasks := deps.Tasks
	if tasks == nil {
		tasks = NewTaskRunner(DefaultTaskTimeout, logger)
	}
	return &BookingService{
		treks:      deps.Treks,
		bookings:   deps.Bookings,
		events:     deps.Events,
		coupons:    deps.Coupons,
		drafts:     deps.Drafts,
		checkout:   deps.Checkout,
		reconciler: deps.Reconciler,
		lastIDs:    lastIDs,
		notifier:   deps.Notifier,
		publisher:  deps.Publisher,
		tasks:      tasks,
		audit:      deps.Audit,
		logger:     logger,
	}
}

// Tasks returns the runner carrying detached side effects
func (s *BookingService) Tasks() *TaskRunner {
	return s.tasks
}

// ============================================================================
// BEGIN PAYMENT
// ============================================================================

// BeginPayment validates the form, prices the order, writes a pending booking and opens checkout.
// It never returns an error; failures are reported in the result.
func (s *BookingService) BeginPayment(ctx context.Context, req BeginPaymentRequest) BeginPaymentResult {
	log := s.logger.WithFields(logrus.Fields{
		"trek_id":     req.TrekID,
		"session_key": req.SessionKey,
	})

	trek, err := s.treks.GetByID(ctx, strings.TrimSpace(req.TrekID))
	if err != nil {
		log.WithError(err).Error("Failed to load trek")
		return beginFailure(BeginCodeTrekNotFound, "could not load trek")
	}
	if trek == nil {
		return beginFailure(BeginCodeTrekNotFound, "trek not found")
	}
	if !trek.IsActive {
		return beginFailure(BeginCodeTrekInactive, "trek is not open for booking")
	}

	form, err := s.drafts.ValidateForm(trek, req.Form)
	if err != nil {
		return validationFailure(err)
	}

	var coupon *models.CouponResult
	if code := NormalizeCouponCode(req.CouponCode); code != "" {
		result, err := s.coupons.Evaluate(ctx, code, trek.UnitPrice*int64(form.Participants))
		if err != nil {
			log.WithError(err).Error("Coupon lookup failed")
			return beginFailure(BeginCodeCouponLookup, "could not check coupon, please try again")
		}
		coupon = &result
		if !result.Valid {
			log.WithFields(logrus.Fields{
				"coupon_code": code,
				"reason":      result.Reason,
			}).Info("Coupon rejected, continuing at base price")
		}
	}

	draft, err := s.drafts.Build(trek, form, req.Identity, coupon)
	if err != nil {
		return validationFailure(err)
	}

	bookingID, err := s.drafts.Persist(ctx, draft)
	if err != nil {
		log.WithError(err).Error("Failed to persist pending booking")
		return beginFailure(BeginCodeDraftFailed, "could not create booking, please try again")
	}
	log = log.WithField("booking_id", bookingID)

	if err := s.lastIDs.Remember(ctx, req.SessionKey, bookingID); err != nil {
		log.WithError(err).Warn("Failed to remember last booking id")
	}

	s.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceBackend).
		SetBooking(bookingID).
		SetAmount(draft.Payable, draft.Booking.Currency).
		SetTransition("", models.BookingStatusPending).
		SetPayload(map[string]interface{}{
			"trek_id":         trek.ID,
			"participants":    draft.Booking.Participants,
			"original_amount": draft.BaseAmount,
			"discount":        draft.Discount,
			"minimum_applied": draft.MinimumApplied,
			"coupon_code":     NormalizeCouponCode(req.CouponCode),
		}).
		SetMetadata(req.Meta))

	attempt, err := s.checkout.OpenPayment(ctx, OpenPaymentParams{
		BookingID:   bookingID,
		Amount:      draft.Payable,
		Description: fmt.Sprintf("%s (%d participant(s), %s)", trek.Name, form.Participants, form.StartDate),
		Name:        draft.Booking.UserName,
		Email:       draft.Booking.UserEmail,
		Contact:     draft.Booking.ContactNumber,
		Notes: map[string]string{
			"trek_id":    trek.ID,
			"start_date": form.StartDate,
		},
	})
	if err != nil {
		log.WithError(err).Error("Failed to open checkout")
		code := BeginCodeGatewayError
		if errors.Is(err, ErrGatewayUnavailable) {
			code = BeginCodeGatewayUnavailable
		}
		result := beginFailure(code, "payment gateway is unavailable, please try again")
		result.BookingID = bookingID
		result.Coupon = coupon
		return result
	}

	log.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"amount":     draft.Payable,
	}).Info("Checkout opened")

	options := attempt.Options
	return BeginPaymentResult{
		Success:        true,
		BookingID:      bookingID,
		Amount:         draft.Payable,
		OriginalAmount: draft.BaseAmount,
		Discount:       draft.Discount,
		Currency:       draft.Booking.Currency,
		AttemptID:      attempt.ID,
		Checkout:       &options,
		Coupon:         coupon,
	}
}

func beginFailure(code, message string) BeginPaymentResult {
	return BeginPaymentResult{Success: false, Code: code, Error: message}
}

func validationFailure(err error) BeginPaymentResult {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		result := beginFailure(BeginCodeValidation, vErr.Error())
		result.Field = vErr.Field
		return result
	}
	return beginFailure(BeginCodeValidation, err.Error())
}

// ============================================================================
// COMPLETE / FAIL
// ============================================================================

// CompletePayment reconciles a successful payment and returns the resulting booking.
// Confirmation e-mail and events run detached and cannot change the result.
// They fire only when this callback changed the booking.
func (s *BookingService) CompletePayment(ctx context.Context, req CompletePaymentRequest) *models.Booking {
	lastKnown, err := s.lastIDs.Recall(ctx, req.SessionKey)
	if err != nil {
		s.logger.WithError(err).WithField("session_key", req.SessionKey).Warn("Failed to recall last booking id")
	}

	result := s.reconciler.Reconcile(ctx, CompleteRequest{
		BookingID:   req.BookingID,
		LastKnownID: lastKnown,
		Success:     req.Success,
		Meta:        req.Meta,
	})
	booking := result.Booking
	s.rememberBookingID(ctx, req.SessionKey, booking.ID)

	if !result.Changed {
		return booking
	}

	snapshot := *booking
	fields := logrus.Fields{"booking_id": snapshot.ID, "status": snapshot.Status}

	if s.notifier != nil {
		s.tasks.Go("booking_confirmation_email", fields, func(ctx context.Context) error {
			return s.notifier.SendBookingConfirmation(ctx, &snapshot, s.trekFor(ctx, &snapshot))
		})
	}
	s.publish(completionEventKey(snapshot.Status), bookingEvent(&snapshot, ""), fields)

	return booking
}

// FailPayment records a failed or cancelled payment.
// It returns the booking when one was found, else nil.
func (s *BookingService) FailPayment(ctx context.Context, req FailPaymentRequest) *models.Booking {
	result := s.reconciler.RecordFailure(ctx, FailRequest{
		BookingID: req.BookingID,
		Failure:   req.Failure,
		Meta:      req.Meta,
	})
	booking := result.Booking
	if booking == nil {
		return nil
	}
	s.rememberBookingID(ctx, req.SessionKey, booking.ID)

	if !result.Changed {
		// illegal transition or repeated failure, booking left as it was
		return booking
	}

	snapshot := *booking
	fields := logrus.Fields{"booking_id": snapshot.ID, "status": snapshot.Status}

	if s.notifier != nil && !req.Failure.Cancelled {
		reason := req.Failure.Description
		if snapshot.ErrorDescription != nil {
			reason = *snapshot.ErrorDescription
		}
		s.tasks.Go("payment_failure_email", fields, func(ctx context.Context) error {
			return s.notifier.SendPaymentFailure(ctx, &snapshot, s.trekFor(ctx, &snapshot), reason)
		})
	}
	s.publish(EventBookingFailed, bookingEvent(&snapshot, req.Failure.Description), fields)

	return booking
}

// trekFor loads the booked trek for notifications; nil when it is gone or unreadable
func (s *BookingService) trekFor(ctx context.Context, booking *models.Booking) *models.Trek {
	if booking.TrekID == "" {
		return nil
	}
	trek, err := s.treks.GetByID(ctx, booking.TrekID)
	if err != nil {
		s.logger.WithError(err).WithField("trek_id", booking.TrekID).Warn("Failed to load trek for notification")
		return nil
	}
	return trek
}

func (s *BookingService) rememberBookingID(ctx context.Context, sessionKey, id string) {
	if err := s.lastIDs.Remember(ctx, sessionKey, id); err != nil {
		s.logger.WithError(err).WithField("session_key", sessionKey).Warn("Failed to remember booking id")
	}
}

// GetBooking returns a booking by id, or ErrBookingNotFound
func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

// GetPaymentEvents returns the payment audit trail of a booking, oldest first
func (s *BookingService) GetPaymentEvents(ctx context.Context, bookingID string) ([]*models.PaymentAudit, error) {
	if s.events == nil {
		return []*models.PaymentAudit{}, nil
	}
	events, err := s.events.GetByBookingID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment events: %w", err)
	}
	return events, nil
}

func (s *BookingService) publish(routingKey string, payload map[string]interface{}, fields logrus.Fields) {
	if s.publisher == nil {
		return
	}
	s.tasks.Go("publish_"+routingKey, fields, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, routingKey, payload)
	})
}

func (s *BookingService) logAudit(ctx context.Context, audit *models.PaymentAudit) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("event_type", audit.EventType).Warn("Failed to write payment audit")
	}
}

func completionEventKey(status models.BookingStatus) string {
	switch status {
	case models.BookingStatusRecovered:
		return EventBookingRecovered
	case models.BookingStatusFallback:
		return EventBookingFallback
	default:
		return EventBookingConfirmed
	}
}

func bookingEvent(b *models.Booking, reason string) map[string]interface{} {
	event := map[string]interface{}{
		"booking_id":     b.ID,
		"status":         b.Status,
		"payment_status": b.PaymentStatus,
		"trek_id":        b.TrekID,
		"user_id":        b.UserID,
		"amount":         b.Amount,
		"currency":       b.Currency,
	}
	if b.PaymentID != nil {
		event["payment_id"] = *b.PaymentID
	}
	if b.HasCoupon() {
		event["coupon_code"] = b.Coupon.Code
	}
	if reason != "" {
		event["reason"] = reason
	}
	return event
}
