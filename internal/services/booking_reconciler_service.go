package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
	"github.com/trailpass/trek-booking-backend/internal/utils"
)

// BookingStore is the booking persistence used by reconciliation
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) (string, error)
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	SetByID(ctx context.Context, booking *models.Booking) (bool, error)
	MarkConfirmed(ctx context.Context, id string, completion models.PaymentCompletion) (bool, error)
	MarkFailed(ctx context.Context, id string, description string, failedAt time.Time) error
}

// PaymentRecordStore keeps one write-once record per gateway payment
type PaymentRecordStore interface {
	RecordOnce(ctx context.Context, record *models.PaymentRecord) (bool, error)
}

// PaymentAuditLogger appends payment audit entries
type PaymentAuditLogger interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
}

// ============================================================================
// BOOKING ID RESOLUTION
// ============================================================================

// IDSource names the candidate a resolved booking id came from
type IDSource string

const (
	IDSourceCaller    IDSource = "caller"
	IDSourceVerified  IDSource = "verified"
	IDSourceCallback  IDSource = "callback"
	IDSourceOrder     IDSource = "gateway_order"
	IDSourceMetadata  IDSource = "metadata"
	IDSourceLastKnown IDSource = "last_known"
	IDSourcePayment   IDSource = "payment"
	IDSourceGenerated IDSource = "generated"
)

// ResolveInput holds every candidate for the booking id of a completed payment
type ResolveInput struct {
	CallerID    string
	LastKnownID string
	Success     models.GatewaySuccess
}

// ResolveBookingID picks the booking id for a payment. Candidates are sanitized and the
// first non-empty one wins; when none survive an id is synthesized, so the result is never empty.
func ResolveBookingID(in ResolveInput, now time.Time) (string, IDSource) {
	candidates := []struct {
		value  string
		source IDSource
	}{
		{in.CallerID, IDSourceCaller},
		{in.Success.VerifiedBookingID, IDSourceVerified},
		{in.Success.BookingID, IDSourceCallback},
		{in.Success.OrderID, IDSourceOrder},
		{in.Success.Metadata["booking_id"], IDSourceMetadata},
		{in.LastKnownID, IDSourceLastKnown},
	}
	for _, c := range candidates {
		if id := utils.SanitizeDocID(c.value); id != "" {
			return id, c.source
		}
	}

	if paymentID := utils.SanitizeDocID(in.Success.PaymentID); paymentID != "" {
		return utils.SanitizeDocID("payment_" + paymentID), IDSourcePayment
	}

	return generatedBookingID(now), IDSourceGenerated
}

func generatedBookingID(now time.Time) string {
	token, err := utils.RandomToken(4)
	if err != nil {
		token = strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}
	return fmt.Sprintf("fallback_%d_%s", now.UnixMilli(), token)
}

// ============================================================================
// RECONCILER
// ============================================================================

// ReconcilerConfig tunes the reconciler
type ReconcilerConfig struct {
	Currency string
	// SignaturesChecked is true when the checkout verifies signatures, so an unverified one is a mismatch
	SignaturesChecked bool
}

// CompleteRequest is one success callback to reconcile
type CompleteRequest struct {
	BookingID   string
	LastKnownID string
	Success     models.GatewaySuccess
	Meta        models.RequestMeta
}

// FailRequest is one failure or cancellation to record
type FailRequest struct {
	BookingID string
	Failure   models.GatewayFailure
	Meta      models.RequestMeta
}

// ReconcileResult is the booking a callback ended up on.
// Changed is false when the callback only re-read or re-wrote a state an earlier call already reached.
type ReconcileResult struct {
	Booking *models.Booking
	Changed bool
}

// BookingReconciler turns gateway outcomes into terminal booking states.
// After the gateway reports success nothing here returns an error; problems become data.
type BookingReconciler struct {
	bookings BookingStore
	payments PaymentRecordStore
	coupons  CouponStore
	audit    PaymentAuditLogger
	config   ReconcilerConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewBookingReconciler creates a new BookingReconciler
func NewBookingReconciler(
	bookings BookingStore,
	payments PaymentRecordStore,
	coupons CouponStore,
	audit PaymentAuditLogger,
	config ReconcilerConfig,
	logger *logrus.Logger,
) *BookingReconciler {
	if config.Currency == "" {
		config.Currency = "INR"
	}
	return &BookingReconciler{
		bookings: bookings,
		payments: payments,
		coupons:  coupons,
		audit:    audit,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// Complete reconciles a successful payment and returns the booking it ended up on.
// The returned booking is never nil.
func (r *BookingReconciler) Complete(ctx context.Context, req CompleteRequest) *models.Booking {
	return r.Reconcile(ctx, req).Booking
}

// Reconcile is Complete that also reports whether this call changed the booking
func (r *BookingReconciler) Reconcile(ctx context.Context, req CompleteRequest) ReconcileResult {
	now := r.now()
	id, source := ResolveBookingID(ResolveInput{
		CallerID:    req.BookingID,
		LastKnownID: req.LastKnownID,
		Success:     req.Success,
	}, now)

	log := r.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"id_source":  source,
		"payment_id": req.Success.PaymentID,
	})
	log.Info("Reconciling payment success")

	r.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventSuccess, models.PaymentSourceCheckout).
		SetBooking(id).
		SetPayment(req.Success.PaymentID, req.Success.OrderID).
		SetPayload(req.Success.RawFields()).
		SetMetadata(req.Meta))

	if r.config.SignaturesChecked && req.Success.OrderID != "" && req.Success.Signature != "" && !req.Success.SignatureVerified {
		r.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventSignatureMismatch, models.PaymentSourceBackend).
			SetBooking(id).
			SetPayment(req.Success.PaymentID, req.Success.OrderID).
			SetError("checkout signature did not verify", "signature_mismatch").
			SetMetadata(req.Meta))
	}

	existing, err := r.bookings.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Booking lookup failed during reconciliation")
		return r.writeFallback(ctx, id, req, err)
	}

	if existing == nil {
		return r.writeRecovery(ctx, id, source, req)
	}

	return r.confirm(ctx, existing, req)
}

func (r *BookingReconciler) confirm(ctx context.Context, existing *models.Booking, req CompleteRequest) ReconcileResult {
	log := r.logger.WithFields(logrus.Fields{
		"booking_id": existing.ID,
		"status":     existing.Status,
		"payment_id": req.Success.PaymentID,
	})

	if err := existing.Status.ValidateTransition(models.BookingStatusConfirmed); err != nil {
		// recovered and fallback records are left for manual review
		log.WithError(err).Warn("Payment success for a booking that cannot be confirmed")
		r.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, models.PaymentSourceBackend).
			SetBooking(existing.ID).
			SetPayment(req.Success.PaymentID, req.Success.OrderID).
			SetTransition(existing.Status, existing.Status).
			SetError(err.Error(), "invalid_transition").
			SetPayload(req.Success.RawFields()).
			SetMetadata(req.Meta))
		return ReconcileResult{Booking: existing}
	}

	completion := paymentCompletion(existing.ID, req.Success, r.now())
	first, err := r.bookings.MarkConfirmed(ctx, existing.ID, completion)
	if errors.Is(err, models.ErrBookingStateConflict) {
		log.Warn("Booking changed while confirming, re-reading")
		current, getErr := r.bookings.GetByID(ctx, existing.ID)
		if getErr == nil && current != nil {
			return ReconcileResult{Booking: current}
		}
		if getErr == nil {
			getErr = err
		}
		return r.writeFallback(ctx, existing.ID, req, getErr)
	}
	if err != nil {
		log.WithError(err).Error("Failed to confirm booking")
		return r.writeFallback(ctx, existing.ID, req, err)
	}

	previous := existing.Status
	confirmed := *existing
	confirmed.Status = models.BookingStatusConfirmed
	confirmed.PaymentStatus = models.PaymentStatusCompleted
	confirmed.PaymentID = &completion.PaymentID
	confirmed.PaymentOrderID = &completion.OrderID
	confirmed.PaymentSignature = &completion.Signature
	confirmed.ErrorDescription = nil
	confirmed.UpdatedAt = completion.CompletedAt
	if first || confirmed.PaymentReconciledAt == nil {
		at := completion.CompletedAt
		confirmed.PaymentReconciledAt = &at
	}

	r.recordPayment(ctx, &confirmed, req.Success)

	audit := models.NewPaymentAudit(models.PaymentEventBookingConfirmed, models.PaymentSourceBackend).
		SetBooking(confirmed.ID).
		SetPayment(completion.PaymentID, completion.OrderID).
		SetAmount(confirmed.Amount, confirmed.Currency).
		SetTransition(previous, confirmed.Status).
		SetMetadata(req.Meta)

	if first {
		if confirmed.HasCoupon() {
			r.incrementCoupon(ctx, &confirmed)
		}
		log.WithField("previous_status", previous).Info("Booking confirmed")
	} else {
		audit = models.NewPaymentAudit(models.PaymentEventDuplicateCallback, models.PaymentSourceCheckout).
			SetBooking(confirmed.ID).
			SetPayment(completion.PaymentID, completion.OrderID).
			SetTransition(previous, confirmed.Status).
			SetMetadata(req.Meta).
			MarkAsDuplicate()
		log.Info("Duplicate success callback, booking already confirmed")
	}
	r.logAudit(ctx, audit)

	return ReconcileResult{Booking: &confirmed, Changed: first}
}

// paymentCompletion fills placeholders for identifiers the gateway left out
func paymentCompletion(bookingID string, success models.GatewaySuccess, now time.Time) models.PaymentCompletion {
	completion := models.PaymentCompletion{
		PaymentID:   success.PaymentID,
		OrderID:     success.OrderID,
		Signature:   success.Signature,
		CompletedAt: now,
	}
	if completion.PaymentID == "" {
		completion.PaymentID = "unknown_payment_" + bookingID
	}
	if completion.OrderID == "" {
		completion.OrderID = "no_order_" + bookingID
	}
	if completion.Signature == "" {
		completion.Signature = "no_signature"
	}
	return completion
}

// writeRecovery stores a recovered booking at id for a payment that had no pending record
func (r *BookingReconciler) writeRecovery(ctx context.Context, id string, source IDSource, req CompleteRequest) ReconcileResult {
	now := r.now()
	completion := paymentCompletion(id, req.Success, now)
	reason := fmt.Sprintf("no booking found for id %s resolved from %s", id, source)

	booking := &models.Booking{
		ID:                  id,
		Status:              models.BookingStatusRecovered,
		PaymentStatus:       models.PaymentStatusCompleted,
		UserID:              AnonymousUserID,
		UserName:            GuestUserName,
		Currency:            r.config.Currency,
		PaymentID:           &completion.PaymentID,
		PaymentOrderID:      &completion.OrderID,
		PaymentSignature:    &completion.Signature,
		RecoveryReason:      &reason,
		RawPayment:          req.Success.RawFields(),
		PaymentReconciledAt: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	log := r.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"id_source":  source,
		"payment_id": req.Success.PaymentID,
	})

	inserted, err := r.bookings.SetByID(ctx, booking)
	if err != nil {
		log.WithError(err).Error("Failed to write recovery booking")
		return r.writeFallback(ctx, id, req, err)
	}
	if !inserted {
		// another callback created it between our read and write
		current, getErr := r.bookings.GetByID(ctx, id)
		if getErr != nil || current == nil {
			if getErr == nil {
				getErr = models.ErrBookingStateConflict
			}
			return r.writeFallback(ctx, id, req, getErr)
		}
		log.WithField("status", current.Status).Warn("Recovery booking already existed")
		if current.Status == models.BookingStatusPending || current.Status == models.BookingStatusFailed {
			return r.confirm(ctx, current, req)
		}
		return ReconcileResult{Booking: current}
	}

	log.Warn("Payment had no matching booking, recovery record created")

	r.recordPayment(ctx, booking, req.Success)
	r.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventBookingRecovered, models.PaymentSourceBackend).
		SetBooking(id).
		SetPayment(completion.PaymentID, completion.OrderID).
		SetTransition("", models.BookingStatusRecovered).
		SetError(reason, string(source)).
		SetPayload(req.Success.RawFields()).
		SetMetadata(req.Meta))

	return ReconcileResult{Booking: booking, Changed: true}
}

// writeFallback stores a new record under a store-assigned id when reconciliation at the
// resolved id failed. The resolved id and the error are kept on the record.
func (r *BookingReconciler) writeFallback(ctx context.Context, intendedID string, req CompleteRequest, cause error) ReconcileResult {
	now := r.now()
	completion := paymentCompletion(intendedID, req.Success, now)
	description := cause.Error()
	reason := fmt.Sprintf("reconciliation failed for booking %s", intendedID)

	raw := req.Success.RawFields()
	raw["intended_booking_id"] = intendedID
	raw["error"] = description

	booking := &models.Booking{
		Status:              models.BookingStatusFallback,
		PaymentStatus:       models.PaymentStatusCompleted,
		UserID:              AnonymousUserID,
		UserName:            GuestUserName,
		Currency:            r.config.Currency,
		PaymentID:           &completion.PaymentID,
		PaymentOrderID:      &completion.OrderID,
		PaymentSignature:    &completion.Signature,
		ErrorDescription:    &description,
		RecoveryReason:      &reason,
		RawPayment:          raw,
		PaymentReconciledAt: &now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	log := r.logger.WithFields(logrus.Fields{
		"intended_booking_id": intendedID,
		"payment_id":          req.Success.PaymentID,
		"cause":               description,
	})

	id, err := r.bookings.Create(ctx, booking)
	if err != nil {
		// nothing could be written; the payment lives only in logs and the audit trail now
		log.WithError(err).Error("CRITICAL: failed to write fallback booking for a completed payment")
		booking.ID = intendedID
	} else {
		booking.ID = id
		log.WithField("booking_id", id).Warn("Fallback booking created for manual reconciliation")
		r.recordPayment(ctx, booking, req.Success)
	}

	r.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventBookingFallback, models.PaymentSourceBackend).
		SetBooking(booking.ID).
		SetPayment(completion.PaymentID, completion.OrderID).
		SetTransition("", models.BookingStatusFallback).
		SetError(description, "reconciliation_failed").
		SetPayload(raw).
		SetMetadata(req.Meta))

	// every fallback is a fresh record
	return ReconcileResult{Booking: booking, Changed: true}
}

func (r *BookingReconciler) recordPayment(ctx context.Context, booking *models.Booking, success models.GatewaySuccess) {
	if success.PaymentID == "" || r.payments == nil {
		return
	}

	record := &models.PaymentRecord{
		PaymentID:         success.PaymentID,
		BookingID:         booking.ID,
		SignatureVerified: success.SignatureVerified,
		Amount:            booking.Amount,
		Currency:          booking.Currency,
		RawResponse:       success.RawFields(),
		CreatedAt:         r.now(),
	}
	if success.OrderID != "" {
		record.OrderID = &success.OrderID
	}
	if success.Signature != "" {
		record.Signature = &success.Signature
	}

	inserted, err := r.payments.RecordOnce(ctx, record)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"payment_id": success.PaymentID,
		}).Error("Failed to write payment record")
		return
	}
	if !inserted {
		r.logger.WithField("payment_id", success.PaymentID).Debug("Payment record already written")
	}
}

func (r *BookingReconciler) incrementCoupon(ctx context.Context, booking *models.Booking) {
	if r.coupons == nil {
		return
	}
	if err := r.coupons.IncrementUsage(ctx, booking.Coupon.ID); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": booking.ID,
			"coupon_id":  booking.Coupon.ID,
			"code":       booking.Coupon.Code,
		}).Error("Failed to increment coupon usage")
		return
	}
	r.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"code":       booking.Coupon.Code,
	}).Info("Coupon usage incremented")
}

// ============================================================================
// FAILURE
// ============================================================================

// Fail records a failed or cancelled payment against an existing booking.
// Unknown bookings are logged and left alone; nil is returned for them.
func (r *BookingReconciler) Fail(ctx context.Context, req FailRequest) *models.Booking {
	return r.RecordFailure(ctx, req).Booking
}

// RecordFailure is Fail that also reports whether this call moved the booking to failed
func (r *BookingReconciler) RecordFailure(ctx context.Context, req FailRequest) ReconcileResult {
	candidate := req.BookingID
	if strings.TrimSpace(candidate) == "" {
		candidate = req.Failure.BookingID
	}
	id := utils.SanitizeDocID(candidate)

	eventType := models.PaymentEventFailed
	if req.Failure.Cancelled {
		eventType = models.PaymentEventCancelled
	}

	description := strings.TrimSpace(req.Failure.Description)
	if description == "" {
		description = "payment failed"
		if req.Failure.Cancelled {
			description = "cancelled by user"
		}
	}

	r.logAudit(ctx, models.NewPaymentAudit(eventType, models.PaymentSourceCheckout).
		SetBooking(id).
		SetPayment(req.Failure.PaymentID, req.Failure.Metadata["order_id"]).
		SetError(description, req.Failure.Code).
		SetPayload(req.Failure.Raw).
		SetMetadata(req.Meta))

	log := r.logger.WithFields(logrus.Fields{
		"booking_id": id,
		"code":       req.Failure.Code,
		"cancelled":  req.Failure.Cancelled,
	})

	if id == "" {
		log.Warn("Payment failure without a booking id, nothing to update")
		return ReconcileResult{}
	}

	existing, err := r.bookings.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Booking lookup failed while recording payment failure")
		return ReconcileResult{}
	}
	if existing == nil {
		log.Warn("Payment failure for unknown booking, nothing to update")
		return ReconcileResult{}
	}

	if err := existing.Status.ValidateTransition(models.BookingStatusFailed); err != nil {
		log.WithError(err).WithField("status", existing.Status).Warn("Ignoring payment failure for booking")
		r.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, models.PaymentSourceBackend).
			SetBooking(id).
			SetTransition(existing.Status, existing.Status).
			SetError(err.Error(), "invalid_transition").
			SetMetadata(req.Meta))
		return ReconcileResult{Booking: existing}
	}

	now := r.now()
	if err := r.bookings.MarkFailed(ctx, id, description, now); err != nil {
		if errors.Is(err, models.ErrBookingStateConflict) {
			log.Warn("Booking changed before it could be marked failed")
			if current, getErr := r.bookings.GetByID(ctx, id); getErr == nil && current != nil {
				return ReconcileResult{Booking: current}
			}
			return ReconcileResult{Booking: existing}
		}
		log.WithError(err).Error("Failed to mark booking failed")
		return ReconcileResult{Booking: existing}
	}

	failed := *existing
	failed.Status = models.BookingStatusFailed
	failed.PaymentStatus = models.PaymentStatusFailed
	failed.ErrorDescription = &description
	failed.UpdatedAt = now

	log.Info("Booking marked failed")
	r.logAudit(ctx, models.NewPaymentAudit(models.PaymentEventBookingFailed, models.PaymentSourceBackend).
		SetBooking(id).
		SetAmount(failed.Amount, failed.Currency).
		SetTransition(existing.Status, failed.Status).
		SetError(description, req.Failure.Code).
		SetMetadata(req.Meta))

	return ReconcileResult{Booking: &failed, Changed: true}
}

func (r *BookingReconciler) logAudit(ctx context.Context, audit *models.PaymentAudit) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Log(ctx, audit); err != nil {
		r.logger.WithError(err).WithField("event_type", audit.EventType).Warn("Failed to write payment audit")
	}
}
