package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/config"
	"github.com/trailpass/trek-booking-backend/internal/models"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrGatewayUnavailable means the checkout script could not be loaded
	ErrGatewayUnavailable = errors.New("payment gateway is unavailable")

	// ErrAttemptNotFound means the attempt id is unknown or has been pruned
	ErrAttemptNotFound = errors.New("payment attempt not found")

	// ErrInvalidAttemptTransition is returned when an attempt cannot move to the requested state
	ErrInvalidAttemptTransition = errors.New("invalid payment attempt transition")
)

// ============================================================================
// SCRIPT LOADER
// ============================================================================

const scriptLoadKey = "checkout-script"

// ScriptLoader fetches the checkout widget script once per process.
// Concurrent callers share a single in-flight fetch.
type ScriptLoader struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *logrus.Logger

	group   singleflight.Group
	loaded  atomic.Bool
	fetches atomic.Int32

	mu     sync.RWMutex
	script []byte
}

// NewScriptLoader creates a loader for the script at url
func NewScriptLoader(url string, client *http.Client, logger *logrus.Logger) *ScriptLoader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ScriptLoader{
		url:     url,
		client:  client,
		timeout: 15 * time.Second,
		logger:  logger,
	}
}

// Load makes sure the script is available. It returns true immediately once loaded;
// otherwise callers arriving during a fetch wait for it and get the same result.
func (l *ScriptLoader) Load(ctx context.Context) (bool, error) {
	if l.loaded.Load() {
		return true, nil
	}

	result := l.group.DoChan(scriptLoadKey, func() (interface{}, error) {
		if l.loaded.Load() {
			return true, nil
		}
		// the fetch outlives a single caller's cancellation since others share it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		if err := l.fetch(fetchCtx); err != nil {
			return false, err
		}
		l.loaded.Store(true)
		return true, nil
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (l *ScriptLoader) fetch(ctx context.Context) error {
	l.fetches.Add(1)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create script request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.WithError(err).WithField("url", l.url).Error("Checkout script fetch failed")
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		l.logger.WithFields(logrus.Fields{
			"url":    l.url,
			"status": resp.StatusCode,
		}).Error("Checkout script fetch returned non-200")
		return fmt.Errorf("%w: script returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: failed to read script: %v", ErrGatewayUnavailable, err)
	}

	l.mu.Lock()
	l.script = body
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"url":      l.url,
		"bytes":    len(body),
		"duration": time.Since(start).String(),
	}).Info("Checkout script loaded")
	return nil
}

// IsLoaded reports whether the script has been fetched successfully
func (l *ScriptLoader) IsLoaded() bool {
	return l.loaded.Load()
}

// Script returns the cached script body
func (l *ScriptLoader) Script() ([]byte, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.script == nil {
		return nil, false
	}
	return l.script, true
}

// FetchCount is the number of network fetches performed so far
func (l *ScriptLoader) FetchCount() int {
	return int(l.fetches.Load())
}

// ============================================================================
// PAYMENT ATTEMPTS
// ============================================================================

// AttemptState is where a single checkout popup is in its lifecycle
type AttemptState string

const (
	AttemptStateIdle          AttemptState = "idle"
	AttemptStateScriptLoading AttemptState = "script_loading"
	AttemptStateReady         AttemptState = "ready"
	AttemptStatePopupOpen     AttemptState = "popup_open"
	AttemptStateSucceeded     AttemptState = "succeeded"
	AttemptStateFailed        AttemptState = "failed"
	AttemptStateCancelled     AttemptState = "cancelled"
)

var attemptTransitions = map[AttemptState][]AttemptState{
	AttemptStateIdle:          {AttemptStateScriptLoading},
	AttemptStateScriptLoading: {AttemptStateReady, AttemptStateFailed},
	AttemptStateReady:         {AttemptStatePopupOpen, AttemptStateFailed},
	AttemptStatePopupOpen:     {AttemptStateSucceeded, AttemptStateFailed, AttemptStateCancelled},
}

// IsTerminal reports whether no further transitions are allowed
func (s AttemptState) IsTerminal() bool {
	return len(attemptTransitions[s]) == 0
}

func (s AttemptState) canTransitionTo(next AttemptState) bool {
	for _, allowed := range attemptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckoutPrefill is the identity shown pre-filled in the popup
type CheckoutPrefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// CheckoutTheme styles the popup
type CheckoutTheme struct {
	Color string `json:"color,omitempty"`
}

// CheckoutOptions is what the storefront passes to the widget constructor
type CheckoutOptions struct {
	Key         string            `json:"key"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Notes       map[string]string `json:"notes"`
	Prefill     CheckoutPrefill   `json:"prefill"`
	Theme       CheckoutTheme     `json:"theme,omitempty"`
}

// PaymentAttempt is one opening of the checkout popup
type PaymentAttempt struct {
	ID        string          `json:"attempt_id"`
	BookingID string          `json:"booking_id"`
	State     AttemptState    `json:"state"`
	Options   CheckoutOptions `json:"options"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// OpenPaymentParams describes the popup to open
type OpenPaymentParams struct {
	BookingID   string
	Amount      int64
	Description string
	Name        string
	Email       string
	Contact     string
	Notes       map[string]string
}

// SuccessCallback is the widget's handler payload
type SuccessCallback struct {
	RazorpayPaymentID string            `json:"razorpay_payment_id"`
	RazorpayOrderID   string            `json:"razorpay_order_id"`
	RazorpaySignature string            `json:"razorpay_signature"`
	BookingID         string            `json:"booking_id"`
	Notes             map[string]string `json:"notes"`
}

// FailureCallback is the widget's payment.failed payload
type FailureCallback struct {
	BookingID string `json:"booking_id"`
	Error     struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Source      string `json:"source"`
		Step        string `json:"step"`
		Reason      string `json:"reason"`
		Metadata    struct {
			PaymentID string `json:"payment_id"`
			OrderID   string `json:"order_id"`
		} `json:"metadata"`
	} `json:"error"`
}

// ============================================================================
// CHECKOUT SERVICE
// ============================================================================

// attemptRetention is how long attempts stay in the registry
const attemptRetention = 24 * time.Hour

// CheckoutService drives the hosted checkout widget and turns its callbacks into gateway outcomes
type CheckoutService struct {
	config *config.PaymentConfig
	loader *ScriptLoader
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	attempts map[string]*PaymentAttempt
}

// NewCheckoutService creates a new CheckoutService
func NewCheckoutService(cfg *config.PaymentConfig, loader *ScriptLoader, logger *logrus.Logger) *CheckoutService {
	return &CheckoutService{
		config:   cfg,
		loader:   loader,
		logger:   logger,
		now:      time.Now,
		attempts: make(map[string]*PaymentAttempt),
	}
}

// Loader returns the script loader backing this service
func (s *CheckoutService) Loader() *ScriptLoader {
	return s.loader
}

// OpenPayment loads the script if needed and returns the popup options for a booking.
// The booking id travels in notes.booking_id; no server-side order is created.
func (s *CheckoutService) OpenPayment(ctx context.Context, params OpenPaymentParams) (*PaymentAttempt, error) {
	if params.BookingID == "" {
		return nil, fmt.Errorf("booking id is required to open a payment")
	}

	now := s.now()
	attempt := &PaymentAttempt{
		ID:        uuid.New().String(),
		BookingID: params.BookingID,
		State:     AttemptStateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.attempts[attempt.ID] = attempt
	s.mu.Unlock()

	s.transition(attempt.ID, AttemptStateScriptLoading)
	ok, err := s.loader.Load(ctx)
	if err != nil || !ok {
		s.transition(attempt.ID, AttemptStateFailed)
		if err == nil {
			err = ErrGatewayUnavailable
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"attempt_id": attempt.ID,
			"booking_id": params.BookingID,
		}).Error("Cannot open checkout: script not loaded")
		if errors.Is(err, ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	s.transition(attempt.ID, AttemptStateReady)

	notes := make(map[string]string, len(params.Notes)+1)
	for k, v := range params.Notes {
		notes[k] = v
	}
	notes["booking_id"] = params.BookingID

	options := CheckoutOptions{
		Key:         s.config.KeyID,
		Amount:      params.Amount,
		Currency:    s.config.Currency,
		Name:        s.config.MerchantName,
		Description: params.Description,
		Notes:       notes,
		Prefill: CheckoutPrefill{
			Name:    params.Name,
			Email:   params.Email,
			Contact: params.Contact,
		},
		Theme: CheckoutTheme{Color: s.config.ThemeColor},
	}

	s.mu.Lock()
	attempt.Options = options
	s.mu.Unlock()

	opened, err := s.transition(attempt.ID, AttemptStatePopupOpen)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"attempt_id": attempt.ID,
		"booking_id": params.BookingID,
		"amount":     params.Amount,
	}).Info("Checkout popup opened")

	return opened, nil
}

// Attempt returns a copy of the attempt with the given id
func (s *CheckoutService) Attempt(attemptID string) (*PaymentAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return nil, false
	}
	return copyAttempt(attempt), true
}

// HandleSuccess turns the widget's success payload into a GatewaySuccess.
// VerifiedBookingID comes from the attempt's own options and is empty for unknown attempts.
func (s *CheckoutService) HandleSuccess(attemptID string, cb SuccessCallback) models.GatewaySuccess {
	success := models.GatewaySuccess{
		BookingID: strings.TrimSpace(cb.BookingID),
		PaymentID: strings.TrimSpace(cb.RazorpayPaymentID),
		OrderID:   strings.TrimSpace(cb.RazorpayOrderID),
		Signature: strings.TrimSpace(cb.RazorpaySignature),
		Metadata:  cb.Notes,
		Raw: map[string]interface{}{
			"razorpay_payment_id": cb.RazorpayPaymentID,
			"razorpay_order_id":   cb.RazorpayOrderID,
			"razorpay_signature":  cb.RazorpaySignature,
			"booking_id":          cb.BookingID,
			"attempt_id":          attemptID,
		},
	}

	if attempt, err := s.transition(attemptID, AttemptStateSucceeded); err == nil {
		success.VerifiedBookingID = attempt.Options.Notes["booking_id"]
	} else if attempt, ok := s.Attempt(attemptID); ok {
		// duplicate callback on an already finished attempt still carries the booking
		success.VerifiedBookingID = attempt.Options.Notes["booking_id"]
		s.logger.WithFields(logrus.Fields{
			"attempt_id": attemptID,
			"state":      attempt.State,
		}).Warn("Success callback for an attempt that is not open")
	} else {
		s.logger.WithField("attempt_id", attemptID).Warn("Success callback for unknown attempt")
	}

	if success.OrderID != "" && success.Signature != "" && s.config.KeySecret != "" {
		success.SignatureVerified = s.VerifySignature(success.OrderID, success.PaymentID, success.Signature)
		if !success.SignatureVerified {
			s.logger.WithFields(logrus.Fields{
				"attempt_id": attemptID,
				"payment_id": success.PaymentID,
			}).Warn("Checkout signature mismatch")
		}
	}

	return success
}

// HandleFailure turns the widget's payment.failed payload into a GatewayFailure
func (s *CheckoutService) HandleFailure(attemptID string, cb FailureCallback) models.GatewayFailure {
	failure := models.GatewayFailure{
		BookingID:   strings.TrimSpace(cb.BookingID),
		Code:        cb.Error.Code,
		Description: strings.TrimSpace(cb.Error.Description),
		Reason:      cb.Error.Reason,
		PaymentID:   cb.Error.Metadata.PaymentID,
		Metadata: map[string]string{
			"source":   cb.Error.Source,
			"step":     cb.Error.Step,
			"order_id": cb.Error.Metadata.OrderID,
		},
		Raw: map[string]interface{}{
			"code":        cb.Error.Code,
			"description": cb.Error.Description,
			"source":      cb.Error.Source,
			"step":        cb.Error.Step,
			"reason":      cb.Error.Reason,
			"payment_id":  cb.Error.Metadata.PaymentID,
			"order_id":    cb.Error.Metadata.OrderID,
			"attempt_id":  attemptID,
		},
	}
	if failure.Description == "" {
		failure.Description = "payment failed"
	}

	s.applyAttemptBooking(attemptID, AttemptStateFailed, &failure.BookingID)
	return failure
}

// HandleDismiss reports the user closing the popup without paying
func (s *CheckoutService) HandleDismiss(attemptID, bookingID string) models.GatewayFailure {
	failure := models.GatewayFailure{
		BookingID:   strings.TrimSpace(bookingID),
		Code:        "cancelled",
		Description: "cancelled by user",
		Cancelled:   true,
		Raw:         map[string]interface{}{"attempt_id": attemptID},
	}

	s.applyAttemptBooking(attemptID, AttemptStateCancelled, &failure.BookingID)
	return failure
}

func (s *CheckoutService) applyAttemptBooking(attemptID string, next AttemptState, bookingID *string) {
	attempt, err := s.transition(attemptID, next)
	if err != nil {
		existing, ok := s.Attempt(attemptID)
		if !ok {
			s.logger.WithField("attempt_id", attemptID).Warn("Checkout callback for unknown attempt")
			return
		}
		s.logger.WithError(err).WithField("attempt_id", attemptID).Warn("Checkout callback ignored by attempt state")
		attempt = existing
	}
	if verified := attempt.Options.Notes["booking_id"]; verified != "" {
		*bookingID = verified
	}
}

// VerifySignature checks the gateway's HMAC-SHA256 signature over "order_id|payment_id"
func (s *CheckoutService) VerifySignature(orderID, paymentID, signature string) bool {
	if s.config.KeySecret == "" {
		return false
	}
	expected := SignPayment(s.config.KeySecret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// SignPayment computes the hex signature the gateway sends for a payment
func SignPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *CheckoutService) transition(attemptID string, next AttemptState) (*PaymentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt, ok := s.attempts[attemptID]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if !attempt.State.canTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidAttemptTransition, attempt.State, next)
	}

	attempt.State = next
	attempt.UpdatedAt = s.now()
	return copyAttempt(attempt), nil
}

func (s *CheckoutService) pruneLocked(now time.Time) {
	for id, attempt := range s.attempts {
		if now.Sub(attempt.UpdatedAt) > attemptRetention {
			delete(s.attempts, id)
		}
	}
}

func copyAttempt(a *PaymentAttempt) *PaymentAttempt {
	c := *a
	if a.Options.Notes != nil {
		c.Options.Notes = make(map[string]string, len(a.Options.Notes))
		for k, v := range a.Options.Notes {
			c.Options.Notes[k] = v
		}
	}
	return &c
}
