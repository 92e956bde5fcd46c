package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/middleware"
	"github.com/trailpass/trek-booking-backend/internal/services"
)

// PaymentHandler receives checkout widget callbacks
type PaymentHandler struct {
	checkout *services.CheckoutService
	flow     BookingFlow
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(checkout *services.CheckoutService, flow BookingFlow, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkout,
		flow:     flow,
		logger:   logger,
	}
}

// DismissRequest is sent when the user closes the popup
type DismissRequest struct {
	BookingID string `json:"booking_id"`
}

// ============================================================================
// SUCCESS - POST /api/v1/payments/:attempt_id/success
// ============================================================================

// Success reconciles a completed payment. It answers 200 whenever the body parses;
// reconciliation problems show up in the booking status.
// @Summary Payment success callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param attempt_id path string true "Checkout attempt ID"
// @Param request body services.SuccessCallback true "Widget handler payload"
// @Success 200 {object} map[string]interface{}
// @Router /payments/{attempt_id}/success [post]
func (h *PaymentHandler) Success(c *gin.Context) {
	attemptID := c.Param("attempt_id")

	var cb services.SuccessCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	success := h.checkout.HandleSuccess(attemptID, cb)
	booking := h.flow.CompletePayment(c.Request.Context(), services.CompletePaymentRequest{
		SessionKey: middleware.SessionKey(c),
		Success:    success,
		Meta:       clientMeta(c),
	})

	h.logger.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"booking_id": booking.ID,
		"status":     booking.Status,
	}).Info("Payment success handled")

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"booking": booking,
	})
}

// ============================================================================
// FAILURE - POST /api/v1/payments/:attempt_id/failure
// ============================================================================

// Failure records a payment.failed event
// @Summary Payment failure callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param attempt_id path string true "Checkout attempt ID"
// @Param request body services.FailureCallback true "Widget payment.failed payload"
// @Success 200 {object} map[string]interface{}
// @Router /payments/{attempt_id}/failure [post]
func (h *PaymentHandler) Failure(c *gin.Context) {
	attemptID := c.Param("attempt_id")

	var cb services.FailureCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	failure := h.checkout.HandleFailure(attemptID, cb)
	booking := h.flow.FailPayment(c.Request.Context(), services.FailPaymentRequest{
		BookingID:  failure.BookingID,
		SessionKey: middleware.SessionKey(c),
		Failure:    failure,
		Meta:       clientMeta(c),
	})

	c.JSON(http.StatusOK, gin.H{
		"success":  false,
		"recorded": booking != nil,
		"error":    failure.Description,
		"booking":  booking,
	})
}

// ============================================================================
// DISMISS - POST /api/v1/payments/:attempt_id/dismiss
// ============================================================================

// Dismiss records the user closing the popup
// @Summary Payment popup dismissed
// @Tags Payments
// @Accept json
// @Produce json
// @Param attempt_id path string true "Checkout attempt ID"
// @Success 200 {object} map[string]interface{}
// @Router /payments/{attempt_id}/dismiss [post]
func (h *PaymentHandler) Dismiss(c *gin.Context) {
	attemptID := c.Param("attempt_id")

	var req DismissRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}

	failure := h.checkout.HandleDismiss(attemptID, req.BookingID)
	booking := h.flow.FailPayment(c.Request.Context(), services.FailPaymentRequest{
		BookingID:  failure.BookingID,
		SessionKey: middleware.SessionKey(c),
		Failure:    failure,
		Meta:       clientMeta(c),
	})

	c.JSON(http.StatusOK, gin.H{
		"success":  false,
		"recorded": booking != nil,
		"error":    failure.Description,
		"booking":  booking,
	})
}

// ============================================================================
// SCRIPT - GET /checkout.js
// ============================================================================

// CheckoutScript serves the cached gateway script, loading it on first use
func (h *PaymentHandler) CheckoutScript(c *gin.Context) {
	loader := h.checkout.Loader()
	if ok, err := loader.Load(c.Request.Context()); err != nil || !ok {
		h.logger.WithError(err).Warn("Checkout script unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "checkout script unavailable"})
		return
	}

	script, ok := loader.Script()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "checkout script unavailable"})
		return
	}

	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", script)
}

// AttemptStatus reports where an attempt is, for storefront polling
func (h *PaymentHandler) AttemptStatus(c *gin.Context) {
	attempt, ok := h.checkout.Attempt(strings.TrimSpace(c.Param("attempt_id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attempt_id": attempt.ID,
		"booking_id": attempt.BookingID,
		"state":      attempt.State,
	})
}
