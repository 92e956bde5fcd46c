package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/middleware"
	"github.com/trailpass/trek-booking-backend/internal/models"
	"github.com/trailpass/trek-booking-backend/internal/services"
)

// BookingFlow is the booking facade the HTTP layer talks to
type BookingFlow interface {
	BeginPayment(ctx context.Context, req services.BeginPaymentRequest) services.BeginPaymentResult
	CompletePayment(ctx context.Context, req services.CompletePaymentRequest) *models.Booking
	FailPayment(ctx context.Context, req services.FailPaymentRequest) *models.Booking
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetPaymentEvents(ctx context.Context, bookingID string) ([]*models.PaymentAudit, error)
}

// BookingHandler handles trek booking endpoints
type BookingHandler struct {
	flow   BookingFlow
	logger *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(flow BookingFlow, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		flow:   flow,
		logger: logger,
	}
}

// BeginPaymentRequest is the storefront booking form
type BeginPaymentRequest struct {
	models.BookingForm
	CouponCode string `json:"coupon_code"`
}

// ============================================================================
// BEGIN PAYMENT - POST /api/v1/treks/:trek_id/bookings
// ============================================================================

// BeginPayment creates a pending booking and returns the checkout popup options
// @Summary Begin trek booking payment
// @Tags Bookings
// @Accept json
// @Produce json
// @Param trek_id path string true "Trek ID"
// @Param request body BeginPaymentRequest true "Booking form"
// @Success 201 {object} services.BeginPaymentResult
// @Failure 400 {object} services.BeginPaymentResult "Validation error"
// @Failure 404 {object} services.BeginPaymentResult "Trek not found"
// @Failure 503 {object} services.BeginPaymentResult "Payment gateway unavailable"
// @Router /treks/{trek_id}/bookings [post]
func (h *BookingHandler) BeginPayment(c *gin.Context) {
	var req BeginPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, services.BeginPaymentResult{
			Code:  services.BeginCodeValidation,
			Error: "invalid request: " + err.Error(),
		})
		return
	}

	var identity *models.Identity
	if userCtx, ok := middleware.GetUserContext(c); ok {
		identity = userCtx.Identity()
	}

	result := h.flow.BeginPayment(c.Request.Context(), services.BeginPaymentRequest{
		TrekID:     c.Param("trek_id"),
		Form:       req.BookingForm,
		CouponCode: req.CouponCode,
		Identity:   identity,
		SessionKey: middleware.SessionKey(c),
		Meta:       clientMeta(c),
	})

	c.JSON(beginStatus(result), result)
}

func beginStatus(result services.BeginPaymentResult) int {
	if result.Success {
		return http.StatusCreated
	}
	switch result.Code {
	case services.BeginCodeValidation:
		return http.StatusBadRequest
	case services.BeginCodeTrekNotFound:
		return http.StatusNotFound
	case services.BeginCodeTrekInactive:
		return http.StatusConflict
	case services.BeginCodeGatewayUnavailable, services.BeginCodeGatewayError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// READ BACK - GET /api/v1/bookings/:booking_id
// ============================================================================

// GetBooking returns a booking by id
// @Summary Get booking
// @Tags Bookings
// @Produce json
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Router /bookings/{booking_id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	id := strings.TrimSpace(c.Param("booking_id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "booking_id is required"})
		return
	}

	booking, err := h.flow.GetBooking(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrBookingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		h.logger.WithError(err).WithField("booking_id", id).Error("Failed to get booking")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get booking"})
		return
	}

	if !canView(c, booking) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}

	c.JSON(http.StatusOK, booking)
}

// GetPaymentEvents returns the payment audit trail of a booking
// @Summary Get booking payment events
// @Tags Bookings
// @Produce json
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Router /bookings/{booking_id}/events [get]
func (h *BookingHandler) GetPaymentEvents(c *gin.Context) {
	id := strings.TrimSpace(c.Param("booking_id"))

	booking, err := h.flow.GetBooking(c.Request.Context(), id)
	if err != nil || !canView(c, booking) {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		return
	}

	events, err := h.flow.GetPaymentEvents(c.Request.Context(), id)
	if err != nil {
		h.logger.WithError(err).WithField("booking_id", id).Error("Failed to get payment events")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get payment events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id": id,
		"events":     events,
		"count":      len(events),
	})
}

// canView hides other users' bookings. Anonymous bookings are readable by id.
func canView(c *gin.Context, booking *models.Booking) bool {
	if booking == nil {
		return false
	}
	if booking.UserID == "" || booking.UserID == services.AnonymousUserID {
		return true
	}
	userCtx, ok := middleware.GetUserContext(c)
	return ok && userCtx.UserID == booking.UserID
}
