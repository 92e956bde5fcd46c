package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/services"
)

// CouponHandler handles coupon endpoints
type CouponHandler struct {
	coupons *services.CouponService
	logger  *logrus.Logger
}

// NewCouponHandler creates a new CouponHandler
func NewCouponHandler(coupons *services.CouponService, logger *logrus.Logger) *CouponHandler {
	return &CouponHandler{
		coupons: coupons,
		logger:  logger,
	}
}

// ValidateCouponRequest asks whether a code applies to an order total
type ValidateCouponRequest struct {
	Code string `json:"code" binding:"required"`
	// OrderTotal is in the smallest currency unit
	OrderTotal int64 `json:"order_total" binding:"min=0"`
}

// Validate evaluates a coupon against an order total without reserving it.
// Rejections are a 200 with valid=false; the storefront shows the message.
// @Summary Validate coupon
// @Tags Coupons
// @Accept json
// @Produce json
// @Param request body ValidateCouponRequest true "Coupon and order total"
// @Success 200 {object} models.CouponResult
// @Router /coupons/validate [post]
func (h *CouponHandler) Validate(c *gin.Context) {
	var req ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, err := h.coupons.Evaluate(c.Request.Context(), req.Code, req.OrderTotal)
	if err != nil {
		h.logger.WithError(err).WithField("code", req.Code).Error("Coupon evaluation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate coupon"})
		return
	}

	c.JSON(http.StatusOK, result)
}
