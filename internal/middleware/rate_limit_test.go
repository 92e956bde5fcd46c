package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/trailpass/trek-booking-backend/internal/config"
	"github.com/trailpass/trek-booking-backend/internal/services"
)

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, string) error {
	return errors.New("redis down")
}

func rateLimitedRouter(limiter RequestLimiter) *gin.Engine {
	router := setupTestRouter()
	router.Use(RateLimit(limiter, services.RateScopeCoupon, setupTestLogger()))
	router.POST("/coupons/validate", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func sendFrom(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/coupons/validate", nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	limiter := services.NewRateLimitService(services.NewMemoryRateCounter(), config.RateLimitConfig{
		CouponRequests: 2,
		Window:         time.Minute,
	})
	router := rateLimitedRouter(limiter)

	assert.Equal(t, http.StatusOK, sendFrom(router, "203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, sendFrom(router, "203.0.113.7").Code)

	w := sendFrom(router, "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "too_many_requests")

	assert.Equal(t, http.StatusOK, sendFrom(router, "198.51.100.1").Code)
}

func TestRateLimit_LimiterErrorLetsRequestThrough(t *testing.T) {
	router := rateLimitedRouter(brokenLimiter{})
	assert.Equal(t, http.StatusOK, sendFrom(router, "203.0.113.7").Code)
}
