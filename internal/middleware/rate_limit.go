package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/services"
	"github.com/trailpass/trek-booking-backend/internal/utils"
)

// RequestLimiter decides whether a client may make another request in scope
type RequestLimiter interface {
	Allow(ctx context.Context, scope, identifier string) error
}

// RateLimit rejects clients that exceed the scope's limit with 429.
// Limiter failures let the request through.
func RateLimit(limiter RequestLimiter, scope string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := utils.GetRealIP(c)
		err := limiter.Allow(c.Request.Context(), scope, ip)
		if err == nil {
			c.Next()
			return
		}

		var rateErr *services.RateLimitError
		if !errors.As(err, &rateErr) {
			logger.WithError(err).WithField("scope", scope).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		logger.WithFields(logrus.Fields{
			"scope": scope,
			"ip":    ip,
			"path":  c.Request.URL.Path,
		}).Warn("Rate limit exceeded")

		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "too_many_requests",
			"message":     rateErr.Message,
			"retry_after": seconds,
		})
	}
}
