package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/models"
	"github.com/trailpass/trek-booking-backend/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// SessionHeader carries the storefront's checkout session id
const SessionHeader = "X-Session-ID"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID string   `json:"user_id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Phone  string   `json:"phone"`
	Roles  []string `json:"roles"`
}

// Identity converts the user context into the booking flow's identity
func (u *UserContext) Identity() *models.Identity {
	if u == nil {
		return nil
	}
	return &models.Identity{
		UserID:      u.UserID,
		Email:       u.Email,
		DisplayName: u.Name,
		Phone:       u.Phone,
	}
}

// AuthMiddleware rejects requests without a valid bearer token
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			logger.WithFields(logrus.Fields{
				"path": c.Request.URL.Path,
				"ip":   c.ClientIP(),
			}).Warn("Auth failed: missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
				"code":    "MISSING_AUTH_HEADER",
			})
			return
		}

		if !authenticate(c, jwtService, logger) {
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the user when a bearer token is present.
// Requests without an Authorization header continue as anonymous;
// a present but invalid token is rejected.
func OptionalAuth(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}

		if !authenticate(c, jwtService, logger) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtService *jwt.Service, logger *logrus.Logger) bool {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Invalid authorization header format. Expected: Bearer <token>",
			"code":    "INVALID_AUTH_FORMAT",
		})
		return false
	}

	claims, err := jwtService.ValidateAccessToken(strings.TrimSpace(parts[1]))
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		}).Warn("Auth failed: invalid token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Invalid or expired token",
			"code":    "INVALID_TOKEN",
		})
		return false
	}

	c.Set(UserContextKey, &UserContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
		Phone:  claims.Phone,
		Roles:  claims.Roles,
	})
	c.Set("user_id", claims.UserID)
	return true
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (*UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return nil, false
	}

	userCtx, ok := value.(*UserContext)
	if !ok {
		return nil, false
	}

	return userCtx, true
}

// SessionKey identifies the browser session a checkout belongs to.
// Authenticated users are keyed by user id, anonymous ones by the session header.
func SessionKey(c *gin.Context) string {
	if userCtx, ok := GetUserContext(c); ok {
		return "user:" + userCtx.UserID
	}
	if session := strings.TrimSpace(c.GetHeader(SessionHeader)); session != "" {
		return "session:" + session
	}
	return ""
}
