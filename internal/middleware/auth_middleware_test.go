package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trailpass/trek-booking-backend/pkg/jwt"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-access-secret-key-123456789", time.Hour)
}

func setupTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func identityHandler(c *gin.Context) {
	userCtx, exists := GetUserContext(c)
	if !exists {
		c.JSON(http.StatusOK, gin.H{"anonymous": true, "session": SessionKey(c)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": userCtx.UserID,
		"email":   userCtx.Email,
		"session": SessionKey(c),
	})
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(jwtService, setupTestLogger()), identityHandler)

	token, err := jwtService.GenerateAccessToken("user-7", "asha@example.com", "Asha", nil)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-7")
	assert.Contains(t, w.Body.String(), "asha@example.com")
	assert.Contains(t, w.Body.String(), "user:user-7")
}

func TestAuthMiddleware_MissingAuthHeader(t *testing.T) {
	router := setupTestRouter()
	router.GET("/protected", AuthMiddleware(setupTestJWTService(), setupTestLogger()), identityHandler)

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestOptionalAuth(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter()
	router.GET("/bookings", OptionalAuth(jwtService, setupTestLogger()), identityHandler)

	t.Run("Anonymous with session header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/bookings", nil)
		req.Header.Set(SessionHeader, "tab-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"anonymous":true`)
		assert.Contains(t, w.Body.String(), "session:tab-123")
	})

	t.Run("Authenticated", func(t *testing.T) {
		token, err := jwtService.GenerateAccessToken("user-9", "", "", nil)
		require.NoError(t, err)

		req := httptest.NewRequest("GET", "/bookings", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "user-9")
	})

	t.Run("Invalid format", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/bookings", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
	})

	t.Run("Invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/bookings", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})
}

func TestUserContextIdentity(t *testing.T) {
	var missing *UserContext
	assert.Nil(t, missing.Identity())

	identity := (&UserContext{UserID: "u1", Email: "a@b.in", Name: "Asha"}).Identity()
	require.NotNil(t, identity)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, "Asha", identity.DisplayName)
}
