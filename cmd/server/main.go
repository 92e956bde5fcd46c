package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/trailpass/trek-booking-backend/internal/config"
	"github.com/trailpass/trek-booking-backend/internal/database"
	"github.com/trailpass/trek-booking-backend/internal/handlers"
	"github.com/trailpass/trek-booking-backend/internal/middleware"
	"github.com/trailpass/trek-booking-backend/internal/services"
	"github.com/trailpass/trek-booking-backend/pkg/email"
	"github.com/trailpass/trek-booking-backend/pkg/events"
	"github.com/trailpass/trek-booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Trailpass trek booking backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories
	bookingRepository := database.NewBookingRepository(db)
	couponRepository := database.NewCouponRepository(db)
	trekRepository := database.NewTrekRepository(db)
	paymentRecordRepository := database.NewPaymentRecordRepository(db)
	paymentAuditRepository := database.NewPaymentAuditRepository(db, logger)

	// Redis backs the last-known booking id cache and the rate limiter when available
	var lastBookingCache services.LastBookingIDCache = services.NewMemoryLastBookingCache(cfg.Redis.TTL)
	var rateCounter services.RateCounter = services.NewMemoryRateCounter()
	if redisClient := newRedisClient(cfg.Redis, logger); redisClient != nil {
		defer redisClient.Close()
		lastBookingCache = services.NewRedisLastBookingCache(redisClient, cfg.Redis.TTL)
		rateCounter = services.NewRedisRateCounter(redisClient)
	}
	rateLimiter := services.NewRateLimitService(rateCounter, cfg.RateLimit)

	// Booking events
	var publisher services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := events.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, logger)
		if err != nil {
			logger.WithError(err).Warn("RabbitMQ unavailable, booking events disabled")
		} else {
			defer rabbit.Close()
			publisher = rabbit
			logger.WithField("exchange", cfg.RabbitMQ.Exchange).Info("Booking events enabled")
		}
	} else {
		logger.Info("RABBITMQ_URL not set, booking events disabled")
	}

	// E-mail
	var mailer email.Mailer
	if cfg.Email.Mode == "resend" {
		logger.Info("Initializing Resend mailer...")
		mailer = email.NewResendMailer(email.ResendConfig{
			APIURL: cfg.Email.ResendAPIURL,
			APIKey: cfg.Email.ResendAPIKey,
			From:   cfg.Email.From,
		}, &http.Client{Timeout: 15 * time.Second})
	} else {
		logger.Info("Using log mailer (EMAIL_MODE=log)")
		mailer = email.NewLogMailer(logger)
	}

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	scriptLoader := services.NewScriptLoader(cfg.Payment.ScriptURL, &http.Client{Timeout: cfg.Payment.ScriptTTL}, logger)
	checkoutService := services.NewCheckoutService(&cfg.Payment, scriptLoader, logger)
	couponService := services.NewCouponService(couponRepository, logger)
	draftService := services.NewOrderDraftService(bookingRepository, cfg.Booking.MinPayableAmount, cfg.Payment.Currency, logger)
	reconciler := services.NewBookingReconciler(
		bookingRepository,
		paymentRecordRepository,
		couponRepository,
		paymentAuditRepository,
		services.ReconcilerConfig{
			Currency:          cfg.Payment.Currency,
			SignaturesChecked: cfg.Payment.KeySecret != "",
		},
		logger,
	)
	taskRunner := services.NewTaskRunner(services.DefaultTaskTimeout, logger)

	bookingService := services.NewBookingService(services.BookingServiceDeps{
		Treks:      trekRepository,
		Bookings:   bookingRepository,
		Events:     paymentAuditRepository,
		Coupons:    couponService,
		Drafts:     draftService,
		Checkout:   checkoutService,
		Reconciler: reconciler,
		LastIDs:    lastBookingCache,
		Notifier:   services.NewNotificationService(mailer, cfg.Email.TicketURL, logger),
		Publisher:  publisher,
		Tasks:      taskRunner,
		Audit:      paymentAuditRepository,
	}, logger)

	// Warm the checkout script so the first popup does not wait on it
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Payment.ScriptTTL)
		defer cancel()
		if _, err := scriptLoader.Load(ctx); err != nil {
			logger.WithError(err).Warn("Checkout script warm-up failed, will retry on demand")
		}
	}()

	// Scheduled review of reconciled and stale bookings
	var cronService *services.CronService
	if cfg.Cron.Enabled {
		cronService = services.NewCronService(bookingRepository, paymentAuditRepository, cfg.Cron, logger)
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
	}

	// Handlers
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(checkoutService, bookingService, logger)
	couponHandler := handlers.NewCouponHandler(couponService, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))
	router.GET("/checkout.js", paymentHandler.CheckoutScript)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.OptionalAuth(jwtService, logger))
	{
		v1.POST("/coupons/validate",
			middleware.RateLimit(rateLimiter, services.RateScopeCoupon, logger),
			couponHandler.Validate)

		v1.POST("/treks/:trek_id/bookings",
			middleware.RateLimit(rateLimiter, services.RateScopeBooking, logger),
			bookingHandler.BeginPayment)
		v1.GET("/bookings/:booking_id", bookingHandler.GetBooking)
		v1.GET("/bookings/:booking_id/events", bookingHandler.GetPaymentEvents)

		payments := v1.Group("/payments")
		{
			payments.GET("/:attempt_id", paymentHandler.AttemptStatus)

			callbacks := payments.Group("", middleware.RateLimit(rateLimiter, services.RateScopeCallback, logger))
			callbacks.POST("/:attempt_id/success", paymentHandler.Success)
			callbacks.POST("/:attempt_id/failure", paymentHandler.Failure)
			callbacks.POST("/:attempt_id/dismiss", paymentHandler.Dismiss)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if cronService != nil {
		cronService.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Let confirmation e-mails and events finish
	if err := taskRunner.Wait(ctx); err != nil {
		logger.WithError(err).Warn("Detached tasks still running at shutdown")
	}

	logger.Info("Server exited successfully")
}

// newRedisClient returns a connected client, or nil when Redis is not configured or reachable
func newRedisClient(cfg config.RedisConfig, logger *logrus.Logger) *redis.Client {
	if cfg.URL == "" {
		logger.Info("REDIS_URL not set, using in-memory cache and rate limits")
		return nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		logger.WithError(err).Warn("Invalid REDIS_URL, using in-memory cache and rate limits")
		return nil
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis unreachable, using in-memory cache and rate limits")
		client.Close()
		return nil
	}

	logger.Info("Redis connection established")
	return client
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		if userID, exists := c.Get("user_id"); exists {
			fields["user_id"] = userID
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.HealthCheck(c.Request.Context(), db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
