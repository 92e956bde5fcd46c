package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration (tokens are issued by the identity provider)
	JWT JWTConfig

	// Hosted checkout configuration
	Payment PaymentConfig

	// Booking rules
	Booking BookingConfig

	// Redis backs the last-booking cache and rate limit counters
	Redis RedisConfig

	// RabbitMQ configuration for booking events
	RabbitMQ RabbitMQConfig

	// E-mail notifier configuration
	Email EmailConfig

	// CORS configuration
	CORS CORSConfig

	// Scheduled jobs
	Cron CronConfig

	// Per-IP request limits on public booking endpoints
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string // development, staging, production
	LogLevel        string // debug, info, warn, error
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PaymentConfig holds the Razorpay-style checkout configuration
type PaymentConfig struct {
	KeyID        string // public key handed to the checkout widget
	KeySecret    string // SECRET - used only to verify callback signatures
	ScriptURL    string // checkout.js location
	Currency     string
	MerchantName string
	ThemeColor   string
	ScriptTTL    time.Duration
}

// BookingConfig holds booking amount rules
type BookingConfig struct {
	// MinPayableAmount is the gateway's minimum charge in the smallest currency unit
	MinPayableAmount int64
}

// RedisConfig holds Redis settings. An empty URL selects the in-memory cache.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
	TTL      time.Duration
}

// RabbitMQConfig holds broker settings. An empty URL disables event publishing.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// EmailConfig holds e-mail notifier settings
type EmailConfig struct {
	Mode         string // "log" or "resend"
	ResendAPIKey string
	ResendAPIURL string
	From         string
	TicketURL    string // base URL encoded in the e-ticket QR code
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// CronConfig holds scheduled job settings
type CronConfig struct {
	Enabled           bool
	ReviewSchedule    string // six-field cron expression
	PendingStaleAfter time.Duration
	ReviewLookback    time.Duration
	ReviewBatchSize   int
}

// RateLimitConfig holds per-IP request limits. A zero limit disables that scope.
type RateLimitConfig struct {
	CouponRequests   int
	BookingRequests  int
	CallbackRequests int
	Window           time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Payment: PaymentConfig{
			KeyID:        getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:    getEnv("RAZORPAY_KEY_SECRET", ""),
			ScriptURL:    getEnv("RAZORPAY_CHECKOUT_SCRIPT_URL", "https://checkout.razorpay.com/v1/checkout.js"),
			Currency:     getEnv("PAYMENT_CURRENCY", "INR"),
			MerchantName: getEnv("PAYMENT_MERCHANT_NAME", "Trailpass Treks"),
			ThemeColor:   getEnv("PAYMENT_THEME_COLOR", "#2f855a"),
			ScriptTTL:    time.Duration(getEnvAsInt("CHECKOUT_SCRIPT_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Booking: BookingConfig{
			MinPayableAmount: int64(getEnvAsInt("BOOKING_MIN_PAYABLE_AMOUNT", 100)),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      time.Duration(getEnvAsInt("LAST_BOOKING_TTL_MINUTES", 60)) * time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "bookings"),
		},
		Email: EmailConfig{
			Mode:         getEnv("EMAIL_MODE", "log"),
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			ResendAPIURL: getEnv("RESEND_API_URL", "https://api.resend.com/emails"),
			From:         getEnv("EMAIL_FROM", "Trailpass Treks <bookings@trailpass.in>"),
			TicketURL:    getEnv("TICKET_VERIFY_URL", "https://trailpass.in/tickets"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Session-ID"}),
		},
		Cron: CronConfig{
			Enabled:           getEnvAsBool("CRON_ENABLED", true),
			ReviewSchedule:    getEnv("CRON_BOOKING_REVIEW_SCHEDULE", "0 */15 * * * *"),
			PendingStaleAfter: time.Duration(getEnvAsInt("PENDING_STALE_AFTER_MINUTES", 30)) * time.Minute,
			ReviewLookback:    time.Duration(getEnvAsInt("BOOKING_REVIEW_LOOKBACK_HOURS", 24)) * time.Hour,
			ReviewBatchSize:   getEnvAsInt("BOOKING_REVIEW_BATCH_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			CouponRequests:   getEnvAsInt("RATE_LIMIT_COUPON_REQUESTS", 20),
			BookingRequests:  getEnvAsInt("RATE_LIMIT_BOOKING_REQUESTS", 10),
			CallbackRequests: getEnvAsInt("RATE_LIMIT_CALLBACK_REQUESTS", 30),
			Window:           time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 10)) * time.Minute,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Payment.KeyID == "" {
		return fmt.Errorf("RAZORPAY_KEY_ID is required")
	}

	if c.Booking.MinPayableAmount < 0 {
		return fmt.Errorf("BOOKING_MIN_PAYABLE_AMOUNT cannot be negative")
	}

	switch c.Email.Mode {
	case "log":
	case "resend":
		if c.Email.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when EMAIL_MODE is resend")
		}
	default:
		return fmt.Errorf("invalid EMAIL_MODE: %s (must be 'log' or 'resend')", c.Email.Mode)
	}

	return nil
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
