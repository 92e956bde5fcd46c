package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/trailpass/trek-booking-backend/internal/config"
)

// Rate limit scopes
const (
	RateScopeCoupon   = "coupon"
	RateScopeBooking  = "booking"
	RateScopeCallback = "callback"
)

// DefaultRateLimitWindow applies when the configured window is not positive
const DefaultRateLimitWindow = 10 * time.Minute

// RateCounter counts hits on a key inside a fixed window.
// Hit returns the count including this hit and the time left in the window.
type RateCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	Scope      string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// RateLimitService limits public checkout requests per client IP
type RateLimitService struct {
	counter RateCounter
	limits  map[string]int
	window  time.Duration
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(counter RateCounter, cfg config.RateLimitConfig) *RateLimitService {
	window := cfg.Window
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimitService{
		counter: counter,
		limits: map[string]int{
			RateScopeCoupon:   cfg.CouponRequests,
			RateScopeBooking:  cfg.BookingRequests,
			RateScopeCallback: cfg.CallbackRequests,
		},
		window: window,
	}
}

// Enabled reports whether scope has a positive limit
func (s *RateLimitService) Enabled(scope string) bool {
	return s.limits[scope] > 0
}

// Allow records one request for identifier in scope.
// It returns a *RateLimitError once the scope's limit is exceeded.
func (s *RateLimitService) Allow(ctx context.Context, scope, identifier string) error {
	limit := s.limits[scope]
	if limit <= 0 || identifier == "" {
		return nil
	}

	count, remaining, err := s.counter.Hit(ctx, "ratelimit:"+scope+":"+identifier, s.window)
	if err != nil {
		return fmt.Errorf("failed to check %s rate limit: %w", scope, err)
	}

	if count > int64(limit) {
		if remaining <= 0 {
			remaining = s.window
		}
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many %s requests. Please try again in %s", scope, remaining.Round(time.Second)),
			RetryAfter: remaining,
			Scope:      scope,
		}
	}
	return nil
}

// ============================================================================
// COUNTERS
// ============================================================================

type rateWindow struct {
	count     int64
	expiresAt time.Time
}

// MemoryRateCounter counts hits in process memory
type MemoryRateCounter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

// NewMemoryRateCounter creates a new in-memory counter
func NewMemoryRateCounter() *MemoryRateCounter {
	return &MemoryRateCounter{
		windows: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// Hit increments key, starting a new window when the previous one expired
func (m *MemoryRateCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, w := range m.windows {
		if !now.Before(w.expiresAt) {
			delete(m.windows, k)
		}
	}

	w, ok := m.windows[key]
	if !ok {
		w = &rateWindow{expiresAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}

// RedisRateCounter shares counters across instances through Redis
type RedisRateCounter struct {
	client *redis.Client
}

// NewRedisRateCounter creates a new Redis-backed counter
func NewRedisRateCounter(client *redis.Client) *RedisRateCounter {
	return &RedisRateCounter{client: client}
}

// Hit increments key and sets its expiry on the first hit of a window
func (r *RedisRateCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read rate counter ttl: %w", err)
	}

	// A key without expiry would never reset
	if count == 1 || ttl < 0 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set rate counter expiry: %w", err)
		}
		ttl = window
	}
	return count, ttl, nil
}
