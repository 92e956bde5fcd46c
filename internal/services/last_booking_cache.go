package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultLastBookingTTL is how long a session remembers its last booking id
const DefaultLastBookingTTL = 2 * time.Hour

// LastBookingIDCache remembers the most recent booking id per checkout session.
// It is a backup channel for reconciliation, never the source of truth.
// An empty session key is never stored or recalled.
type LastBookingIDCache interface {
	Remember(ctx context.Context, sessionKey, bookingID string) error
	Recall(ctx context.Context, sessionKey string) (string, error)
}

type lastBookingEntry struct {
	bookingID string
	expiresAt time.Time
}

// MemoryLastBookingCache keeps last booking ids in process memory
type MemoryLastBookingCache struct {
	mu      sync.Mutex
	entries map[string]lastBookingEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLastBookingCache creates a new in-memory cache
func NewMemoryLastBookingCache(ttl time.Duration) *MemoryLastBookingCache {
	if ttl <= 0 {
		ttl = DefaultLastBookingTTL
	}
	return &MemoryLastBookingCache{
		entries: make(map[string]lastBookingEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Remember stores bookingID for the session, replacing any previous id
func (c *MemoryLastBookingCache) Remember(_ context.Context, sessionKey, bookingID string) error {
	if sessionKey == "" || bookingID == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.entries[sessionKey] = lastBookingEntry{bookingID: bookingID, expiresAt: now.Add(c.ttl)}
	return nil
}

// Recall returns the session's last booking id, or "" when none is known
func (c *MemoryLastBookingCache) Recall(_ context.Context, sessionKey string) (string, error) {
	if sessionKey == "" {
		return "", nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionKey]
	if !ok {
		return "", nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, sessionKey)
		return "", nil
	}
	return entry.bookingID, nil
}

// RedisLastBookingCache keeps last booking ids in Redis so every instance sees them
type RedisLastBookingCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLastBookingCache creates a new Redis-backed cache
func NewRedisLastBookingCache(client *redis.Client, ttl time.Duration) *RedisLastBookingCache {
	if ttl <= 0 {
		ttl = DefaultLastBookingTTL
	}
	return &RedisLastBookingCache{
		client: client,
		ttl:    ttl,
		prefix: "checkout:last_booking:",
	}
}

func (c *RedisLastBookingCache) key(sessionKey string) string {
	return c.prefix + sessionKey
}

// Remember stores bookingID for the session
func (c *RedisLastBookingCache) Remember(ctx context.Context, sessionKey, bookingID string) error {
	if sessionKey == "" || bookingID == "" {
		return nil
	}
	if err := c.client.Set(ctx, c.key(sessionKey), bookingID, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to remember last booking id: %w", err)
	}
	return nil
}

// Recall returns the session's last booking id, or "" when none is known
func (c *RedisLastBookingCache) Recall(ctx context.Context, sessionKey string) (string, error) {
	if sessionKey == "" {
		return "", nil
	}
	id, err := c.client.Get(ctx, c.key(sessionKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to recall last booking id: %w", err)
	}
	return id, nil
}
