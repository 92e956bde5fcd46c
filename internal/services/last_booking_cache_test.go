package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLastBookingCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryLastBookingCache(time.Minute)
	now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Remember(ctx, "session:a", "bk_1"))
	require.NoError(t, cache.Remember(ctx, "session:a", "bk_2"))
	require.NoError(t, cache.Remember(ctx, "session:b", "bk_9"))

	id, err := cache.Recall(ctx, "session:a")
	require.NoError(t, err)
	assert.Equal(t, "bk_2", id)

	id, _ = cache.Recall(ctx, "session:b")
	assert.Equal(t, "bk_9", id)

	id, _ = cache.Recall(ctx, "session:unknown")
	assert.Empty(t, id)

	t.Run("Empty session key is ignored", func(t *testing.T) {
		require.NoError(t, cache.Remember(ctx, "", "bk_x"))
		id, err := cache.Recall(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, id)
	})

	t.Run("Entries expire", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		id, err := cache.Recall(ctx, "session:a")
		require.NoError(t, err)
		assert.Empty(t, id)
	})
}

func TestRedisLastBookingCache_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	cache := NewRedisLastBookingCache(client, 0)
	assert.Equal(t, "checkout:last_booking:user:u1", cache.key("user:u1"))
	assert.Equal(t, DefaultLastBookingTTL, cache.ttl)

	assert.Error(t, cache.Remember(context.Background(), "user:u1", "bk_1"))
	_, err := cache.Recall(context.Background(), "user:u1")
	assert.Error(t, err)

	// empty keys never reach redis
	assert.NoError(t, cache.Remember(context.Background(), "", "bk_1"))
	id, err := cache.Recall(context.Background(), "")
	assert.NoError(t, err)
	assert.Empty(t, id)
}
