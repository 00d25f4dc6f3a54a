package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "response", CacheKey("response"))
	assert.Equal(t, "response:/api/locks", CacheKey("response", "/api/locks"))
	assert.Equal(t, "response:/api/locks:limit=10:user-1", CacheKey("response", "/api/locks", "limit=10", "user-1"))
}

func TestCacheManagerWithoutRedis(t *testing.T) {
	ctx := context.Background()
	cm := NewCacheManager(nil)

	t.Run("reads report a miss", func(t *testing.T) {
		val, found, err := cm.GetCached(ctx, "response:/api/whatever")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Empty(t, val)
	})

	t.Run("writes are no-ops", func(t *testing.T) {
		assert.NoError(t, cm.SetCached(ctx, "response:/api/whatever", "{}", time.Minute))
	})

	t.Run("invalidation is a no-op", func(t *testing.T) {
		assert.NoError(t, cm.InvalidateCache(ctx, "a", "b"))
		assert.NoError(t, cm.InvalidateBoardPosts(ctx, 42))
	})

	t.Run("stats report unavailable", func(t *testing.T) {
		stats := cm.GetCacheStats(ctx, "response")
		assert.Equal(t, false, stats["available"])
	})

	t.Run("nil manager is safe", func(t *testing.T) {
		var nilCM *CacheManager
		_, found, err := nilCM.GetCached(ctx, "k")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, nilCM.SetCached(ctx, "k", "v", time.Minute))
		assert.NoError(t, nilCM.InvalidateBoardPosts(ctx, 1))
	})
}
