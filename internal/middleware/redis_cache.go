package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/logger"
	"go.uber.org/zap"
)

// CacheManager is the Redis store behind ResponseCacheMiddleware and the
// handler-side invalidation hooks. Every method tolerates a missing
// Redis client: reads report a miss and writes are no-ops, so callers
// never need to guard for a degraded cache.
type CacheManager struct {
	client *cache.RedisClient
}

// NewCacheManager creates a cache manager on top of the given client.
// A nil client is allowed.
func NewCacheManager(client *cache.RedisClient) *CacheManager {
	return &CacheManager{client: client}
}

// CacheKey joins a prefix and key parts with colons.
func CacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// GetCached reads a key. The bool reports whether the key existed; a
// missing key is not an error.
func (cm *CacheManager) GetCached(ctx context.Context, key string) (string, bool, error) {
	if cm == nil || cm.client == nil {
		return "", false, nil
	}

	val, err := cm.client.Get(ctx, key)
	if err != nil {
		if cache.IsNil(err) {
			return "", false, nil
		}
		logger.Log.Debug("Cache read failed",
			zap.String("key", key),
			zap.Error(err))
		return "", false, err
	}
	return val, true, nil
}

// SetCached stores a value with a TTL.
func (cm *CacheManager) SetCached(ctx context.Context, key string, value string, ttl time.Duration) error {
	if cm == nil || cm.client == nil {
		return nil
	}

	if err := cm.client.SetEx(ctx, key, value, ttl); err != nil {
		logger.Log.Debug("Cache write failed",
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return nil
}

// InvalidateCache deletes the given keys.
func (cm *CacheManager) InvalidateCache(ctx context.Context, keys ...string) error {
	if cm == nil || cm.client == nil || len(keys) == 0 {
		return nil
	}

	if err := cm.client.Del(ctx, keys...); err != nil {
		logger.Log.Warn("Cache invalidation failed",
			zap.Strings("keys", keys),
			zap.Error(err))
		return err
	}
	RecordCacheEviction("response_cache", int64(len(keys)))
	logger.Log.Debug("Cache invalidated",
		zap.Strings("keys", keys))
	return nil
}

// InvalidateBoardPosts drops every cached post listing for a board.
// Listings are cached per cursor and per viewer, so this matches by
// pattern rather than a single key. Post and comment mutations call it;
// anything they miss ages out with the TTL.
func (cm *CacheManager) InvalidateBoardPosts(ctx context.Context, boardID int64) error {
	if cm == nil || cm.client == nil {
		return nil
	}

	pattern := fmt.Sprintf("response:*/boards/%d/posts*", boardID)
	keys, err := cm.client.Keys(ctx, pattern)
	if err != nil {
		logger.Log.Debug("Failed to scan board listing cache",
			logger.WithBoardID(boardID),
			zap.Error(err))
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return cm.InvalidateCache(ctx, keys...)
}

// GetCacheStats reports how many keys currently live under a prefix.
func (cm *CacheManager) GetCacheStats(ctx context.Context, prefix string) map[string]interface{} {
	if cm == nil || cm.client == nil {
		return map[string]interface{}{"available": false}
	}

	stats := map[string]interface{}{
		"available": true,
		"prefix":    prefix,
	}

	keys, err := cm.client.Keys(ctx, fmt.Sprintf("%s:*", prefix))
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	stats["key_count"] = len(keys)
	return stats
}
