package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/cache"
	apperrors "github.com/flotob/curia-sub002/internal/errors"
	"github.com/flotob/curia-sub002/internal/logger"
)

// RedisRateLimitMiddleware creates a distributed rate limiter using Redis.
// Counters are shared across instances and count fixed windows; Redis
// errors fail closed. The smart wrappers in ratelimit.go only route
// here when Redis is up, so the nil check is a guard, not a policy.
func RedisRateLimitMiddleware(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		redisClient := cache.GetRedisClient()
		if redisClient == nil {
			logger.Log.Warn("Redis rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		key := fmt.Sprintf("rate_limit:%s", clientIP)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		// Increment before checking; a read-then-write pair would let
		// concurrent requests slip past the limit.
		count, err := redisClient.IncrBy(ctx, key, 1)
		if err != nil {
			logger.Log.Error("Rate limit increment failed, rejecting request",
				logger.WithIP(clientIP),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, apperrors.ServiceUnavailable("rate limiter"))
			return
		}

		// First hit in this window arms the expiry.
		if count == 1 {
			if err := redisClient.Expire(ctx, key, window); err != nil {
				logger.Log.Warn("Failed to set rate limit expiration",
					logger.WithIP(clientIP),
					zap.Error(err),
				)
			}
		}

		if count > int64(maxRequests) {
			RecordRateLimitExceeded(routeLabel(c), c.Request.Method)
			logger.Log.Warn("Rate limit exceeded",
				logger.WithIP(clientIP),
				zap.Int("max_requests", maxRequests),
				zap.Int64("current_requests", count),
			)
			retryAfter := int(window.Seconds())
			apiErr := apperrors.RateLimited("").
				WithDetails(fmt.Sprintf("retry after %d seconds", retryAfter))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiErr)
			return
		}

		c.Next()
	}
}
