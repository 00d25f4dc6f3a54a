package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flotob/curia-sub002/internal/cache"
	apperrors "github.com/flotob/curia-sub002/internal/errors"
)

// RateLimitConfig sizes one limiter profile.
type RateLimitConfig struct {
	// Limit is the number of requests allowed per Window.
	Limit int

	// Window is the averaging period.
	Window time.Duration

	// KeyFunc picks the counter key for a request. Nil means one
	// bucket per client IP.
	KeyFunc func(c *gin.Context) string
}

// DefaultRateLimitConfig covers the general API surface.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 100, Window: time.Minute}
}

// AuthRateLimitConfig keeps session handshake brute-forcing slow.
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 10, Window: time.Minute}
}

// UploadRateLimitConfig bounds background image uploads.
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 20, Window: time.Minute}
}

// SearchRateLimitConfig bounds full-text search, the most expensive
// read on the box.
func SearchRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Limit: 100, Window: time.Minute}
}

// TokenBucket admits requests at a steady refill rate with burst
// capacity up to maxTokens.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// NewTokenBucket returns a full bucket refilling at refillRate tokens
// per second.
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow takes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.tokens = min(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// GetRetryAfter returns whole seconds until the next token, zero when
// one is already available.
func (tb *TokenBucket) GetRetryAfter() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.tokens < 1 {
		return int((1-tb.tokens)/tb.refillRate) + 1
	}
	return 0
}

func (tb *TokenBucket) idleFor(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastRefill)
}

// RateLimiter keeps one token bucket per key in process memory.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
	config  RateLimitConfig
}

// NewRateLimiter returns middleware enforcing config against an
// in-process limiter. Over limit requests get 429 with Retry-After.
func NewRateLimiter(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}

	rl := &RateLimiter{
		buckets: make(map[string]*TokenBucket),
		config:  config,
	}

	// Limiters live for the process, so the sweeper never needs
	// stopping.
	go rl.sweepIdle(10 * time.Minute)

	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		if !rl.Allow(key) {
			RecordRateLimitExceeded(routeLabel(c), c.Request.Method)
			retryAfter := rl.GetRetryAfter(key)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			apiErr := apperrors.RateLimited("").
				WithDetails(fmt.Sprintf("retry after %d seconds", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiErr)
			return
		}
		c.Next()
	}
}

// routeLabel returns the route template for metric labels, keeping
// concrete ids out of the series.
func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}

// Allow reports whether the keyed caller may proceed, creating its
// bucket on first sight.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	bucket, ok := rl.buckets[key]
	if !ok {
		refillRate := float64(rl.config.Limit) / rl.config.Window.Seconds()
		bucket = NewTokenBucket(float64(rl.config.Limit), refillRate)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.Allow()
}

// GetRetryAfter returns the wait in seconds for a keyed caller.
func (rl *RateLimiter) GetRetryAfter(key string) int {
	rl.mu.Lock()
	bucket, ok := rl.buckets[key]
	rl.mu.Unlock()

	if !ok {
		return 1
	}
	return bucket.GetRetryAfter()
}

// sweepIdle drops buckets that have gone quiet so one-off clients do
// not accumulate forever.
func (rl *RateLimiter) sweepIdle(maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()

	for now := range ticker.C {
		rl.mu.Lock()
		for key, bucket := range rl.buckets {
			if bucket.idleFor(now) > maxIdle {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

// smartRateLimit counts in Redis when it is configured, so limits hold
// across instances, and falls back to the in-process limiter when it
// is not.
func smartRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	distributed := RedisRateLimitMiddleware(cfg.Limit, cfg.Window)
	local := NewRateLimiter(cfg)

	return func(c *gin.Context) {
		if cache.GetRedisClient() != nil {
			distributed(c)
			return
		}
		local(c)
	}
}

// RateLimitSmartDefault limits the authenticated API surface.
func RateLimitSmartDefault() gin.HandlerFunc {
	return smartRateLimit(DefaultRateLimitConfig())
}

// RateLimitSmartAuth limits the public session handshake.
func RateLimitSmartAuth() gin.HandlerFunc {
	return smartRateLimit(AuthRateLimitConfig())
}

// RateLimitSmartUpload limits community background uploads.
func RateLimitSmartUpload() gin.HandlerFunc {
	return smartRateLimit(UploadRateLimitConfig())
}

// RateLimitSmartSearch limits post search.
func RateLimitSmartSearch() gin.HandlerFunc {
	return smartRateLimit(SearchRateLimitConfig())
}
