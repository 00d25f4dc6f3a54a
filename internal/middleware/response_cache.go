package middleware

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/gin-gonic/gin"
)

// ResponseCacheMiddleware serves successful GET responses out of Redis
// for ttl. Keys include the query string and the session user, so gated
// listings never leak across viewers. Responses carry an X-Cache header
// with HIT or MISS. Without Redis the middleware is a passthrough.
//
// Mutation handlers drop stale entries through CacheManager; anything
// they miss expires with the TTL.
func ResponseCacheMiddleware(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		if cache.GetRedisClient() == nil {
			c.Next()
			return
		}

		cm := NewCacheManager(cache.GetRedisClient())
		key := responseCacheKey(c)
		ctx := c.Request.Context()

		start := time.Now()
		cached, found, _ := cm.GetCached(ctx, key)
		RecordCacheOperation("GET", "response_cache", time.Since(start))

		if found {
			RecordCacheHit("response_cache")
			c.Header("X-Cache", "HIT")
			c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", int(ttl.Seconds())))
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}
		RecordCacheMiss("response_cache")

		// Headers must go out before the handler writes the body.
		c.Header("X-Cache", "MISS")
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", int(ttl.Seconds())))

		rec := &responseRecorder{ResponseWriter: c.Writer, status: http.StatusOK, body: &bytes.Buffer{}}
		c.Writer = rec

		c.Next()

		if rec.status >= 200 && rec.status < 300 && rec.body.Len() > 0 {
			start = time.Now()
			if err := cm.SetCached(ctx, key, rec.body.String(), ttl); err == nil {
				RecordCacheOperation("SET", "response_cache", time.Since(start))
			}
		}
	}
}

// responseCacheKey builds response:{path}:{query}:{user} so the same
// URL caches separately per viewer.
func responseCacheKey(c *gin.Context) string {
	parts := []string{c.Request.URL.Path}
	if q := c.Request.URL.RawQuery; q != "" {
		parts = append(parts, q)
	}
	if userID, ok := c.Get("user_id"); ok {
		if s, ok := userID.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return CacheKey("response", parts...)
}

// responseRecorder tees handler output so a successful body can be
// written back to the cache after the request completes.
type responseRecorder struct {
	gin.ResponseWriter
	status int
	body   *bytes.Buffer
}

func (w *responseRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func (w *responseRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
