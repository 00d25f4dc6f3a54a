package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flotob/curia-sub002/internal/metrics"
)

// MetricsMiddleware collects HTTP metrics for Prometheus. Labels use
// the route template (/api/posts/:postId), not the concrete URL, to
// keep series cardinality bounded.
func MetricsMiddleware() gin.HandlerFunc {
	m := metrics.Get()

	return func(c *gin.Context) {
		method := c.Request.Method
		path := routeLabel(c)

		m.HTTPActiveConnections.WithLabelValues(method, path).Inc()
		defer m.HTTPActiveConnections.WithLabelValues(method, path).Dec()

		if contentLength := c.Request.ContentLength; contentLength > 0 {
			m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(contentLength))
		}

		startTime := time.Now()
		c.Next()

		duration := time.Since(startTime).Seconds()
		// Numeric status strings so Grafana queries like status=~"5.."
		// match error classes.
		statusStr := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration)

		if size := c.Writer.Size(); size > 0 {
			m.HTTPResponseSize.WithLabelValues(method, path, statusStr).Observe(float64(size))
		}
	}
}

// Cache recorders, shared by the Redis-backed response cache

func RecordCacheHit(cacheName string) {
	metrics.Get().CacheHitsTotal.WithLabelValues(cacheName).Inc()
}

func RecordCacheMiss(cacheName string) {
	metrics.Get().CacheMissesTotal.WithLabelValues(cacheName).Inc()
}

func RecordCacheOperation(operation, cacheName string, duration time.Duration) {
	m := metrics.Get()
	m.CacheOperationsTotal.WithLabelValues(operation, cacheName).Inc()
	m.CacheOperationDuration.WithLabelValues(operation, cacheName).Observe(duration.Seconds())
}

func RecordCacheEviction(cacheName string, count int64) {
	metrics.Get().CacheEvictionsTotal.WithLabelValues(cacheName).Add(float64(count))
}

// RecordRateLimitExceeded counts 429 responses per endpoint
func RecordRateLimitExceeded(endpoint, method string) {
	metrics.Get().RateLimitExceededTotal.WithLabelValues(endpoint, method).Inc()
}

// Connection pool gauges, sampled periodically by the job scheduler

func SetDatabaseConnections(database string, count int) {
	metrics.Get().DatabaseConnectionsOpen.WithLabelValues(database).Set(float64(count))
}

func SetRedisConnections(instance string, count int) {
	metrics.Get().RedisConnectionsOpen.WithLabelValues(instance).Set(float64(count))
}

// RecordGatingVerification records lock verification attempts against
// chain state
func RecordGatingVerification(category, status string, duration time.Duration) {
	m := metrics.Get()
	m.GatingVerificationsTotal.WithLabelValues(category, status).Inc()
	m.GatingVerificationDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordTelegramNotification records notification delivery outcomes
func RecordTelegramNotification(eventType, status string) {
	metrics.Get().TelegramNotificationsTotal.WithLabelValues(eventType, status).Inc()
}

// Websocket gauges, driven by the hub

func SetWebsocketConnections(count int64) {
	metrics.Get().WebsocketConnectionsActive.Set(float64(count))
}

func RecordWebsocketMessage(direction string) {
	metrics.Get().WebsocketMessagesTotal.WithLabelValues(direction).Inc()
}

// RecordError counts API error responses by taxonomy code
func RecordError(errorType, endpoint string) {
	metrics.Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
