package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/baggage"
)

// CorrelationMiddleware propagates a correlation ID across requests.
// A correlation ID ties a business transaction together over several
// requests (verify, then post, then share); distinct from the
// per-request ID, which it falls back to when the caller sends none.
//
// Runs before the tracing middleware so the baggage is already on the
// context when the server span starts.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = c.GetString("request_id")
		}

		c.Set("correlation_id", correlationID)
		c.Header("X-Correlation-ID", correlationID)

		// Baggage carries the correlation ID into background operations
		// spawned from this request
		if correlationID != "" {
			if member, err := baggage.NewMember("correlation_id", correlationID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					c.Request = c.Request.WithContext(
						baggage.ContextWithBaggage(c.Request.Context(), bag))
				}
			}
		}

		c.Next()
	}
}

// GetCorrelationIDFromContext extracts the correlation ID from baggage.
// Background tasks use it to stamp the events they emit.
func GetCorrelationIDFromContext(ctx context.Context) string {
	for _, member := range baggage.FromContext(ctx).Members() {
		if member.Key() == "correlation_id" {
			return member.Value()
		}
	}
	return ""
}
