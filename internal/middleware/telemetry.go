package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flotob/curia-sub002/internal/telemetry"
)

// TracingMiddleware opens a server span per request via the official
// otelgin instrumentation. Register SpanEnrichment right after it;
// enrichment has to sit inside the otelgin layer, otherwise the span
// is already ended by the time attributes are added.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanEnrichment annotates the request span once the handler chain has
// run: final status, session identity, correlation id and the
// pagination parameters.
func SpanEnrichment() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		// Span status follows the HTTP status; a 404 is not an error,
		// just an unset outcome
		status := c.Writer.Status()
		switch {
		case status >= 500:
			span.SetStatus(codes.Error, "Server error")
		case status == 404:
			span.SetStatus(codes.Unset, "Not found")
		case status >= 400:
			span.SetStatus(codes.Error, "Client error")
		default:
			span.SetStatus(codes.Ok, "")
		}

		// Tag the span with the session identity so traces can be
		// filtered per user or community
		telemetry.SetUserContext(span, c.GetString("user_id"), c.GetString("community_id"))

		if correlationID := c.GetString("correlation_id"); correlationID != "" {
			span.SetAttributes(attribute.String("trace.correlation_id", correlationID))
		}

		if cursor := c.Query("cursor"); cursor != "" {
			span.SetAttributes(attribute.String("query.cursor", cursor))
		}
		if limit := c.Query("limit"); limit != "" {
			span.SetAttributes(attribute.String("query.limit", limit))
		}
		if tags := c.Query("tags"); tags != "" {
			span.SetAttributes(attribute.String("query.tags", tags))
		}

		if responseSize := c.Writer.Size(); responseSize > 0 {
			span.SetAttributes(attribute.Int64("http.response.size_bytes", int64(responseSize)))
		}
		if cacheControl := c.Writer.Header().Get("Cache-Control"); cacheControl != "" {
			span.SetAttributes(attribute.String("http.cache_control", cacheControl))
		}

		for _, ginErr := range c.Errors {
			if ginErr.Err != nil {
				span.RecordError(ginErr.Err, trace.WithStackTrace(true))
			}
		}
	}
}
