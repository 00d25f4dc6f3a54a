package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TraceTelegramCall opens a client span for a Telegram Bot API
// operation ("sendMessage", "setWebhook"). Optional attrs: chat_id
// (int64), event_type (string), message_length (int).
func TraceTelegramCall(ctx context.Context, operation string, attrs map[string]interface{}) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("telegram").Start(ctx, "telegram."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("telegram.operation", operation),
		),
	)

	if chatID, ok := attrs["chat_id"].(int64); ok && chatID != 0 {
		span.SetAttributes(attribute.Int64("telegram.chat_id", chatID))
	}
	if eventType, ok := attrs["event_type"].(string); ok && eventType != "" {
		span.SetAttributes(attribute.String("telegram.event_type", eventType))
	}
	if messageLen, ok := attrs["message_length"].(int); ok && messageLen > 0 {
		span.SetAttributes(attribute.Int("telegram.message_length", messageLen))
	}

	return ctx, span
}

// TraceS3Call opens a client span for an S3 operation ("put_object",
// "delete_object"). Optional attrs: bucket, key, content_type
// (strings), size_bytes (int64).
func TraceS3Call(ctx context.Context, operation string, attrs map[string]interface{}) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("s3").Start(ctx, "s3."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("s3.operation", operation),
		),
	)

	if bucket, ok := attrs["bucket"].(string); ok && bucket != "" {
		span.SetAttributes(attribute.String("s3.bucket", bucket))
	}
	if key, ok := attrs["key"].(string); ok && key != "" {
		span.SetAttributes(attribute.String("s3.key", key))
	}
	if contentType, ok := attrs["content_type"].(string); ok && contentType != "" {
		span.SetAttributes(attribute.String("s3.content_type", contentType))
	}
	if sizeBytes, ok := attrs["size_bytes"].(int64); ok && sizeBytes > 0 {
		span.SetAttributes(attribute.Int64("s3.size_bytes", sizeBytes))
	}

	return ctx, span
}

// RecordServiceError marks a service call span failed.
func RecordServiceError(span trace.Span, service string, err error) {
	if err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err, trace.WithStackTrace(true))
	span.SetAttributes(
		attribute.String("error.type", "service_error"),
		attribute.String("error.service", service),
	)
}

// RecordServiceSuccess marks a service call span succeeded. Optional
// attrs: item_count (int), duration_ms (int64), cached (bool); nil is
// fine when there is nothing to report.
func RecordServiceSuccess(span trace.Span, attrs map[string]interface{}) {
	if itemCount, ok := attrs["item_count"].(int); ok {
		span.SetAttributes(attribute.Int("result.item_count", itemCount))
	}
	if durationMs, ok := attrs["duration_ms"].(int64); ok {
		span.SetAttributes(attribute.Int64("result.duration_ms", durationMs))
	}
	if cached, ok := attrs["cached"].(bool); ok && cached {
		span.SetAttributes(attribute.Bool("result.from_cache", true))
	}

	span.SetStatus(codes.Ok, "")
}

// SetUserContext tags a span with the session identity so traces can
// be filtered per user or community. Empty values are skipped.
func SetUserContext(span trace.Span, userID string, communityID string) {
	if userID != "" {
		span.SetAttributes(attribute.String("user.id", userID))
	}
	if communityID != "" {
		span.SetAttributes(attribute.String("community.id", communityID))
	}
}
