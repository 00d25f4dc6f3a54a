package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessEvents traces domain operations a level above HTTP and SQL:
// "post created", "lock verified", "notification fanned out". Result
// counts and failure outcomes go on the span afterwards through
// RecordServiceSuccess and RecordServiceError.
type BusinessEvents struct {
	tracer trace.Tracer
}

// NewBusinessEvents creates a new business events tracer
func NewBusinessEvents() *BusinessEvents {
	return &BusinessEvents{
		tracer: otel.Tracer("business-events"),
	}
}

// TraceCreatePost creates a span for post creation
func (be *BusinessEvents) TraceCreatePost(ctx context.Context, boardID int64, gated bool) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "forum.create_post",
		trace.WithAttributes(
			attribute.Int64("board.id", boardID),
			attribute.Bool("post.gated", gated),
		),
	)
	return ctx, span
}

// TraceCreateComment creates a span for comment creation
func (be *BusinessEvents) TraceCreateComment(ctx context.Context, postID int64, isReply bool) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "forum.create_comment",
		trace.WithAttributes(
			attribute.Int64("post.id", postID),
			attribute.Bool("comment.is_reply", isReply),
		),
	)
	return ctx, span
}

// TraceReaction creates a span for reaction toggles
func (be *BusinessEvents) TraceReaction(ctx context.Context, emoji string, targetType string, targetID int64) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "forum.reaction",
		trace.WithAttributes(
			attribute.String("reaction.emoji", emoji),
			attribute.String("reaction.target_type", targetType),
			attribute.Int64("reaction.target_id", targetID),
		),
	)
	return ctx, span
}

// ListEventAttrs attributes for paginated list operations
type ListEventAttrs struct {
	Limit     int64
	HasCursor bool
	Filtered  bool
}

// TraceListPosts creates a span for the cursor-paginated post list
func (be *BusinessEvents) TraceListPosts(ctx context.Context, boardID int64, attrs ListEventAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "forum.list_posts",
		trace.WithAttributes(
			attribute.Int64("board.id", boardID),
			attribute.Int64("list.limit", attrs.Limit),
			attribute.Bool("list.has_cursor", attrs.HasCursor),
		),
	)
	if attrs.Filtered {
		span.SetAttributes(attribute.Bool("list.filtered", true))
	}
	return ctx, span
}

// VerificationEventAttrs attributes for gating verification attempts
type VerificationEventAttrs struct {
	LockID       int64
	Category     string // "universal_profile", "ethereum_profile"
	Requirements int64
	Verified     bool
	FailedChecks int64
}

// TraceVerification creates a span for a gating verification attempt
func (be *BusinessEvents) TraceVerification(ctx context.Context, attrs VerificationEventAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "gating.verify",
		trace.WithAttributes(
			attribute.Int64("lock.id", attrs.LockID),
			attribute.String("gating.category", attrs.Category),
			attribute.Int64("gating.requirements", attrs.Requirements),
		),
	)
	return ctx, span
}

// RecordVerificationResult records the outcome on a verification span.
// A failed verification is a normal outcome, so the span status stays
// unset unless the requirements passed.
func RecordVerificationResult(span trace.Span, verified bool, failedChecks int) {
	span.SetAttributes(
		attribute.Bool("gating.verified", verified),
		attribute.Int("gating.failed_checks", failedChecks),
	)
	if verified {
		span.SetStatus(codes.Ok, "")
	}
}

// SearchEventAttrs attributes for search operations
type SearchEventAttrs struct {
	QueryLength int64
	Scope       string // "posts", "tags"
}

// TraceSearch creates a span for search operations
func (be *BusinessEvents) TraceSearch(ctx context.Context, attrs SearchEventAttrs) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "forum.search",
		trace.WithAttributes(
			attribute.Int64("search.query_length", attrs.QueryLength),
			attribute.String("search.scope", attrs.Scope),
		),
	)
	return ctx, span
}

// TraceTelegramNotify creates a span for Telegram notification fan-out
func (be *BusinessEvents) TraceTelegramNotify(ctx context.Context, eventType string, groupCount int64) (context.Context, trace.Span) {
	ctx, span := be.tracer.Start(ctx, "telegram.notify",
		trace.WithAttributes(
			attribute.String("telegram.event_type", eventType),
			attribute.Int64("telegram.group_count", groupCount),
		),
	)
	return ctx, span
}

// RecordExternalAPIError records error details for external API spans
func RecordExternalAPIError(span trace.Span, err error, retryable bool) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	if retryable {
		span.SetAttributes(attribute.Bool("external.error.retryable", true))
	}
}

// Singleton instance for convenience
var businessEvents = NewBusinessEvents()

// GetBusinessEvents returns the shared business events tracer
func GetBusinessEvents() *BusinessEvents {
	return businessEvents
}
