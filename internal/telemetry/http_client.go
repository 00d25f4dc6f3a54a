package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTPClientConfig configures an instrumented outbound HTTP client.
type HTTPClientConfig struct {
	ServiceName string        // names the remote side in spans ("ethereum-rpc", "telegram")
	Timeout     time.Duration // request timeout, 30s when zero
}

// NewInstrumentedHTTPClient returns an http.Client whose requests carry
// client spans and propagate trace context downstream. Spans are named
// after the remote service instead of the URL, which keeps RPC
// endpoints with API keys in the path out of span names.
func NewInstrumentedHTTPClient(cfg HTTPClientConfig) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	spanOpts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindClient)}
	if cfg.ServiceName != "" {
		spanOpts = append(spanOpts, trace.WithAttributes(attribute.String("peer.service", cfg.ServiceName)))
	}

	opts := []otelhttp.Option{otelhttp.WithSpanOptions(spanOpts...)}
	if cfg.ServiceName != "" {
		name := cfg.ServiceName
		opts = append(opts, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return name + " " + r.Method
		}))
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
	}
}

// ExternalServiceCallAttrs identifies one call to an external service.
type ExternalServiceCallAttrs struct {
	Service    string // remote service name ("ethereum-rpc", "lukso-rpc")
	Operation  string // operation on that service ("eth_call", "eth_getBalance")
	ResourceID string // optional resource the call touches
}

// TraceExternalCall opens a client span for an external service call.
// The chain client wraps each JSON-RPC call with one, so traces show
// the RPC method above the raw HTTP exchange.
func TraceExternalCall(ctx context.Context, attrs ExternalServiceCallAttrs) (context.Context, trace.Span) {
	tracer := otel.Tracer("external-api")

	ctx, span := tracer.Start(ctx, fmt.Sprintf("%s.%s", attrs.Service, attrs.Operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("external.service", attrs.Service),
			attribute.String("external.operation", attrs.Operation),
		),
	)
	if attrs.ResourceID != "" {
		span.SetAttributes(attribute.String("external.resource_id", attrs.ResourceID))
	}
	return ctx, span
}

// RecordExternalCallError marks an external call span failed. Status
// codes 408, 429 and 5xx are flagged retryable regardless of the
// caller's classification.
func RecordExternalCallError(span trace.Span, err error, statusCode int, retryable bool) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	if statusCode > 0 {
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
		if statusCode >= 500 || statusCode == 408 || statusCode == 429 {
			retryable = true
		}
	}
	if retryable {
		span.SetAttributes(attribute.Bool("external.error.retryable", true))
	}
}

// RecordExternalCallSuccess marks an external call span succeeded.
func RecordExternalCallSuccess(span trace.Span, statusCode int, responseSizeBytes int64) {
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
	if responseSizeBytes > 0 {
		span.SetAttributes(attribute.Int64("http.response.size_bytes", responseSizeBytes))
	}
	span.SetStatus(codes.Ok, "")
}
