package telemetry

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config selects where spans go and how many of them are kept.
type Config struct {
	// ServiceName labels every span this process emits.
	ServiceName string

	// Environment becomes the deployment.environment resource
	// attribute ("development" or "production").
	Environment string

	// OTLPEndpoint is the host:port of an OTLP HTTP collector.
	OTLPEndpoint string

	// Enabled turns tracing on. When false InitTracer returns nil
	// and every span downstream is a no-op against the default
	// global provider.
	Enabled bool

	// SamplingRate is the head-sampling ratio for root spans.
	// Child spans follow their parent's decision.
	SamplingRate float64
}

// ConfigFromEnv builds a Config from OTEL_* environment variables.
// Tracing stays off unless OTEL_ENABLED=true.
func ConfigFromEnv(serviceName, environment string) Config {
	cfg := Config{
		ServiceName:  serviceName,
		Environment:  environment,
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Enabled:      os.Getenv("OTEL_ENABLED") == "true",
		SamplingRate: 1.0,
	}
	if raw := os.Getenv("OTEL_SAMPLING_RATE"); raw != "" {
		if rate, err := strconv.ParseFloat(raw, 64); err == nil && rate >= 0 && rate <= 1 {
			cfg.SamplingRate = rate
		}
	}
	return cfg
}

// InitTracer installs the global tracer provider, exporting over OTLP
// HTTP. Returns nil without error when tracing is disabled; the caller
// owns Shutdown on the returned provider otherwise.
func InitTracer(cfg Config) (*sdktrace.TracerProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4318"
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	// Collector runs beside the server, so plain HTTP is fine here.
	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(
			sdktrace.TraceIDRatioBased(cfg.SamplingRate),
		)),
	)
	otel.SetTracerProvider(tp)

	// W3C trace context plus baggage, so upstream proxies and the
	// host platform can hand us their trace ids.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}
