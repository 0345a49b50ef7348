package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig selects the OTLP/gRPC collector and how this chat client
// identifies itself in traces.
type TracingConfig struct {
	Endpoint    string // empty disables tracing
	Insecure    bool
	ServiceName string
	Version     string
	// InstanceID is shared by every connect session of one client; sessions
	// are told apart by the correlation_id span attribute.
	InstanceID  string
	SampleRatio float64
}

// Tracing owns the tracer provider installed by InitTracing. A nil *Tracing
// is valid and does nothing.
type Tracing struct {
	provider *sdktrace.TracerProvider
	once     sync.Once
	err      error
}

var tracingEnabled atomic.Bool

// InitTracing installs a global tracer provider exporting to tc.Endpoint.
// With no endpoint it returns a nil *Tracing and spans stay no-ops.
func InitTracing(ctx context.Context, tc TracingConfig) (*Tracing, error) {
	if tc.Endpoint == "" {
		slog.Debug("tracing disabled: no OTLP endpoint configured", slog.String("component", "telemetry"))
		return nil, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tc.Endpoint)}
	if tc.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(tc.ServiceName),
		semconv.ServiceVersion(tc.Version),
	}
	if tc.InstanceID != "" {
		attrs = append(attrs, attribute.String("service.instance.id", tc.InstanceID))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Batch span processor; poll cycles produce a steady trickle of spans
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(tc.SampleRatio)),
	)
	otel.SetTracerProvider(provider)
	tracingEnabled.Store(true)
	slog.Info("tracing initialized",
		slog.String("component", "telemetry"),
		slog.String("service", tc.ServiceName),
		slog.String("instance", tc.InstanceID),
		slog.String("endpoint", tc.Endpoint),
		slog.Float64("sample_ratio", tc.SampleRatio))

	return &Tracing{provider: provider}, nil
}

func samplerFor(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Shutdown flushes pending spans and stops the exporter. Later calls return
// the first result.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		tracingEnabled.Store(false)
		if err := t.provider.Shutdown(ctx); err != nil {
			t.err = fmt.Errorf("shutdown tracer provider: %w", err)
		}
	})
	return t.err
}

// IsTracingEnabled returns whether an exporting tracer provider is installed.
func IsTracingEnabled() bool {
	return tracingEnabled.Load()
}

// StartSpan starts a span tagged with the context's correlation id (the
// request id on the HTTP side, the connect session id inside the poller).
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if corr := GetCorrelation(ctx); corr != "" {
		attrs = append(attrs, attribute.String("correlation_id", corr))
	}
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
