package observe

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig selects where telemetry goes.
type ProviderConfig struct {
	// ServiceName defaults to "docassist".
	ServiceName    string
	ServiceVersion string

	// SpanExporter receives finished spans in batches. Nil keeps spans
	// in-process, which is enough for correlation IDs and log enrichment.
	SpanExporter sdktrace.SpanExporter

	// MetricReader defaults to a Prometheus exporter registered on the
	// default registry, which the /metrics route serves.
	MetricReader sdkmetric.Reader
}

// InitProvider installs global meter and tracer providers plus the W3C
// trace-context propagator. The returned func flushes and stops both.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	reader := cfg.MetricReader
	if reader == nil {
		exp, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
		}
		reader = exp
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.SpanExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.SpanExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) error {
		// Spans first so a final batch still sees live metrics.
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func newResource(ctx context.Context, cfg ProviderConfig) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cmp.Or(cfg.ServiceName, "docassist")),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}
