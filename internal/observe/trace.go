package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Scope is the instrumentation scope of every span DocAssist opens.
const Scope = "github.com/docassist/docassist"

// CorrelationHeader echoes the request's trace ID back to API clients.
const CorrelationHeader = "X-Correlation-ID"

// StartSpan opens an internal span named op on the global tracer provider.
// Pair it with [EndSpan].
func StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(Scope).Start(ctx, op, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the hex trace ID carried by ctx, or "" outside a trace.
func CorrelationID(ctx context.Context) string {
	if id := trace.SpanContextFromContext(ctx).TraceID(); id.IsValid() {
		return id.String()
	}
	return ""
}

// Logger returns the default logger with args attached, plus trace_id and
// span_id when ctx carries a span.
func Logger(ctx context.Context, args ...any) *slog.Logger {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	if len(args) == 0 {
		return slog.Default()
	}
	return slog.Default().With(args...)
}
