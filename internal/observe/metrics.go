// Package observe provides application-wide observability primitives for
// DocAssist: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all DocAssist metrics.
const meterName = "github.com/docassist/docassist"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TranscriptionDuration tracks offline (proxy) transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// SynthesisDuration tracks note synthesis, including the optional
	// narrative, measured from stop to completion.
	SynthesisDuration metric.Float64Histogram

	// LLMDuration tracks narrative completion latency.
	LLMDuration metric.Float64Histogram

	// --- Session counters ---

	// SessionsStarted counts recordings started (including restarts from
	// Completed or Error).
	SessionsStarted metric.Int64Counter

	// ActiveSessions tracks sessions currently Listening or Paused.
	ActiveSessions metric.Int64UpDownCounter

	// SegmentsFinalized counts transcript segments. Attribute: speaker.
	SegmentsFinalized metric.Int64Counter

	// EntitiesDetected counts newly detected entities. Attribute: kind.
	EntitiesDetected metric.Int64Counter

	// AlertsAdmitted counts admitted alerts. Attribute: type.
	AlertsAdmitted metric.Int64Counter

	// AlertsSuppressed counts duplicate candidates rejected inside the
	// dedup window. Attribute: type.
	AlertsSuppressed metric.Int64Counter

	// --- Recognizer ---

	// RecognizerRestarts counts automatic stream reopens.
	RecognizerRestarts metric.Int64Counter

	// RecognizerErrors counts stream failures. Attribute: kind
	// ("no_speech", "fatal", "start").
	RecognizerErrors metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider API calls. Attributes: provider,
	// kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	// name, to.
	BreakerTransitions metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	// method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Offline
// transcription of a full consultation can take tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	hist := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}
	if met.TranscriptionDuration, err = hist("docassist.transcription.duration",
		"Latency of offline diarised transcription."); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = hist("docassist.synthesis.duration",
		"Time from stop to a completed session note."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = hist("docassist.llm.duration",
		"Latency of narrative completions."); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.SessionsStarted, "docassist.sessions.started", "Recordings started."},
		{&met.SegmentsFinalized, "docassist.segments.finalized", "Transcript segments by speaker."},
		{&met.EntitiesDetected, "docassist.entities.detected", "Newly detected entities by kind."},
		{&met.AlertsAdmitted, "docassist.alerts.admitted", "Admitted alerts by type."},
		{&met.AlertsSuppressed, "docassist.alerts.suppressed", "Duplicate alert candidates by type."},
		{&met.RecognizerRestarts, "docassist.recognizer.restarts", "Automatic recognizer stream reopens."},
		{&met.RecognizerErrors, "docassist.recognizer.errors", "Recognizer stream failures by kind."},
		{&met.ProviderRequests, "docassist.provider.requests", "Provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "docassist.provider.errors", "Provider errors by provider and kind."},
		{&met.BreakerTransitions, "docassist.breaker.transitions", "Circuit breaker state changes by name and target state."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("docassist.sessions.active",
		metric.WithDescription("Sessions currently listening or paused."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("docassist.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func one(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSegment counts a finalized transcript segment.
func (m *Metrics) RecordSegment(ctx context.Context, speaker string) {
	one(ctx, m.SegmentsFinalized, Attr("speaker", speaker))
}

// RecordEntity counts a newly detected entity of the given kind.
func (m *Metrics) RecordEntity(ctx context.Context, kind string) {
	one(ctx, m.EntitiesDetected, Attr("kind", kind))
}

// RecordAlert counts an alert candidate as admitted or suppressed.
func (m *Metrics) RecordAlert(ctx context.Context, alertType string, admitted bool) {
	if admitted {
		one(ctx, m.AlertsAdmitted, Attr("type", alertType))
		return
	}
	one(ctx, m.AlertsSuppressed, Attr("type", alertType))
}

// RecordRecognizerError counts a recognizer stream failure.
func (m *Metrics) RecordRecognizerError(ctx context.Context, kind string) {
	one(ctx, m.RecognizerErrors, Attr("kind", kind))
}

// RecordProviderRequest counts a provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	one(ctx, m.ProviderRequests,
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	)
}

// RecordProviderError counts a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	one(ctx, m.ProviderErrors, Attr("provider", provider), Attr("kind", kind))
}

// RecordBreakerTransition counts a circuit breaker state change. Its
// signature matches the resilience breaker's OnStateChange hook once bound.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	one(ctx, m.BreakerTransitions, Attr("name", name), Attr("to", to))
}
