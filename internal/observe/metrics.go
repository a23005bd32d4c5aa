// Package observe provides the observability primitives for Jarvis:
// OpenTelemetry metrics, tracing, trace-aware logging and HTTP middleware
// for the status server.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed to
// Prometheus via the exporter bridge set up by [InitProvider]. The
// package-level [DefaultMetrics] instance uses the global meter provider;
// tests should call [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Jarvis metrics.
const meterName = "github.com/MrWong99/jarvis"

// Speech request outcomes recorded on [Metrics.SpeechRequests].
const (
	SpeechSpoken = "spoken"
	SpeechFailed = "failed"
	SpeechPurged = "purged"
)

// Metrics holds the metric instruments for the application. The underlying
// OTel types are safe for concurrent use.
type Metrics struct {
	// Utterances counts captured user utterances by input source.
	Utterances metric.Int64Counter

	// IntentClassified counts router decisions. Attributes: kind, rule.
	IntentClassified metric.Int64Counter

	// ActionDuration tracks how long executing an action took.
	// Attributes: kind, status.
	ActionDuration metric.Float64Histogram

	// SpeechRequests counts utterances handled by the speech worker.
	// Attributes: engine, status (one of the Speech* constants).
	SpeechRequests metric.Int64Counter

	// SpeechPurged counts Stop calls that cleared the queue.
	SpeechPurged metric.Int64Counter

	// SpeechDuration tracks time from SpeakText until the engine went idle.
	SpeechDuration metric.Float64Histogram

	// SpeechQueueDepth tracks the number of pending speech requests.
	SpeechQueueDepth metric.Int64UpDownCounter

	// AppsIndexed reports the size of the last application index snapshot.
	AppsIndexed metric.Int64Gauge

	// HTTPRequestDuration tracks status server latency. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries in seconds, sized for
// actions and spoken sentences.
var latencyBuckets = []float64{
	0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Utterances, err = m.Int64Counter("jarvis.input.utterances",
		metric.WithDescription("Captured user utterances by input source."),
	); err != nil {
		return nil, err
	}
	if met.IntentClassified, err = m.Int64Counter("jarvis.intent.classified",
		metric.WithDescription("Router decisions by action kind and matching rule."),
	); err != nil {
		return nil, err
	}
	if met.ActionDuration, err = m.Float64Histogram("jarvis.action.duration",
		metric.WithDescription("Latency of executing an action."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechRequests, err = m.Int64Counter("jarvis.speech.requests",
		metric.WithDescription("Speech requests by engine and outcome."),
	); err != nil {
		return nil, err
	}
	if met.SpeechPurged, err = m.Int64Counter("jarvis.speech.purged",
		metric.WithDescription("Number of times pending speech was discarded."),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("jarvis.speech.duration",
		metric.WithDescription("Time spent speaking one utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechQueueDepth, err = m.Int64UpDownCounter("jarvis.speech.queue_depth",
		metric.WithDescription("Speech requests waiting for the worker."),
	); err != nil {
		return nil, err
	}
	if met.AppsIndexed, err = m.Int64Gauge("jarvis.apps.indexed",
		metric.WithDescription("Applications in the current index snapshot."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("jarvis.http.request.duration",
		metric.WithDescription("Status server request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics], created on first call
// from [otel.GetMeterProvider]. It panics if instrument creation fails.
//
// Call it after [InitProvider]; instruments created against the global
// delegate before that are forwarded once a provider is installed.
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

// RecordUtterance counts one non-empty utterance captured from source.
func (m *Metrics) RecordUtterance(ctx context.Context, source string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordIntent counts one router decision.
func (m *Metrics) RecordIntent(ctx context.Context, kind, rule string) {
	m.IntentClassified.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("rule", rule),
	))
}

// RecordAction records the duration of an executed action.
func (m *Metrics) RecordAction(ctx context.Context, kind string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ActionDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordSpeech counts one speech request outcome for engine.
func (m *Metrics) RecordSpeech(ctx context.Context, engine, status string) {
	m.SpeechRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", engine),
		attribute.String("status", status),
	))
}
