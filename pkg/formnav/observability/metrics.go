package observability

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records navigation metrics. NewMetricsRecorder reports to
// OpenTelemetry; NoopMetrics discards everything.
type MetricsRecorder interface {
	// RecordEvent counts one dispatched event of kind, e.g. "field.changed".
	RecordEvent(ctx context.Context, kind string)

	// RecordTransition counts one transition at level. Latency is recorded
	// only for transitions that were not vetoed.
	RecordTransition(ctx context.Context, level string, duration time.Duration, vetoed bool)

	RecordShapeRejection(ctx context.Context, kind string)
	RecordJournalAppend(ctx context.Context, sizeBytes int64)

	// RecordListener records one listener call with an Outcome constant.
	RecordListener(ctx context.Context, kind string, duration time.Duration, outcome string)
}

// Listener call outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeVetoed = "vetoed"
	OutcomeFailed = "failed"
)

type otelMetrics struct {
	events            metric.Int64Counter
	transitions       metric.Int64Counter
	transitionLatency metric.Float64Histogram
	vetoes            metric.Int64Counter
	rejections        metric.Int64Counter
	journalSize       metric.Int64Histogram
	listenerCalls     metric.Int64Counter
	listenerLatency   metric.Float64Histogram
}

// instruments creates instruments on one meter and keeps every error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return c
}

func (b *instruments) millis(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	b.err = errors.Join(b.err, err)
	return h
}

func (b *instruments) bytes(name, desc string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit("By"))
	b.err = errors.Join(b.err, err)
	return h
}

func newOtelMetrics() (*otelMetrics, error) {
	b := &instruments{meter: otel.Meter("formnav")}
	m := &otelMetrics{
		events:            b.counter("formnav.events.emitted", "Navigation events dispatched"),
		transitions:       b.counter("formnav.transitions", "Transitions attempted"),
		transitionLatency: b.millis("formnav.transition.latency_ms", "Time from changing dispatch to changed dispatch"),
		vetoes:            b.counter("formnav.transition.vetoes", "Transitions vetoed by a listener"),
		rejections:        b.counter("formnav.payload.rejections", "Payloads that failed shape validation"),
		journalSize:       b.bytes("formnav.journal.entry_size_bytes", "Journal entry size"),
		listenerCalls:     b.counter("formnav.listener.calls", "Listener calls by outcome"),
		listenerLatency:   b.millis("formnav.listener.duration_ms", "Listener call duration"),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// The instruments are created once per process against the global meter
// provider, which delegates to a provider installed later.
var defaultMetrics = sync.OnceValues(newOtelMetrics)

// NewMetricsRecorder returns a recorder for the global OpenTelemetry meter
// provider, or NoopMetrics if the instruments cannot be created.
func NewMetricsRecorder() MetricsRecorder {
	m, err := defaultMetrics()
	if err != nil {
		slog.Warn("metrics disabled", slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordEvent(ctx context.Context, kind string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *otelMetrics) RecordTransition(ctx context.Context, level string, duration time.Duration, vetoed bool) {
	byLevel := metric.WithAttributes(attribute.String("level", level))
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level), attribute.Bool("vetoed", vetoed)))
	if vetoed {
		m.vetoes.Add(ctx, 1, byLevel)
		return
	}
	m.transitionLatency.Record(ctx, millis(duration), byLevel)
}

func (m *otelMetrics) RecordShapeRejection(ctx context.Context, kind string) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *otelMetrics) RecordJournalAppend(ctx context.Context, sizeBytes int64) {
	m.journalSize.Record(ctx, sizeBytes)
}

func (m *otelMetrics) RecordListener(ctx context.Context, kind string, duration time.Duration, outcome string) {
	m.listenerCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome)))
	m.listenerLatency.Record(ctx, millis(duration), metric.WithAttributes(attribute.String("kind", kind)))
}
