package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordEvent(context.Context, string)                           {}
func (NoopMetrics) RecordTransition(context.Context, string, time.Duration, bool) {}
func (NoopMetrics) RecordShapeRejection(context.Context, string)                  {}
func (NoopMetrics) RecordJournalAppend(context.Context, int64)                    {}
func (NoopMetrics) RecordListener(context.Context, string, time.Duration, string) {}

// NoopSpanManager opens no spans. Contexts pass through unchanged.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

func (NoopSpanManager) StartTransitionSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartEmitSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartCheckSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error)                          {}
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}
