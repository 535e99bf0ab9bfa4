package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogSpanExporter writes finished spans to a logger at debug level.
// It lets a CLI run show its traces without a collector.
type LogSpanExporter struct {
	Logger *slog.Logger
}

var _ sdktrace.SpanExporter = LogSpanExporter{}

// ExportSpans implements sdktrace.SpanExporter.
func (e LogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.Logger == nil {
		return nil
	}
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
			slog.String("status", s.Status().Code.String()),
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		e.Logger.LogAttrs(ctx, slog.LevelDebug, "span finished", attrs...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (LogSpanExporter) Shutdown(context.Context) error { return nil }

// LogMetrics writes one info line per data point of the collected metrics.
// Counters log their value; histograms log count and sum.
func LogMetrics(ctx context.Context, logger *slog.Logger, rm metricdata.ResourceMetrics) {
	if logger == nil {
		return
	}
	point := func(name string, set attribute.Set, attrs ...slog.Attr) {
		attrs = append([]slog.Attr{slog.String("metric", name)}, attrs...)
		if set.Len() > 0 {
			attrs = append(attrs, slog.String("attributes", set.Encoded(attribute.DefaultEncoder())))
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "metric", attrs...)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					point(m.Name, dp.Attributes, slog.Int64("value", dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					point(m.Name, dp.Attributes, slog.Uint64("count", dp.Count), slog.Float64("sum", dp.Sum))
				}
			case metricdata.Histogram[int64]:
				for _, dp := range data.DataPoints {
					point(m.Name, dp.Attributes, slog.Uint64("count", dp.Count), slog.Int64("sum", dp.Sum))
				}
			}
		}
	}
}
