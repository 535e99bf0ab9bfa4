package main

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/randalmurphal/formnav/pkg/formnav/config"
	"github.com/randalmurphal/formnav/pkg/formnav/observability"
)

// telemetry holds the in-process OTel providers of one CLI run. Spans and
// collected metrics are written to the logger; there is no collector.
type telemetry struct {
	logger *slog.Logger
	reader *sdkmetric.ManualReader
	meters *sdkmetric.MeterProvider
	traces *sdktrace.TracerProvider
}

// startTelemetry installs global providers for the enabled signals.
// It must run before any recorder or span manager is created.
func startTelemetry(s config.TelemetrySettings, logger *slog.Logger) *telemetry {
	t := &telemetry{logger: logger}
	if s.Metrics {
		t.reader = sdkmetric.NewManualReader()
		t.meters = sdkmetric.NewMeterProvider(sdkmetric.WithReader(t.reader))
		otel.SetMeterProvider(t.meters)
	}
	if s.Tracing {
		t.traces = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(observability.LogSpanExporter{Logger: logger}),
		)
		otel.SetTracerProvider(t.traces)
	}
	return t
}

func (t *telemetry) metrics() observability.MetricsRecorder {
	if t.meters == nil {
		return observability.NoopMetrics{}
	}
	return observability.NewMetricsRecorder()
}

func (t *telemetry) spans() observability.SpanManager {
	if t.traces == nil {
		return observability.NoopSpanManager{}
	}
	return observability.NewSpanManager()
}

// flush logs collected metrics and shuts the providers down.
func (t *telemetry) flush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if t.reader != nil {
		var rm metricdata.ResourceMetrics
		if err := t.reader.Collect(ctx, &rm); err != nil {
			return err
		}
		observability.LogMetrics(ctx, t.logger, rm)
		if err := t.meters.Shutdown(ctx); err != nil {
			return err
		}
	}
	if t.traces != nil {
		return t.traces.Shutdown(ctx)
	}
	return nil
}
