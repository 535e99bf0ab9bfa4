package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest installs a meter provider backed by a manual reader.
func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "expected real metrics recorder")
}

func TestRecordEvent(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordEvent(ctx, "card.changing")
	m.RecordEvent(ctx, "card.changing")
	m.RecordEvent(ctx, "field.complete")

	rm := collectMetrics(t, reader)
	events := findMetric(rm, "formnav.events.emitted")
	assert.Equal(t, int64(2), sumFor(t, events, "kind", "card.changing"))
	assert.Equal(t, int64(1), sumFor(t, events, "kind", "field.complete"))
}

func TestRecordTransition(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTransition(ctx, "group", 3*time.Millisecond, false)
	m.RecordTransition(ctx, "group", time.Millisecond, true)
	m.RecordTransition(ctx, "field", time.Millisecond, true)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumFor(t, findMetric(rm, "formnav.transitions"), "level", "group"))
	vetoes := findMetric(rm, "formnav.transition.vetoes")
	assert.Equal(t, int64(1), sumFor(t, vetoes, "level", "group"))
	assert.Equal(t, int64(1), sumFor(t, vetoes, "level", "field"))

	latency := findMetric(rm, "formnav.transition.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1, "vetoed transitions record no latency")
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 3.0, hist.DataPoints[0].Sum, 0.001)
}

func TestRecordShapeRejectionAndJournal(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordShapeRejection(ctx, "field.changed")
	m.RecordJournalAppend(ctx, 256)
	m.RecordJournalAppend(ctx, 512)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumFor(t, findMetric(rm, "formnav.payload.rejections"), "kind", "field.changed"))

	size := findMetric(rm, "formnav.journal.entry_size_bytes")
	require.NotNil(t, size)
	hist, ok := size.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, int64(768), hist.DataPoints[0].Sum)
}

func TestRecordListener(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordListener(ctx, "card.changing", time.Millisecond, OutcomeOK)
	m.RecordListener(ctx, "card.changing", time.Millisecond, OutcomeVetoed)
	m.RecordListener(ctx, "card.changed", 2*time.Millisecond, OutcomeFailed)

	rm := collectMetrics(t, reader)
	calls := findMetric(rm, "formnav.listener.calls")
	assert.Equal(t, int64(1), sumFor(t, calls, "outcome", OutcomeOK))
	assert.Equal(t, int64(1), sumFor(t, calls, "outcome", OutcomeVetoed))
	assert.Equal(t, int64(1), sumFor(t, calls, "outcome", OutcomeFailed))
	assert.Equal(t, int64(2), sumFor(t, calls, "kind", "card.changing"))

	latency := findMetric(rm, "formnav.listener.duration_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordEvent(ctx, "card.changed")
		m.RecordTransition(ctx, "card", time.Second, true)
		m.RecordShapeRejection(ctx, "card.changed")
		m.RecordJournalAppend(ctx, 10)
		m.RecordListener(ctx, "card.changed", time.Second, OutcomeOK)
	})
}
