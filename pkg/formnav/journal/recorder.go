package journal

import (
	"context"
	"errors"
	"log/slog"

	"github.com/randalmurphal/formnav/pkg/formnav/event"
	"github.com/randalmurphal/formnav/pkg/formnav/observability"
)

// Recorder is a bus subscriber that journals every event it receives.
// Events that were already journaled are skipped.
type Recorder struct {
	store   Store
	types   []string
	logger  *slog.Logger
	metrics observability.MetricsRecorder
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithTypes limits the recorder to the given event types.
func WithTypes(types ...string) RecorderOption {
	return func(r *Recorder) {
		r.types = types
	}
}

// WithLogger sets the logger used for journal failures.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics recorder for entry sizes.
func WithMetrics(m observability.MetricsRecorder) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		metrics: observability.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach subscribes the recorder to bus.
func (r *Recorder) Attach(bus event.Bus) event.Subscription {
	return bus.Subscribe(r.types, r)
}

// Handle implements event.Handler.
func (r *Recorder) Handle(ctx context.Context, evt event.Event) ([]event.Event, error) {
	_, err := r.Record(ctx, evt)
	return nil, err
}

// Handles implements event.Handler.
func (r *Recorder) Handles() []string {
	return r.types
}

// Record journals evt and returns its sequence number. A duplicate returns
// sequence 0 and no error.
func (r *Recorder) Record(ctx context.Context, evt event.Event) (int64, error) {
	entry, err := NewEntry(evt)
	if err != nil {
		observability.LogJournalError(r.logger, evt.FormID(), "encode", err)
		return 0, err
	}

	seq, err := r.store.Append(ctx, entry)
	if errors.Is(err, ErrDuplicate) {
		return 0, nil
	}
	if err != nil {
		observability.LogJournalError(r.logger, evt.FormID(), "append", err)
		return 0, err
	}

	r.metrics.RecordJournalAppend(ctx, int64(entry.Size()))
	observability.LogJournalAppend(r.logger, evt.FormID(), seq, entry.Size())
	return seq, nil
}
