package event

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	fnerrors "github.com/randalmurphal/formnav/pkg/formnav/errors"
)

var (
	ErrDLQFull   = errors.New("dead letter queue full")
	ErrNotInDLQ  = errors.New("event not in dead letter queue")
	ErrNotParked = errors.New("event not parked")
)

const (
	reasonRetriesExhausted = "redelivery attempts exhausted"
	reasonVetoed           = "vetoed on redelivery"
)

// RedeliveryQueue is a DeadLetterQueue that can reschedule a failed
// redelivery. Redeliver needs one.
type RedeliveryQueue interface {
	DeadLetterQueue
	RecordRetryFailure(ctx context.Context, failed *FailedEvent, err error) error
}

type DLQConfig struct {
	// MaxSize caps queued events; Enqueue fails beyond it. Default: 1000
	MaxSize int

	// MaxRetries is the number of failed redeliveries after which an event
	// is parked. Default: 5
	MaxRetries int

	// RetryDelay is the wait before the first redelivery. It doubles after
	// each failed redelivery up to MaxRetryDelay.
	// Defaults: 1s and 1h
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration

	OnPark func(*ParkedEvent)
}

var DefaultDLQConfig = DLQConfig{
	MaxSize:       1000,
	MaxRetries:    5,
	RetryDelay:    time.Second,
	MaxRetryDelay: time.Hour,
}

// InMemoryDLQ keeps dead letters in process memory, keyed by
// FailedEvent.Key. A dead letter is in exactly one of three places: queued,
// out for redelivery, or parked.
type InMemoryDLQ struct {
	cfg     DLQConfig
	backoff fnerrors.RetryPolicy

	mu       sync.RWMutex
	queued   map[string]*FailedEvent
	inflight map[string]*FailedEvent
	parked   map[string]*ParkedEvent
	stats    DLQStats
}

var _ RedeliveryQueue = (*InMemoryDLQ)(nil)

func NewInMemoryDLQ(cfg DLQConfig) *InMemoryDLQ {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultDLQConfig.MaxSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultDLQConfig.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultDLQConfig.RetryDelay
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = max(DefaultDLQConfig.MaxRetryDelay, cfg.RetryDelay)
	}
	return &InMemoryDLQ{
		cfg:      cfg,
		backoff:  fnerrors.RetryPolicy{Backoff: cfg.RetryDelay, MaxBackoff: cfg.MaxRetryDelay},
		queued:   make(map[string]*FailedEvent),
		inflight: make(map[string]*FailedEvent),
		parked:   make(map[string]*ParkedEvent),
	}
}

// Enqueue schedules failed for redelivery after RetryDelay unless it
// already carries a schedule. An event past MaxRetries is parked instead.
func (d *InMemoryDLQ) Enqueue(_ context.Context, failed *FailedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queued) >= d.cfg.MaxSize {
		return &EventError{Message: "enqueue " + failed.Key(), Err: ErrDLQFull}
	}
	d.stats.Enqueued++
	if failed.AttemptCount >= d.cfg.MaxRetries {
		d.park(failed, reasonRetriesExhausted)
		return nil
	}
	if failed.NextRetryAt.IsZero() {
		failed.NextRetryAt = time.Now().Add(d.cfg.RetryDelay)
	}
	d.queued[failed.Key()] = failed
	return nil
}

// Dequeue hands out up to limit due events, oldest failure first. They stay
// out for redelivery until acknowledged, rescheduled or parked.
func (d *InMemoryDLQ) Dequeue(_ context.Context, limit int) ([]*FailedEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	var due []*FailedEvent
	for _, f := range d.queued {
		if !f.NextRetryAt.After(now) {
			due = append(due, f)
		}
	}
	slices.SortFunc(due, func(a, b *FailedEvent) int { return a.FirstFailedAt.Compare(b.FirstFailedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, f := range due {
		delete(d.queued, f.Key())
		d.inflight[f.Key()] = f
	}
	return due, nil
}

// Acknowledge drops a redelivered dead letter. Unknown keys are ignored.
func (d *InMemoryDLQ) Acknowledge(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.take(key); ok {
		d.stats.Redelivered++
	}
	return nil
}

func (d *InMemoryDLQ) MoveToParked(_ context.Context, key string, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, ok := d.take(key)
	if !ok {
		return &EventError{Message: "park " + key, Err: ErrNotInDLQ}
	}
	d.park(f, reason)
	return nil
}

// RecordRetryFailure counts a failed redelivery and queues the event again
// with a doubled delay, or parks it once MaxRetries is reached.
func (d *InMemoryDLQ) RecordRetryFailure(_ context.Context, failed *FailedEvent, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.take(failed.Key())
	failed.AttemptCount++
	failed.LastFailedAt = time.Now()
	if err != nil {
		failed.ErrorMessage = err.Error()
	}

	if failed.AttemptCount >= d.cfg.MaxRetries {
		d.park(failed, reasonRetriesExhausted)
		return nil
	}
	failed.NextRetryAt = failed.LastFailedAt.Add(d.backoff.Delay(failed.AttemptCount + 1))
	d.queued[failed.Key()] = failed
	d.stats.Retried++
	return nil
}

func (d *InMemoryDLQ) take(key string) (*FailedEvent, bool) {
	for _, m := range []map[string]*FailedEvent{d.queued, d.inflight} {
		if f, ok := m[key]; ok {
			delete(m, key)
			return f, true
		}
	}
	return nil, false
}

func (d *InMemoryDLQ) park(failed *FailedEvent, reason string) {
	p := &ParkedEvent{FailedEvent: *failed, ParkReason: reason, ParkedAt: time.Now()}
	d.parked[failed.Key()] = p
	d.stats.Parked++
	if d.cfg.OnPark != nil {
		d.cfg.OnPark(p)
	}
}

// Count returns the number of queued events, excluding those out for
// redelivery and those parked.
func (d *InMemoryDLQ) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.queued), nil
}

func (d *InMemoryDLQ) CountByType(_ context.Context) (map[string]int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	counts := make(map[string]int)
	for _, f := range d.queued {
		counts[f.EventType]++
	}
	return counts, nil
}

// ListParked returns up to limit parked events in the order they were
// parked; limit <= 0 returns all.
func (d *InMemoryDLQ) ListParked(_ context.Context, limit int) ([]*ParkedEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := slices.SortedFunc(maps.Values(d.parked), func(a, b *ParkedEvent) int {
		return a.ParkedAt.Compare(b.ParkedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecoverParked queues a parked dead letter again, due now, with its
// attempt count reset.
func (d *InMemoryDLQ) RecoverParked(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.parked[key]
	if !ok {
		return &EventError{Message: "recover " + key, Err: ErrNotParked}
	}
	delete(d.parked, key)

	f := p.FailedEvent
	f.AttemptCount = 0
	f.NextRetryAt = time.Now()
	d.queued[key] = &f
	d.stats.Recovered++
	return nil
}

func (d *InMemoryDLQ) Stats() DLQStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s := d.stats
	s.QueueSize, s.ParkedSize = len(d.queued), len(d.parked)
	return s
}

// DLQStats holds current sizes and running totals.
type DLQStats struct {
	QueueSize  int
	ParkedSize int

	Enqueued    int64
	Retried     int64
	Parked      int64
	Redelivered int64 // acknowledged after a successful redelivery
	Recovered   int64 // taken back from parked by RecoverParked
}

// Redeliver routes up to limit due dead letters again, each to the listener
// that failed, and returns how many succeeded. Successes are acknowledged and
// failures rescheduled. A dead letter whose envelope no longer decodes, or
// that its listener now vetoes, is parked.
func Redeliver(ctx context.Context, dlq RedeliveryQueue, router TargetRouter, limit int) (int, error) {
	due, err := dlq.Dequeue(ctx, limit)
	if err != nil {
		return 0, err
	}
	ctx = WithRedelivery(ctx)

	delivered := 0
	for _, failed := range due {
		evt, err := failed.Event()
		if err != nil {
			if err := dlq.MoveToParked(ctx, failed.Key(), err.Error()); err != nil {
				return delivered, err
			}
			continue
		}

		_, routeErr := router.RouteTo(ctx, evt, failed.Handler)
		switch {
		case routeErr == nil:
			if err := dlq.Acknowledge(ctx, failed.Key()); err != nil {
				return delivered, err
			}
			delivered++
		case rejected(routeErr):
			if err := dlq.MoveToParked(ctx, failed.Key(), reasonVetoed+": "+routeErr.Error()); err != nil {
				return delivered, err
			}
		default:
			if err := dlq.RecordRetryFailure(ctx, failed, routeErr); err != nil {
				return delivered, err
			}
		}
	}
	return delivered, nil
}

// rejected reports whether any listener error joined in err is a rejection.
func rejected(err error) bool {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return slices.ContainsFunc(joined.Unwrap(), rejected)
	}
	return fnerrors.IsRejected(err)
}
