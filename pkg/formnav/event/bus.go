package event

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ErrBusClosed is returned by Publish after Close.
var ErrBusClosed = errors.New("event bus closed")

// Bus fans published events out to observers asynchronously.
// Observers run after the router has dispatched an event, so they cannot veto it.
type Bus interface {
	Publish(ctx context.Context, evt Event) error

	// Subscribe delivers events of the given types to handler. Nil or empty
	// types subscribe to everything.
	Subscribe(types []string, handler Handler) Subscription
	SubscribeAll(handler Handler) Subscription

	// Close stops accepting events and waits for queued ones to be delivered.
	Close() error
}

// Subscription is one observer's registration on a Bus.
type Subscription interface {
	Unsubscribe()

	// Pause drops deliveries until Resume. Nothing is replayed afterwards.
	Pause()
	Resume()
	IsPaused() bool
}

type BusConfig struct {
	// BufferSize is the queue length of each subscription. Default: 256
	BufferSize int

	// MaxSubscribers caps live subscriptions; 0 means no cap.
	MaxSubscribers int

	// NonBlocking drops an event for a subscriber whose queue is full
	// instead of waiting for room.
	NonBlocking bool

	// DeduplicateTTL suppresses a second Publish of the same event ID
	// within the window. Zero disables it.
	DeduplicateTTL time.Duration

	OnDrop  func(evt Event, subscriberID string)
	OnError func(evt Event, subscriberID string, err error)
}

var DefaultBusConfig = BusConfig{BufferSize: 256}

// LocalBus is an in-process Bus. Each subscription has its own queue and
// goroutine, so a slow observer delays only itself (or the publisher, when
// blocking).
type LocalBus struct {
	config BusConfig

	mu   sync.RWMutex
	subs []*subscription // in subscription order

	seen *gocache.Cache // recently published event IDs; nil without dedupe

	lastID  atomic.Int64
	closed  atomic.Bool
	running sync.WaitGroup
}

func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	b := &LocalBus{config: config}
	if ttl := config.DeduplicateTTL; ttl > 0 {
		b.seen = gocache.New(ttl, ttl/2)
	}
	return b
}

// Publish queues evt for every subscription that accepts its type. A
// duplicate within the dedupe window is dropped silently. When Publish
// returns nil, every subscription that was live when it ran has evt queued
// and will deliver it, even if it is unsubscribed or the bus closed since.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return &EventError{Event: evt, Message: "publish", Err: ErrBusClosed}
	}
	if b.seen != nil && b.seen.Add(evt.ID(), struct{}{}, gocache.DefaultExpiration) != nil {
		return nil
	}

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.accepts(evt.Type()) && !s.IsPaused() {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := b.send(ctx, s, evt); err != nil {
			return err
		}
	}
	return nil
}

// send queues evt on s. It holds s.sendMu for reading, so s cannot finish
// stopping, and stop drain its queue, while a send is under way.
func (b *LocalBus) send(ctx context.Context, s *subscription, evt Event) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.done {
		return b.stoppedErr(evt)
	}

	if b.config.NonBlocking {
		select {
		case s.queue <- evt:
		default:
			if b.config.OnDrop != nil {
				b.config.OnDrop(evt, s.id)
			}
		}
		return nil
	}
	select {
	case s.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopping:
		return b.stoppedErr(evt)
	}
}

// stoppedErr is the result of a send to a stopped subscription: nothing for
// an unsubscribed one, ErrBusClosed once the bus is closed.
func (b *LocalBus) stoppedErr(evt Event) error {
	if b.closed.Load() {
		return &EventError{Event: evt, Message: "publish", Err: ErrBusClosed}
	}
	return nil
}

// Subscribe returns nil once the bus is closed or MaxSubscribers is reached.
func (b *LocalBus) Subscribe(types []string, handler Handler) Subscription {
	s := b.add(types, handler)
	if s == nil {
		return nil
	}
	return s
}

func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.Subscribe(nil, handler)
}

func (b *LocalBus) add(types []string, handler Handler) *subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed.Load() || (b.config.MaxSubscribers > 0 && len(b.subs) >= b.config.MaxSubscribers) {
		return nil
	}

	s := &subscription{
		id:       "sub-" + strconv.FormatInt(b.lastID.Add(1), 10),
		types:    slices.Clone(types),
		handler:  handler,
		queue:    make(chan Event, b.config.BufferSize),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
		bus:      b,
	}
	b.subs = append(b.subs, s)

	b.running.Add(1)
	go s.run()
	return s
}

func (b *LocalBus) remove(s *subscription) {
	b.mu.Lock()
	b.subs = slices.DeleteFunc(b.subs, func(other *subscription) bool { return other == s })
	b.mu.Unlock()
}

// Close is idempotent. Events already queued are delivered before it returns.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.RLock()
	for _, s := range b.subs {
		s.stop()
	}
	b.mu.RUnlock()

	b.running.Wait()
	return nil
}

type subscription struct {
	id      string
	types   []string
	handler Handler
	bus     *LocalBus

	queue  chan Event
	paused atomic.Bool

	// stopping releases blocked senders; stopped is closed once no send can
	// be in flight, and the subscription then drains its queue.
	sendMu   sync.RWMutex
	done     bool
	stopping chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func (s *subscription) accepts(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		close(s.stopping)
		s.sendMu.Lock()
		s.done = true
		s.sendMu.Unlock()
		close(s.stopped)
	})
}

// run delivers queued events until stopped, then drains what is left.
func (s *subscription) run() {
	defer s.bus.running.Done()
	for {
		select {
		case evt := <-s.queue:
			s.deliver(evt)
		case <-s.stopped:
			for {
				select {
				case evt := <-s.queue:
					s.deliver(evt)
				default:
					return
				}
			}
		}
	}
}

func (s *subscription) deliver(evt Event) {
	if s.IsPaused() {
		return
	}
	_, err := s.handler.Handle(context.Background(), evt)
	if err != nil && s.bus.config.OnError != nil {
		s.bus.config.OnError(evt, s.id, err)
	}
}

func (s *subscription) Unsubscribe() {
	s.bus.remove(s)
	s.stop()
}

func (s *subscription) Pause()         { s.paused.Store(true) }
func (s *subscription) Resume()        { s.paused.Store(false) }
func (s *subscription) IsPaused() bool { return s.paused.Load() }
