package formnav_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/formnav/pkg/formnav"
	"github.com/randalmurphal/formnav/pkg/formnav/event"
	"github.com/randalmurphal/formnav/pkg/formnav/observability"
	"github.com/randalmurphal/formnav/pkg/formnav/sequence"
)

// listener records routed events and answers with the configured error.
type listener struct {
	mu     sync.Mutex
	types  []string
	seen   []event.Event
	answer func(evt event.Event) error
}

func (l *listener) Handle(_ context.Context, evt event.Event) ([]event.Event, error) {
	l.mu.Lock()
	l.seen = append(l.seen, evt)
	l.mu.Unlock()
	if l.answer != nil {
		return nil, l.answer(evt)
	}
	return nil, nil
}

func (l *listener) Handles() []string { return l.types }

func (l *listener) events() []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]event.Event(nil), l.seen...)
}

type transitionRecord struct {
	level  string
	vetoed bool
}

type recordingMetrics struct {
	observability.NoopMetrics
	mu          sync.Mutex
	kinds       []string
	transitions []transitionRecord
	rejections  []string
}

func (m *recordingMetrics) RecordEvent(_ context.Context, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
}

func (m *recordingMetrics) RecordTransition(_ context.Context, level string, _ time.Duration, vetoed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, transitionRecord{level, vetoed})
}

func (m *recordingMetrics) RecordShapeRejection(_ context.Context, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections = append(m.rejections, kind)
}

type emitterFixture struct {
	emitter  *formnav.Emitter
	listener *listener
	bus      *event.LocalBus
	metrics  *recordingMetrics
	checker  *sequence.Checker
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, answer func(evt event.Event) error) *emitterFixture {
	t.Helper()

	f := &emitterFixture{
		listener: &listener{answer: answer},
		bus:      event.NewBus(event.BusConfig{}),
		metrics:  &recordingMetrics{},
		checker:  sequence.NewChecker(),
		logs:     &bytes.Buffer{},
	}
	t.Cleanup(func() { _ = f.bus.Close() })

	router := formnav.NewRouter(formnav.RouterOptions{Metrics: f.metrics})
	router.Register(f.listener)

	em, err := formnav.NewEmitter(formnav.EmitterConfig{
		FormID:   "signup",
		Router:   router,
		Bus:      f.bus,
		Observer: f.checker,
		Logger:   slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Metrics:  f.metrics,
	})
	require.NoError(t, err)
	f.emitter = em
	return f
}

// published subscribes to every event on the fixture bus.
func (f *emitterFixture) published() <-chan event.Event {
	ch := make(chan event.Event, 16)
	f.bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) ([]event.Event, error) {
		ch <- evt
		return nil, nil
	}))
	return ch
}

func receive(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
		return nil
	}
}

var (
	cardChanging = formnav.CardChangingEvent{FromIndex: 0, ToIndex: 1, FromID: "personal", ToID: "address"}
	cardChanged  = formnav.CardChangedEvent{CardIndex: 1, CardID: "address", CardTitle: "Address"}
)

func TestEmitter_Transition(t *testing.T) {
	f := newFixture(t, nil)
	pub := f.published()

	require.NoError(t, f.emitter.Transition(context.Background(), cardChanging, cardChanged))

	routed := f.listener.events()
	require.Len(t, routed, 2)
	changing, changed := routed[0], routed[1]

	assert.Equal(t, formnav.KindCardChanging.String(), changing.Type())
	assert.Equal(t, formnav.KindCardChanged.String(), changed.Type())
	assert.Equal(t, "signup", changing.FormID())
	assert.Equal(t, "signup", changed.FormID())
	assert.Equal(t, "formnav", changing.Source())
	assert.Equal(t, changing.CorrelationID(), changed.CorrelationID())
	assert.Equal(t, changing.ID(), changed.CausationID())
	assert.Empty(t, changing.CausationID())

	p, err := formnav.PayloadOf(changed)
	require.NoError(t, err)
	assert.Equal(t, cardChanged, p)

	assert.Equal(t, changing.ID(), receive(t, pub).ID())
	assert.Equal(t, changed.ID(), receive(t, pub).ID())

	assert.Equal(t, []string{"card.changing", "card.changed"}, f.metrics.kinds)
	assert.Equal(t, []transitionRecord{{"card", false}}, f.metrics.transitions)
	assert.Empty(t, f.checker.Pending("signup"))
	assert.Contains(t, f.logs.String(), "transition completed")
}

func TestEmitter_TransitionFieldSchemaVersion(t *testing.T) {
	f := newFixture(t, nil)

	err := f.emitter.Transition(context.Background(),
		formnav.FieldChangingEvent{FromIndex: 0, ToIndex: 1, FromID: "name", ToID: "email", Direction: formnav.DirectionForward},
		formnav.FieldChangedEvent{
			FieldIndex: 1, FieldID: "email", InputName: "email",
			SetIndex: 0, SetID: "contact", CardIndex: 0, CardID: "personal",
		})
	require.NoError(t, err)

	routed := f.listener.events()
	require.Len(t, routed, 2)
	assert.Equal(t, 1, routed[0].Version())
	assert.Equal(t, 2, routed[1].Version())
}

func TestEmitter_Veto(t *testing.T) {
	f := newFixture(t, func(evt event.Event) error {
		if evt.Type() == formnav.KindCardChanging.String() {
			return formnav.Veto("address card is locked")
		}
		return nil
	})
	pub := f.published()

	err := f.emitter.Transition(context.Background(), cardChanging, cardChanged)
	require.Error(t, err)
	assert.ErrorIs(t, err, formnav.ErrVetoed)
	assert.True(t, formnav.IsVeto(err))
	assert.Contains(t, err.Error(), "address card is locked")

	// The changed event is never produced and nothing reaches observers.
	routed := f.listener.events()
	require.Len(t, routed, 1)
	assert.Equal(t, formnav.KindCardChanging.String(), routed[0].Type())

	select {
	case evt := <-pub:
		t.Fatalf("vetoed transition published %s", evt.Type())
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, []transitionRecord{{"card", true}}, f.metrics.transitions)
	assert.Contains(t, f.logs.String(), "transition vetoed")

	// The next transition supersedes the vetoed one.
	f.listener.answer = nil
	require.NoError(t, f.emitter.Transition(context.Background(), cardChanging, cardChanged))
	assert.Empty(t, f.checker.Pending("signup"))
}

func TestEmitter_ListenerFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, func(evt event.Event) error {
		if evt.Type() == formnav.KindCardChanged.String() {
			// A veto on a changed event is just a failure.
			return formnav.Veto("too late")
		}
		return errors.New("listener crashed")
	})

	require.NoError(t, f.emitter.Transition(context.Background(), cardChanging, cardChanged))
	assert.Len(t, f.listener.events(), 2)
	assert.Contains(t, f.logs.String(), "listener crashed")
	assert.Equal(t, []transitionRecord{{"card", false}}, f.metrics.transitions)
}

func TestEmitter_TransitionRejects(t *testing.T) {
	tests := []struct {
		name     string
		changing formnav.TransitionPayload
		changed  formnav.PositionPayload
		target   error
	}{
		{
			name:     "mixed levels",
			changing: cardChanging,
			changed:  formnav.GroupChangedEvent{GroupIndex: 1, GroupID: "address", SetID: "s"},
			target:   formnav.ErrPhaseMismatch,
		},
		{
			name:     "complete instead of changed",
			changing: cardChanging,
			changed:  formnav.CardCompleteEvent{CardID: "address", CardIndex: 1},
			target:   formnav.ErrPhaseMismatch,
		},
		{
			name:     "changed reports another card",
			changing: cardChanging,
			changed:  formnav.CardChangedEvent{CardIndex: 2, CardID: "payment"},
			target:   formnav.ErrEndpointMismatch,
		},
		{
			name:     "same index different id",
			changing: cardChanging,
			changed:  formnav.CardChangedEvent{CardIndex: 1, CardID: "billing"},
			target:   formnav.ErrEndpointMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			err := f.emitter.Transition(context.Background(), tt.changing, tt.changed)
			assert.ErrorIs(t, err, tt.target)
			assert.Empty(t, f.listener.events())
		})
	}
}

func TestEmitter_InvalidPayload(t *testing.T) {
	f := newFixture(t, nil)

	err := f.emitter.Transition(context.Background(),
		formnav.CardChangingEvent{FromIndex: 0, ToIndex: 1, FromID: "personal"},
		cardChanged)

	var shapeErr *formnav.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "toId", shapeErr.Field)
	assert.Empty(t, f.listener.events())
	assert.Equal(t, []string{"card.changing"}, f.metrics.rejections)
}

func TestEmitter_SameEndpointTransition(t *testing.T) {
	f := newFixture(t, nil)

	err := f.emitter.Transition(context.Background(),
		formnav.GroupChangingEvent{FromIndex: 2, ToIndex: 2, FromID: "city", ToID: "city"},
		formnav.GroupChangedEvent{GroupIndex: 2, GroupID: "city", SetIndex: 0, SetID: "home"})
	require.NoError(t, err)
	assert.Len(t, f.listener.events(), 2)
}

func TestEmitter_Complete(t *testing.T) {
	f := newFixture(t, func(event.Event) error {
		return formnav.Veto("ignored")
	})
	pub := f.published()

	done := formnav.FieldCompleteEvent{FieldID: "email", FieldIndex: 1, InputName: "email"}
	require.NoError(t, f.emitter.Complete(context.Background(), done))

	evt := receive(t, pub)
	assert.Equal(t, formnav.KindFieldComplete.String(), evt.Type())
	p, err := formnav.PayloadOf(evt)
	require.NoError(t, err)
	assert.Equal(t, done, p)

	err = f.emitter.Complete(context.Background(), cardChanged)
	assert.ErrorIs(t, err, formnav.ErrPhaseMismatch)
}

func TestEmitter_PublishesDerivedEvents(t *testing.T) {
	bus := event.NewBus(event.BusConfig{})
	t.Cleanup(func() { _ = bus.Close() })
	pub := make(chan event.Event, 16)
	bus.SubscribeAll(event.HandlerFunc(func(_ context.Context, evt event.Event) ([]event.Event, error) {
		pub <- evt
		return nil, nil
	}))

	router := formnav.NewRouter(formnav.RouterOptions{})
	router.Register(event.TypedHandler([]string{formnav.KindCardChanged.String()},
		func(_ context.Context, _ formnav.CardChangedEvent, meta event.Metadata) ([]event.Event, error) {
			done := formnav.CardCompleteEvent{CardID: cardChanging.FromID, CardIndex: cardChanging.FromIndex}
			parent := &event.BaseEvent[formnav.Payload]{Meta: meta}
			return []event.Event{event.NewFromParent(parent, formnav.KindCardComplete.String(), "autosave", formnav.Payload(done))}, nil
		}))
	completes := &listener{types: []string{formnav.KindCardComplete.String()}}
	router.Register(completes)

	metrics := &recordingMetrics{}
	em, err := formnav.NewEmitter(formnav.EmitterConfig{
		FormID:   "signup",
		Router:   router,
		Bus:      bus,
		Observer: sequence.NewChecker(),
		Metrics:  metrics,
	})
	require.NoError(t, err)

	require.NoError(t, em.Transition(context.Background(), cardChanging, cardChanged))

	routed := completes.events()
	require.Len(t, routed, 1, "the derived complete event is routed")

	assert.Equal(t, "card.changing", receive(t, pub).Type())
	changed := receive(t, pub)
	assert.Equal(t, "card.changed", changed.Type())
	derived := receive(t, pub)
	assert.Equal(t, routed[0].ID(), derived.ID())
	assert.Equal(t, "autosave", derived.Source())
	assert.Equal(t, changed.ID(), derived.CausationID())
	assert.Equal(t, []string{"card.changing", "card.changed", "card.complete"}, metrics.kinds)
}

type refusingObserver struct{}

func (refusingObserver) Observe(event.Event) error {
	return errors.New("out of order")
}

func TestEmitter_ObserverStopsEvent(t *testing.T) {
	l := &listener{}
	router := event.NewRouter(event.RouterConfig{})
	router.Register(l)

	em, err := formnav.NewEmitter(formnav.EmitterConfig{
		FormID:   "signup",
		Router:   router,
		Observer: refusingObserver{},
	})
	require.NoError(t, err)

	err = em.Transition(context.Background(), cardChanging, cardChanged)
	assert.EqualError(t, err, "out of order")
	assert.Empty(t, l.events())
}

func TestNewEmitter_Validation(t *testing.T) {
	router := event.NewRouter(event.RouterConfig{})

	_, err := formnav.NewEmitter(formnav.EmitterConfig{Router: router})
	assert.Error(t, err)

	_, err = formnav.NewEmitter(formnav.EmitterConfig{FormID: "signup"})
	assert.Error(t, err)

	em, err := formnav.NewEmitter(formnav.EmitterConfig{FormID: "signup", Router: router, Source: "wizard"})
	require.NoError(t, err)
	assert.Equal(t, "signup", em.FormID())
}
