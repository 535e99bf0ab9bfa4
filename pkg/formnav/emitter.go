package formnav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/formnav/pkg/formnav/event"
	"github.com/randalmurphal/formnav/pkg/formnav/observability"
)

var (
	// ErrPhaseMismatch is returned when a payload is used in the wrong phase
	// or the two halves of a transition are at different levels.
	ErrPhaseMismatch = errors.New("formnav: payload phase does not fit the operation")

	// ErrEndpointMismatch is returned when a changed payload does not describe
	// the target of the changing payload that preceded it.
	ErrEndpointMismatch = errors.New("formnav: changed event does not match the transition target")
)

// Observer sees every event the Emitter is about to dispatch, in order.
// Returning an error stops that event from being dispatched. Events that
// listeners derived are observed after the router dispatched them; one the
// Observer refuses is not published.
type Observer interface {
	Observe(evt event.Event) error
}

// EmitterConfig configures an Emitter.
type EmitterConfig struct {
	// FormID identifies the form instance. Required.
	FormID string

	// Source names the producer. Default: "formnav".
	Source string

	// Router dispatches events synchronously to listeners that may veto. Required.
	Router event.Router

	// Bus fans events out to observers after dispatch (optional).
	Bus event.Bus

	// Observer checks each event before dispatch (optional).
	Observer Observer

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

// Emitter turns navigation payloads into events for one form.
// It does not decide where navigation goes; the caller's navigator does.
// An Emitter is safe for concurrent use if its Observer is.
type Emitter struct {
	cfg EmitterConfig
}

// NewEmitter creates an Emitter.
func NewEmitter(cfg EmitterConfig) (*Emitter, error) {
	if cfg.FormID == "" {
		return nil, errors.New("formnav: emitter requires a form id")
	}
	if cfg.Router == nil {
		return nil, errors.New("formnav: emitter requires a router")
	}
	if cfg.Source == "" {
		cfg.Source = "formnav"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}
	return &Emitter{cfg: cfg}, nil
}

// FormID returns the form the emitter produces events for.
func (e *Emitter) FormID() string {
	return e.cfg.FormID
}

// Transition emits a changing event and, unless a listener vetoes it, the
// matching changed event. A veto returns an error matching ErrVetoed and
// nothing further is emitted. Other listener failures are logged and left to
// the router's dead letter queue; they do not stop the transition.
func (e *Emitter) Transition(ctx context.Context, changing TransitionPayload, changed PositionPayload) (err error) {
	level := changing.Kind().Level()
	if changing.Kind().Phase() != PhaseChanging || changed.Kind() != KindOf(level, PhaseChanged) {
		return fmt.Errorf("%w: transition from %s to %s", ErrPhaseMismatch, changing.Kind(), changed.Kind())
	}
	if err := e.validate(ctx, changing); err != nil {
		return err
	}
	if err := e.validate(ctx, changed); err != nil {
		return err
	}

	from, to := changing.Endpoints()
	if at := changed.Position(); at != to {
		return fmt.Errorf("%w: %s targets %d/%q, %s reports %d/%q",
			ErrEndpointMismatch, changing.Kind(), to.Index, to.ID, changed.Kind(), at.Index, at.ID)
	}

	start := time.Now()
	changingEvt := e.newEvent(changing)
	logger := observability.EnrichLogger(e.cfg.Logger, e.cfg.FormID, changingEvt.CorrelationID())

	ctx, span := e.cfg.Spans.StartTransitionSpan(ctx, e.cfg.FormID, string(level))
	defer func() { e.cfg.Spans.EndSpanWithError(span, err) }()

	observability.LogTransitionStart(logger, string(level), from.ID, to.ID)

	if err := e.emit(ctx, logger, changingEvt, true); err != nil {
		if IsVeto(err) {
			e.cfg.Metrics.RecordTransition(ctx, string(level), time.Since(start), true)
			e.cfg.Spans.AddSpanEvent(ctx, "transition.vetoed", attribute.String("to.id", to.ID))
			observability.LogTransitionVetoed(logger, string(level), to.ID, err)
		}
		return err
	}

	changedEvt := event.NewFromParent(changingEvt, string(changed.Kind()), e.cfg.Source, Payload(changed),
		event.WithSchemaVersion(SchemaVersion(changed.Kind())))
	if err := e.emit(ctx, logger, changedEvt, false); err != nil {
		return err
	}

	elapsed := time.Since(start)
	e.cfg.Metrics.RecordTransition(ctx, string(level), elapsed, false)
	observability.LogTransitionComplete(logger, string(level), to.ID, elapsed)
	return nil
}

// Complete emits a complete event. Complete events cannot be vetoed.
func (e *Emitter) Complete(ctx context.Context, payload PositionPayload) error {
	if payload.Kind().Phase() != PhaseComplete {
		return fmt.Errorf("%w: %s is not a complete event", ErrPhaseMismatch, payload.Kind())
	}
	if err := e.validate(ctx, payload); err != nil {
		return err
	}
	evt := e.newEvent(payload)
	logger := observability.EnrichLogger(e.cfg.Logger, e.cfg.FormID, evt.CorrelationID())
	return e.emit(ctx, logger, evt, false)
}

func (e *Emitter) validate(ctx context.Context, p Payload) error {
	if err := p.Validate(); err != nil {
		e.cfg.Metrics.RecordShapeRejection(ctx, string(p.Kind()))
		observability.LogEventRejected(e.cfg.Logger, string(p.Kind()), err)
		return err
	}
	return nil
}

func (e *Emitter) newEvent(p Payload) *event.BaseEvent[Payload] {
	return event.New(string(p.Kind()), e.cfg.Source, e.cfg.FormID, p,
		event.WithSchemaVersion(SchemaVersion(p.Kind())))
}

// emit observes, routes and publishes evt, then the events its listeners
// derived. Only a vetoable event stops on a veto; every other listener
// failure is logged and swallowed.
func (e *Emitter) emit(ctx context.Context, logger *slog.Logger, evt event.Event, vetoable bool) (err error) {
	ctx, span := e.cfg.Spans.StartEmitSpan(ctx, evt.Type(), evt.ID())
	defer func() { e.cfg.Spans.EndSpanWithError(span, err) }()

	if e.cfg.Observer != nil {
		if err := e.cfg.Observer.Observe(evt); err != nil {
			return err
		}
	}

	derived, routeErr := e.cfg.Router.Route(ctx, evt)
	if routeErr != nil {
		if vetoable && IsVeto(routeErr) {
			return routeErr
		}
		observability.LogListenerError(logger, evt.Type(), routeErr)
	}

	if err := e.publish(ctx, evt); err != nil {
		return err
	}
	for _, d := range derived {
		if e.cfg.Observer != nil {
			if err := e.cfg.Observer.Observe(d); err != nil {
				observability.LogEventRejected(logger, d.Type(), err)
				continue
			}
		}
		if err := e.publish(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// publish counts evt and hands it to the bus. The router has already
// dispatched it.
func (e *Emitter) publish(ctx context.Context, evt event.Event) error {
	e.cfg.Metrics.RecordEvent(ctx, evt.Type())
	if e.cfg.Bus == nil {
		return nil
	}
	if err := e.cfg.Bus.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type(), err)
	}
	return nil
}
