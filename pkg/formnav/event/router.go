package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	fnerrors "github.com/randalmurphal/formnav/pkg/formnav/errors"
)

var (
	// ErrMaxDepth is returned when listener-derived events nest deeper than
	// RouterConfig.MaxDepth.
	ErrMaxDepth = errors.New("max event depth exceeded")

	// ErrNoListener is returned by RouteTo when no listener of the event's
	// type has the requested name.
	ErrNoListener = errors.New("no such listener")
)

// Router dispatches an event synchronously to its listeners.
type Router interface {
	// Route calls every listener of evt, then routes the events they derived
	// one level deeper. It returns the derived events that stand, each
	// followed by its own derived events; a vetoed event derives nothing.
	// The error joins one *EventError per failed listener of evt. Failures
	// while routing derived events go to OnError and the DLQ instead.
	Route(ctx context.Context, evt Event) ([]Event, error)

	Register(handler Handler, opts ...HandlerOption)

	// Use adds middleware for listeners registered after the call.
	Use(middleware MiddlewareFunc)
}

// TargetRouter routes an event to one named listener. Redeliver needs one.
type TargetRouter interface {
	RouteTo(ctx context.Context, evt Event, handler string) ([]Event, error)
}

type RouterConfig struct {
	// MaxDepth bounds chains of derived events. Default: 10
	MaxDepth int

	// Registry and ValidateEvents enable schema checks before dispatch.
	Registry       *EventRegistry
	ValidateEvents bool

	// DLQ receives one entry per listener that failed permanently. Nothing
	// is enqueued for an event a listener vetoed, or for a redelivery.
	DLQ DeadLetterQueue

	// Retry applies to transient failures. Default: fnerrors.DefaultRetry
	Retry fnerrors.RetryPolicy

	// HandlerTimeout bounds each listener call unless the listener was
	// registered with WithHandlerTimeout. Zero means no limit.
	HandlerTimeout time.Duration

	OnError   func(evt Event, handler string, err error)
	OnSuccess func(evt Event, handler string, duration time.Duration)
}

var DefaultRouterConfig = RouterConfig{
	MaxDepth: 10,
	Retry:    fnerrors.DefaultRetry,
}

type handlerEntry struct {
	handler Handler
	types   []string // empty for wildcard listeners
	name    string
	retry   fnerrors.RetryPolicy
	timeout time.Duration
}

func (e *handlerEntry) wildcard() bool { return len(e.types) == 0 }

// DefaultRouter calls listeners one at a time: listeners registered for the
// event's type first, then wildcard listeners, each group in registration
// order.
type DefaultRouter struct {
	config RouterConfig

	mu         sync.RWMutex
	entries    []handlerEntry
	middleware []MiddlewareFunc
}

var (
	_ Router       = (*DefaultRouter)(nil)
	_ TargetRouter = (*DefaultRouter)(nil)
)

func NewRouter(config RouterConfig) *DefaultRouter {
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultRouterConfig.MaxDepth
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = DefaultRouterConfig.Retry
	}
	return &DefaultRouter{config: config}
}

// HandlerOption overrides a router default for one listener.
type HandlerOption func(*handlerEntry)

func WithHandlerRetry(p fnerrors.RetryPolicy) HandlerOption {
	return func(e *handlerEntry) { e.retry = p }
}

// WithHandlerTimeout limits each call of the listener; zero removes the
// router's default limit.
func WithHandlerTimeout(d time.Duration) HandlerOption {
	return func(e *handlerEntry) { e.timeout = d }
}

// WithHandlerName sets the name reported in logs, metrics and dead letters.
// Default: the listener's Go type. A name already taken gets a "#n" suffix,
// so every listener can be addressed by RouteTo.
func WithHandlerName(name string) HandlerOption {
	return func(e *handlerEntry) { e.name = name }
}

func (r *DefaultRouter) Register(handler Handler, opts ...HandlerOption) {
	entry := handlerEntry{
		types:   slices.Clone(handler.Handles()),
		name:    fmt.Sprintf("%T", handler),
		retry:   r.config.Retry,
		timeout: r.config.HandlerTimeout,
	}
	for _, opt := range opts {
		opt(&entry)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.entries, func(o handlerEntry) bool { return o.name == entry.name }) {
		entry.name = fmt.Sprintf("%s#%d", entry.name, len(r.entries)+1)
	}
	entry.handler = ChainMiddleware(handler, r.middleware...)
	r.entries = append(r.entries, entry)
}

func (r *DefaultRouter) Use(middleware MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware)
}

func (r *DefaultRouter) listenersFor(eventType string) []handlerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var typed, wild []handlerEntry
	for _, e := range r.entries {
		switch {
		case e.wildcard():
			wild = append(wild, e)
		case slices.Contains(e.types, eventType):
			typed = append(typed, e)
		}
	}
	return append(typed, wild...)
}

// Route validates evt when configured, then calls each listener. A failing
// listener does not stop the ones after it.
func (r *DefaultRouter) Route(ctx context.Context, evt Event) ([]Event, error) {
	res := r.dispatch(ctx, evt, r.listenersFor(evt.Type()))
	return res.derived, res.err
}

// RouteTo is Route restricted to the listener registered under handler.
// An empty handler means every listener.
func (r *DefaultRouter) RouteTo(ctx context.Context, evt Event, handler string) ([]Event, error) {
	listeners := r.listenersFor(evt.Type())
	if handler != "" {
		listeners = slices.DeleteFunc(listeners, func(l handlerEntry) bool { return l.name != handler })
		if len(listeners) == 0 {
			return nil, &EventError{Event: evt, Handler: handler, Message: "route", Err: ErrNoListener}
		}
	}
	res := r.dispatch(ctx, evt, listeners)
	return res.derived, res.err
}

type dispatchResult struct {
	derived []Event
	err     error
	skipped bool // failed before any listener ran
	vetoed  bool
}

type listenerFailure struct {
	entry handlerEntry
	err   error
}

func (r *DefaultRouter) dispatch(ctx context.Context, evt Event, listeners []handlerEntry) dispatchResult {
	depth := routeDepth(ctx)
	if depth >= r.config.MaxDepth {
		return dispatchResult{skipped: true,
			err: &EventError{Event: evt, Message: fmt.Sprintf("depth limit %d", r.config.MaxDepth), Err: ErrMaxDepth}}
	}

	if r.config.ValidateEvents && r.config.Registry != nil {
		if err := r.config.Registry.Validate(evt); err != nil {
			return dispatchResult{skipped: true, err: &EventError{Event: evt, Message: "event validation failed", Err: err}}
		}
	}

	if len(listeners) == 0 {
		return dispatchResult{}
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	var derived []Event
	var failures []listenerFailure
	for _, l := range listeners {
		out, err := r.call(ctx, evt, l)
		if err != nil {
			failures = append(failures, listenerFailure{l, err})
			continue
		}
		derived = append(derived, out...)
	}

	vetoed := slices.ContainsFunc(failures, func(f listenerFailure) bool { return fnerrors.IsRejected(f.err) })
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		r.fail(ctx, evt, f.entry, f.err, vetoed)
		errs = append(errs, &EventError{Event: evt, Handler: f.entry.name, Message: "handler failed", Err: f.err, Timestamp: time.Now()})
	}
	if vetoed {
		return dispatchResult{err: errors.Join(errs...), vetoed: true}
	}
	return dispatchResult{derived: r.dispatchDerived(ctx, derived), err: errors.Join(errs...)}
}

// dispatchDerived routes derived events at the depth of their cause's
// listeners. An event that fails validation or the depth limit, or that a
// listener vetoes, is dropped along with what it derived.
func (r *DefaultRouter) dispatchDerived(ctx context.Context, derived []Event) []Event {
	if len(derived) == 0 {
		return nil
	}
	// Derived events are new; their failures are dead-lettered even during
	// a redelivery of their cause.
	ctx = context.WithValue(ctx, redeliveryKey{}, false)

	var out []Event
	for _, d := range derived {
		res := r.dispatch(ctx, d, r.listenersFor(d.Type()))
		if res.skipped && r.config.OnError != nil {
			r.config.OnError(d, "", res.err)
		}
		if res.skipped || res.vetoed {
			continue
		}
		out = append(out, d)
		out = append(out, res.derived...)
	}
	return out
}

// call runs one listener under its retry policy. The time limit applies to
// each attempt.
func (r *DefaultRouter) call(ctx context.Context, evt Event, l handlerEntry) ([]Event, error) {
	start := time.Now()
	ctx = context.WithValue(ctx, listenerKey{}, l.name)

	derived, _, err := fnerrors.Retry(ctx, l.retry, func(ctx context.Context) ([]Event, error) {
		if l.timeout <= 0 {
			return l.handler.Handle(ctx, evt)
		}
		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		out, err := l.handler.Handle(ctx, evt)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &fnerrors.TimeoutError{Listener: l.name, EventType: evt.Type(), Limit: l.timeout}
		}
		return out, err
	})
	if err != nil {
		return nil, err
	}

	if r.config.OnSuccess != nil {
		r.config.OnSuccess(evt, l.name, time.Since(start))
	}
	return derived, nil
}

func (r *DefaultRouter) fail(ctx context.Context, evt Event, l handlerEntry, err error, vetoed bool) {
	if r.config.OnError != nil {
		r.config.OnError(evt, l.name, err)
	}
	if r.config.DLQ == nil || vetoed || isRedelivery(ctx) {
		return
	}
	if dlqErr := r.config.DLQ.Enqueue(ctx, NewFailedEvent(evt, err, l.name)); dlqErr != nil && r.config.OnError != nil {
		r.config.OnError(evt, "dlq", dlqErr)
	}
}

type (
	depthKey      struct{}
	listenerKey   struct{}
	redeliveryKey struct{}
)

func routeDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// ListenerName returns the registered name of the listener being called,
// or "" outside a Route.
func ListenerName(ctx context.Context) string {
	name, _ := ctx.Value(listenerKey{}).(string)
	return name
}

// WithRedelivery marks ctx as a dead letter redelivery so a repeated failure
// is not enqueued a second time.
func WithRedelivery(ctx context.Context) context.Context {
	return context.WithValue(ctx, redeliveryKey{}, true)
}

func isRedelivery(ctx context.Context) bool {
	v, _ := ctx.Value(redeliveryKey{}).(bool)
	return v
}
