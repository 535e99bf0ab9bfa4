package event

import (
	"context"
	"encoding/json"
)

// Handler is a navigation listener. It may return derived events, which the
// router dispatches in turn and returns to the caller of Route.
type Handler interface {
	Handle(ctx context.Context, evt Event) ([]Event, error)

	// Handles lists the event types the handler wants; empty means all.
	Handles() []string
}

// HandlerFunc is a Handler for every event type.
type HandlerFunc func(ctx context.Context, evt Event) ([]Event, error)

func (f HandlerFunc) Handle(ctx context.Context, evt Event) ([]Event, error) { return f(ctx, evt) }

func (f HandlerFunc) Handles() []string { return nil }

// TypedHandler adapts fn to Handler, converting the event payload to T.
// Payloads arriving as raw JSON (from a journal or dead letter queue) or as
// another type with the same JSON shape are re-decoded.
func TypedHandler[T any](eventTypes []string, fn func(ctx context.Context, payload T, meta Metadata) ([]Event, error)) Handler {
	return &typedHandler[T]{types: eventTypes, fn: fn}
}

type typedHandler[T any] struct {
	types []string
	fn    func(context.Context, T, Metadata) ([]Event, error)
}

func (h *typedHandler[T]) Handles() []string { return h.types }

func (h *typedHandler[T]) Handle(ctx context.Context, evt Event) ([]Event, error) {
	payload, err := payloadAs[T](evt)
	if err != nil {
		return nil, &EventError{Event: evt, Message: "payload does not decode as the listener's type", Err: err}
	}
	return h.fn(ctx, payload, MetadataOf(evt))
}

func payloadAs[T any](evt Event) (T, error) {
	var out T
	if p, ok := evt.Data().(T); ok {
		return p, nil
	}
	raw, ok := evt.Data().(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(evt.Data()); err != nil {
			return out, err
		}
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}

// MiddlewareFunc wraps a Handler.
type MiddlewareFunc func(next Handler) Handler

// ChainMiddleware wraps handler so that the first middleware runs outermost.
func ChainMiddleware(handler Handler, middleware ...MiddlewareFunc) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}
