// Package event provides the envelope and dispatch primitives for form
// navigation events.
//
// # Envelope
//
// Every notification is an Event: identity (ID, Type, Source), correlation
// (CorrelationID, CausationID), metadata (Timestamp, Version, FormID) and a
// payload. BaseEvent[T] carries a typed payload:
//
//	evt := event.New("card.changing", "checkout", formID, payload)
//
// Events caused by another event inherit its correlation and record it as
// their cause. A changed event is always created from its changing event:
//
//	changed := event.NewFromParent(changing, "card.changed", "checkout", next)
//	// changed.CorrelationID() == changing.CorrelationID()
//	// changed.CausationID() == changing.ID()
//
// On the wire an event is {"metadata": {...}, "payload": {...}}; Envelope
// holds the undecoded form.
//
// # Registry
//
// EventRegistry keeps versioned EventSchemas. Validate checks an event against
// the latest schema, rejecting versions the latest schema cannot read:
//
//	registry := event.NewEventRegistry()
//	registry.Register(&event.EventSchema{Type: "field.changed", Version: 2})
//
// # Router
//
// Router dispatches synchronously, in registration order, with middleware,
// per-handler timeouts and retry of transient failures. Events a listener
// returns are routed in turn, up to MaxDepth. Route returns the joined
// handler errors so a producer can tell a veto from a crash:
//
//	router := event.NewRouter(event.RouterConfig{DLQ: dlq})
//	router.Use(event.RecoveryMiddleware())
//	router.Register(handler, event.WithHandlerTimeout(50*time.Millisecond))
//	_, err := router.Route(ctx, evt)
//
// # Bus
//
// LocalBus fans events out asynchronously to observers such as journals:
//
//	bus := event.NewBus(event.BusConfig{DeduplicateTTL: time.Minute})
//	sub := bus.SubscribeAll(recorder)
//	defer sub.Unsubscribe()
//
// # Dead letters
//
// InMemoryDLQ holds one entry per handler that failed permanently on an
// event; Redeliver routes each back to its handler and parks it once its
// retry budget is spent. Rejections are never dead-lettered.
package event
