// Package formnav describes navigation through a multi-step form as events.
//
// A form is made of cards, cards hold groups and groups hold fields. Moving
// between two units at one of these levels produces a pair of events: a
// changing event, sent before the move with both endpoints, and a changed
// event describing the unit that became current. Listeners of a changing
// event may veto the move. Complete events mark a unit's content as finished
// and are independent of navigation.
//
// # Payloads
//
// Each of the nine kinds has its own payload type, such as CardChangingEvent
// or FieldChangedEvent. Payloads are plain structs with camelCase JSON names;
// every field is required. Decode and DecodeAs read them strictly:
//
//	p, err := formnav.DecodeAs[formnav.FieldChangingEvent](data)
//	var shapeErr *formnav.ShapeError
//	if errors.As(err, &shapeErr) {
//		log.Printf("bad %s: %s", shapeErr.Field, shapeErr.Reason)
//	}
//
// # Emitting
//
// An Emitter wraps payloads in event envelopes and dispatches them through an
// event.Router (synchronous, may veto) and an event.Bus (asynchronous):
//
//	router := event.NewRouter(event.RouterConfig{Registry: formnav.NewRegistry(), ValidateEvents: true})
//	router.Register(event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
//		return nil, formnav.Veto("card has unsaved input")
//	}))
//
//	em, _ := formnav.NewEmitter(formnav.EmitterConfig{FormID: "signup", Router: router})
//	err := em.Transition(ctx,
//		formnav.CardChangingEvent{FromIndex: 0, ToIndex: 1, FromID: "who", ToID: "where"},
//		formnav.CardChangedEvent{CardIndex: 1, CardID: "where", CardTitle: "Address"},
//	)
//	// errors.Is(err, formnav.ErrVetoed) == true
//
// The sequence package checks that changed events follow their changing
// events, and the journal package records emitted events per form.
package formnav
