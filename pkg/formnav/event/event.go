package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a navigation notification plus the envelope that identifies it.
// Events are not modified after creation.
type Event interface {
	ID() string
	// Type is the wire kind, e.g. "card.changing" or "field.complete".
	Type() string
	// Source names the producer, usually the form definition.
	Source() string

	// CorrelationID is shared by every event of one transition; a root event
	// correlates to itself. CausationID is the ID of the direct parent.
	CorrelationID() string
	CausationID() string

	Timestamp() time.Time
	// Version is the payload schema version.
	Version() int
	FormID() string

	Data() any
	// DataBytes is the JSON encoding of Data.
	DataBytes() []byte
}

// Metadata is the envelope of an event as it appears on the wire.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	SchemaVersion int       `json:"schema_version"`
	FormID        string    `json:"form_id"`
}

// MetadataOf copies the envelope of evt.
func MetadataOf(evt Event) Metadata {
	if b, ok := evt.(interface{ metadata() Metadata }); ok {
		return b.metadata()
	}
	return Metadata{
		EventID:       evt.ID(),
		EventType:     evt.Type(),
		EventSource:   evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		Timestamp:     evt.Timestamp(),
		SchemaVersion: evt.Version(),
		FormID:        evt.FormID(),
	}
}

// BaseEvent is the Event implementation for a payload of type T.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

func (e *BaseEvent[T]) ID() string            { return e.Meta.EventID }
func (e *BaseEvent[T]) Type() string          { return e.Meta.EventType }
func (e *BaseEvent[T]) Source() string        { return e.Meta.EventSource }
func (e *BaseEvent[T]) CorrelationID() string { return e.Meta.CorrelationID }
func (e *BaseEvent[T]) CausationID() string   { return e.Meta.CausationID }
func (e *BaseEvent[T]) Timestamp() time.Time  { return e.Meta.Timestamp }
func (e *BaseEvent[T]) Version() int          { return e.Meta.SchemaVersion }
func (e *BaseEvent[T]) FormID() string        { return e.Meta.FormID }
func (e *BaseEvent[T]) Data() any             { return e.Payload }
func (e *BaseEvent[T]) metadata() Metadata    { return e.Meta }

// TypedData returns the payload without a type assertion.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// DataBytes encodes the payload. Raw JSON is returned as is; a payload that
// cannot be encoded yields nil. Bus subscribers share one event, so nothing
// is cached on it.
func (e *BaseEvent[T]) DataBytes() []byte {
	if raw, ok := any(e.Payload).(json.RawMessage); ok && raw != nil {
		return raw
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil
	}
	return data
}

// UnmarshalJSON decodes the {"metadata", "payload"} form.
func (e *BaseEvent[T]) UnmarshalJSON(data []byte) error {
	var decoded struct {
		Meta    Metadata `json:"metadata"`
		Payload T        `json:"payload"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*e = BaseEvent[T]{Meta: decoded.Meta, Payload: decoded.Payload}
	return nil
}

// EventOption adjusts the envelope of a new event.
type EventOption func(*Metadata)

// WithEventID replaces the generated UUID.
func WithEventID(id string) EventOption {
	return func(m *Metadata) { m.EventID = id }
}

func WithCorrelationID(id string) EventOption {
	return func(m *Metadata) { m.CorrelationID = id }
}

func WithCausationID(id string) EventOption {
	return func(m *Metadata) { m.CausationID = id }
}

// WithTimestamp replaces time.Now().
func WithTimestamp(t time.Time) EventOption {
	return func(m *Metadata) { m.Timestamp = t }
}

// WithSchemaVersion sets the payload version. Default: 1
func WithSchemaVersion(v int) EventOption {
	return func(m *Metadata) { m.SchemaVersion = v }
}

// New creates a root event: unless an option says otherwise it gets a fresh
// UUID and correlates to itself.
func New[T any](eventType, source, formID string, payload T, opts ...EventOption) *BaseEvent[T] {
	meta := Metadata{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventSource:   source,
		Timestamp:     time.Now(),
		SchemaVersion: 1,
		FormID:        formID,
	}
	for _, opt := range opts {
		opt(&meta)
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = meta.EventID
	}
	return &BaseEvent[T]{Meta: meta, Payload: payload}
}

// NewFromParent creates an event caused by parent, on the same form and in
// the same correlation chain.
func NewFromParent[T any](parent Event, eventType, source string, payload T, opts ...EventOption) *BaseEvent[T] {
	chain := []EventOption{WithCorrelationID(parent.CorrelationID()), WithCausationID(parent.ID())}
	return New(eventType, source, parent.FormID(), payload, append(chain, opts...)...)
}

func NewAny(eventType, source, formID string, payload any, opts ...EventOption) *BaseEvent[any] {
	return New(eventType, source, formID, payload, opts...)
}

func NewAnyFromParent(parent Event, eventType, source string, payload any, opts ...EventOption) *BaseEvent[any] {
	return NewFromParent(parent, eventType, source, payload, opts...)
}
