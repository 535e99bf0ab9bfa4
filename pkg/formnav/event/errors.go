package event

import (
	"context"
	"fmt"
	"time"
)

// EventError reports a failure to dispatch one event. Route wraps every
// listener failure in one, so errors.Is and errors.As reach the listener's
// own error through Unwrap.
type EventError struct {
	Event     Event
	Handler   string // empty when the router failed before any listener ran
	Message   string
	Err       error
	Timestamp time.Time
}

func (e *EventError) Error() string {
	id, typ := "<none>", ""
	if e.Event != nil {
		id, typ = e.Event.ID(), " ("+e.Event.Type()+")"
	}
	msg := e.Message
	if e.Handler != "" {
		msg = e.Handler + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("event %s%s: %s: %v", id, typ, msg, e.Err)
	}
	return fmt.Sprintf("event %s%s: %s", id, typ, msg)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// FailedEvent is one listener's failure on one event, waiting in a dead
// letter queue. It keeps the whole envelope so redelivery preserves the
// event's identity, correlation chain and schema version.
type FailedEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	FormID    string `json:"form_id"`
	Envelope  []byte `json:"envelope"`

	ErrorMessage string `json:"error_message"`
	Handler      string `json:"handler,omitempty"`

	AttemptCount  int       `json:"attempt_count"`
	FirstFailedAt time.Time `json:"first_failed_at"`
	LastFailedAt  time.Time `json:"last_failed_at"`
	NextRetryAt   time.Time `json:"next_retry_at,omitempty"`
}

// NewFailedEvent records that handler failed to process evt.
func NewFailedEvent(evt Event, err error, handler string) *FailedEvent {
	now := time.Now()
	envelope, _ := Marshal(evt) // an unencodable event fails redelivery and is parked
	return &FailedEvent{
		EventID:       evt.ID(),
		EventType:     evt.Type(),
		FormID:        evt.FormID(),
		Envelope:      envelope,
		ErrorMessage:  err.Error(),
		Handler:       handler,
		FirstFailedAt: now,
		LastFailedAt:  now,
	}
}

// DeadLetterKey identifies a dead letter: the event and the listener that
// failed on it. Without a listener it is the event ID alone.
func DeadLetterKey(eventID, handler string) string {
	if handler == "" {
		return eventID
	}
	return eventID + "/" + handler
}

func (f *FailedEvent) Key() string { return DeadLetterKey(f.EventID, f.Handler) }

// Event rebuilds the failed event from its envelope.
func (f *FailedEvent) Event() (Event, error) {
	evt, err := Unmarshal(f.Envelope)
	if err != nil {
		return nil, fmt.Errorf("dead letter %s: %w", f.EventID, err)
	}
	return evt, nil
}

// ParkedEvent is a failed event that will not be redelivered automatically.
type ParkedEvent struct {
	FailedEvent

	ParkReason string    `json:"park_reason"`
	ParkedAt   time.Time `json:"parked_at"`
}

// DeadLetterQueue holds listener failures by FailedEvent.Key, so two
// listeners failing on one event are two entries. Vetoes never reach it.
type DeadLetterQueue interface {
	Enqueue(ctx context.Context, failed *FailedEvent) error

	// Dequeue returns up to limit dead letters that are due for redelivery.
	Dequeue(ctx context.Context, limit int) ([]*FailedEvent, error)

	// Acknowledge drops a dead letter after a successful redelivery.
	Acknowledge(ctx context.Context, key string) error

	MoveToParked(ctx context.Context, key string, reason string) error

	Count(ctx context.Context) (int, error)
}
