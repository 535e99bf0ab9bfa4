package journal

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/randalmurphal/formnav/pkg/formnav/event"
)

// Entry is one journaled event.
type Entry struct {
	FormID        string    `json:"form_id"`
	Seq           int64     `json:"seq"`
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	// Envelope is the event's wire form, as produced by event.Marshal.
	Envelope json.RawMessage `json:"envelope"`
}

// NewEntry builds an unsequenced entry for evt.
func NewEntry(evt event.Event) (Entry, error) {
	envelope, err := event.Marshal(evt)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal event %s: %w", evt.ID(), err)
	}
	return Entry{
		FormID:        evt.FormID(),
		EventID:       evt.ID(),
		Type:          evt.Type(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		Timestamp:     evt.Timestamp().UTC(),
		Envelope:      envelope,
	}, nil
}

// Event rebuilds the journaled event. Its payload is left as json.RawMessage;
// formnav.PayloadOf decodes it strictly.
func (e Entry) Event() (event.Event, error) {
	evt, err := event.Unmarshal(e.Envelope)
	if err != nil {
		return nil, fmt.Errorf("decode entry %s/%d: %w", e.FormID, e.Seq, err)
	}
	return evt, nil
}

// Size returns the stored size of the entry in bytes.
func (e Entry) Size() int {
	return len(e.Envelope)
}

func (e Entry) validate() error {
	switch {
	case e.FormID == "":
		return fmt.Errorf("journal entry for event %s has no form id", e.EventID)
	case e.EventID == "":
		return fmt.Errorf("journal entry for form %s has no event id", e.FormID)
	case len(e.Envelope) == 0:
		return fmt.Errorf("journal entry for event %s has no envelope", e.EventID)
	}
	return nil
}
