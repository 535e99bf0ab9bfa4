package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is an encoded event whose payload is still raw JSON.
type Envelope struct {
	Meta    Metadata        `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes evt as an Envelope.
func Marshal(evt Event) ([]byte, error) {
	payload := evt.DataBytes()
	if payload == nil {
		return nil, fmt.Errorf("event %s: payload %T is not encodable", evt.ID(), evt.Data())
	}
	return json.Marshal(Envelope{Meta: MetadataOf(evt), Payload: payload})
}

// Unmarshal decodes the output of Marshal, leaving the payload raw.
func Unmarshal(data []byte) (*BaseEvent[json.RawMessage], error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Meta.EventID == "" || env.Meta.EventType == "" {
		return nil, errors.New("envelope metadata needs an id and a type")
	}
	return &BaseEvent[json.RawMessage]{Meta: env.Meta, Payload: env.Payload}, nil
}
