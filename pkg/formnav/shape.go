package formnav

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/randalmurphal/formnav/pkg/formnav/event"
)

// ShapeError reports a payload that does not match its kind's shape.
type ShapeError struct {
	Kind   Kind
	Field  string // empty when the payload as a whole is malformed
	Reason string
	Err    error
}

func (e *ShapeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("formnav: %s payload: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("formnav: %s payload: %s: %s", e.Kind, e.Field, e.Reason)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// shapeCheck collects the first shape violation of a payload.
type shapeCheck struct {
	kind Kind
	err  *ShapeError
}

func (c *shapeCheck) fail(field, reason string) {
	if c.err == nil {
		c.err = &ShapeError{Kind: c.kind, Field: field, Reason: reason}
	}
}

func (c *shapeCheck) index(field string, v int) {
	if v < 0 {
		c.fail(field, fmt.Sprintf("must be a non-negative index, got %d", v))
	}
}

func (c *shapeCheck) id(field, v string) {
	if v == "" {
		c.fail(field, "must not be empty")
	}
}

func (c *shapeCheck) result() error {
	if c.err == nil {
		return nil
	}
	return c.err
}

var payloadTypes = map[Kind]reflect.Type{
	KindCardChanging:  reflect.TypeFor[CardChangingEvent](),
	KindCardChanged:   reflect.TypeFor[CardChangedEvent](),
	KindCardComplete:  reflect.TypeFor[CardCompleteEvent](),
	KindGroupChanging: reflect.TypeFor[GroupChangingEvent](),
	KindGroupChanged:  reflect.TypeFor[GroupChangedEvent](),
	KindGroupComplete: reflect.TypeFor[GroupCompleteEvent](),
	KindFieldChanging: reflect.TypeFor[FieldChangingEvent](),
	KindFieldChanged:  reflect.TypeFor[FieldChangedEvent](),
	KindFieldComplete: reflect.TypeFor[FieldCompleteEvent](),
}

// payloadFields holds the JSON names of every field, in declaration order.
// All of them are required.
var payloadFields = func() map[Kind][]string {
	out := make(map[Kind][]string, len(payloadTypes))
	for kind, typ := range payloadTypes {
		names := make([]string, 0, typ.NumField())
		for i := 0; i < typ.NumField(); i++ {
			name, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
			names = append(names, name)
		}
		out[kind] = names
	}
	return out
}()

// Fields returns the JSON field names of kind's payload in declaration order,
// or nil for an unknown kind.
func Fields(kind Kind) []string {
	return slices.Clone(payloadFields[kind])
}

// DecodeAs strictly decodes a JSON object into payload type T.
// Every field is required, unknown fields are rejected, and the result
// must pass Validate. All failures are *ShapeError.
func DecodeAs[T Payload](data []byte) (T, error) {
	var zero T
	kind := zero.Kind()

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return zero, &ShapeError{Kind: kind, Reason: "payload must be a JSON object", Err: err}
	}

	fields := payloadFields[kind]
	unknown := make([]string, 0)
	for key := range raw {
		if !slices.Contains(fields, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return zero, &ShapeError{Kind: kind, Field: unknown[0], Reason: "unknown field"}
	}
	for _, name := range fields {
		if v, ok := raw[name]; !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return zero, &ShapeError{Kind: kind, Field: name, Reason: "required field missing"}
		}
	}

	var p T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return zero, &ShapeError{
				Kind:   kind,
				Field:  typeErr.Field,
				Reason: fmt.Sprintf("expected %s, got JSON %s", typeErr.Type, typeErr.Value),
				Err:    err,
			}
		}
		return zero, &ShapeError{Kind: kind, Reason: "malformed payload", Err: err}
	}

	if err := p.Validate(); err != nil {
		return zero, err
	}
	return p, nil
}

// Decode strictly decodes data as the payload of kind.
func Decode(kind Kind, data []byte) (Payload, error) {
	switch kind {
	case KindCardChanging:
		return asPayload(DecodeAs[CardChangingEvent](data))
	case KindCardChanged:
		return asPayload(DecodeAs[CardChangedEvent](data))
	case KindCardComplete:
		return asPayload(DecodeAs[CardCompleteEvent](data))
	case KindGroupChanging:
		return asPayload(DecodeAs[GroupChangingEvent](data))
	case KindGroupChanged:
		return asPayload(DecodeAs[GroupChangedEvent](data))
	case KindGroupComplete:
		return asPayload(DecodeAs[GroupCompleteEvent](data))
	case KindFieldChanging:
		return asPayload(DecodeAs[FieldChangingEvent](data))
	case KindFieldChanged:
		return asPayload(DecodeAs[FieldChangedEvent](data))
	case KindFieldComplete:
		return asPayload(DecodeAs[FieldCompleteEvent](data))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func asPayload[T Payload](p T, err error) (Payload, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// PayloadOf extracts and validates the navigation payload carried by evt.
// Typed payloads are validated directly; raw JSON (events read back from
// the wire, the journal or the dead letter queue) is decoded strictly.
func PayloadOf(evt event.Event) (Payload, error) {
	kind, err := ParseKind(evt.Type())
	if err != nil {
		return nil, err
	}

	switch d := evt.Data().(type) {
	case Payload:
		if d.Kind() != kind {
			return nil, &ShapeError{
				Kind:   kind,
				Reason: fmt.Sprintf("event carries a %s payload", d.Kind()),
			}
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return d, nil
	case json.RawMessage:
		return Decode(kind, d)
	case []byte:
		return Decode(kind, d)
	default:
		return Decode(kind, evt.DataBytes())
	}
}

// DecodeEnvelope decodes a wire envelope and strictly decodes its payload.
// The metadata is returned even when the payload is rejected.
func DecodeEnvelope(data []byte) (event.Metadata, Payload, error) {
	var env event.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return event.Metadata{}, nil, fmt.Errorf("formnav: malformed envelope: %w", err)
	}
	kind, err := ParseKind(env.Meta.EventType)
	if err != nil {
		return env.Meta, nil, err
	}
	p, err := Decode(kind, env.Payload)
	return env.Meta, p, err
}
