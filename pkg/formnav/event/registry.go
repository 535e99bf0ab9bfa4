package event

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrIncompatibleVersion = errors.New("incompatible version")
	ErrDeprecatedVersion   = errors.New("deprecated version")
)

// EventSchema is one revision of an event type's payload.
type EventSchema struct {
	Type    string
	Version int

	// Description says when the event fires; the CLI prints it.
	Description string

	// Fields are the payload's JSON names in wire order.
	Fields []string

	// Tags name the granularity and phase ("field", "changing").
	Tags []string

	// Validator checks the payload. Nil accepts anything.
	Validator func(Event) error

	// Compatible lists older versions this revision still reads.
	Compatible []int

	Deprecated         bool
	DeprecationMessage string
}

// IsCompatibleWith reports whether the schema reads events written at version.
func (s *EventSchema) IsCompatibleWith(version int) bool {
	return version == s.Version || slices.Contains(s.Compatible, version)
}

func (s *EventSchema) HasTag(tag string) bool {
	return slices.Contains(s.Tags, tag)
}

// Validate checks the event's type, version and payload against s.
func (s *EventSchema) Validate(evt Event) error {
	switch {
	case evt.Type() != s.Type:
		return fmt.Errorf("schema %s cannot validate %s event", s.Type, evt.Type())
	case !s.IsCompatibleWith(evt.Version()):
		return fmt.Errorf("%s: %w: event v%d, schema v%d", s.Type, ErrIncompatibleVersion, evt.Version(), s.Version)
	case s.Validator == nil:
		return nil
	}
	if err := s.Validator(evt); err != nil {
		return fmt.Errorf("%s payload: %w", s.Type, err)
	}
	return nil
}

// EventRegistry holds every revision of every event type.
type EventRegistry struct {
	mu sync.RWMutex

	// revisions are kept sorted by ascending version.
	revisions map[string][]*EventSchema
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{revisions: make(map[string][]*EventSchema)}
}

// Register adds a schema revision, replacing one with the same type and version.
func (r *EventRegistry) Register(schema *EventSchema) error {
	if schema.Type == "" {
		return errors.New("register schema: empty event type")
	}
	if schema.Version < 1 {
		return fmt.Errorf("register schema %s: version %d is not positive", schema.Type, schema.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	revs := r.revisions[schema.Type]
	i, found := slices.BinarySearchFunc(revs, schema.Version, func(s *EventSchema, v int) int {
		return s.Version - v
	})
	if found {
		revs[i] = schema
	} else {
		revs = slices.Insert(revs, i, schema)
	}
	r.revisions[schema.Type] = revs
	return nil
}

// Get returns the newest revision of an event type.
func (r *EventRegistry) Get(eventType string) (*EventSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	revs := r.revisions[eventType]
	if len(revs) == 0 {
		return nil, false
	}
	return revs[len(revs)-1], true
}

func (r *EventRegistry) GetVersion(eventType string, version int) (*EventSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.revisions[eventType] {
		if s.Version == version {
			return s, true
		}
	}
	return nil, false
}

// Validate checks an event against the newest revision of its type, so an
// event written at a superseded version fails unless that revision still
// reads it.
func (r *EventRegistry) Validate(evt Event) error {
	schema, ok := r.Get(evt.Type())
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, evt.Type())
	}
	return schema.Validate(evt)
}

// ValidateStrict checks an event against the exact revision it declares and
// refuses deprecated revisions.
func (r *EventRegistry) ValidateStrict(evt Event) error {
	schema, ok := r.GetVersion(evt.Type(), evt.Version())
	if !ok {
		return fmt.Errorf("%w: %s v%d", ErrUnknownEventType, evt.Type(), evt.Version())
	}
	if schema.Deprecated {
		return fmt.Errorf("%s v%d: %w: %s", evt.Type(), evt.Version(), ErrDeprecatedVersion, schema.DeprecationMessage)
	}
	return schema.Validate(evt)
}

func (r *EventRegistry) Has(eventType string) bool {
	_, ok := r.Get(eventType)
	return ok
}

// Types returns the registered event types in sorted order.
func (r *EventRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.revisions))
}

// Versions returns the registered versions of an event type, ascending.
func (r *EventRegistry) Versions(eventType string) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	revs := r.revisions[eventType]
	if len(revs) == 0 {
		return nil
	}
	out := make([]int, len(revs))
	for i, s := range revs {
		out[i] = s.Version
	}
	return out
}

func (r *EventRegistry) LatestVersion(eventType string) (int, bool) {
	if s, ok := r.Get(eventType); ok {
		return s.Version, true
	}
	return 0, false
}

// ListByTag returns the newest revision of each type tagged tag, by type.
func (r *EventRegistry) ListByTag(tag string) []*EventSchema {
	var out []*EventSchema
	for _, t := range r.Types() {
		if s, ok := r.Get(t); ok && s.HasTag(tag) {
			out = append(out, s)
		}
	}
	return out
}
