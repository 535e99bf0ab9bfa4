package formnav

import (
	"errors"
	"fmt"
	"strings"
)

// Level is the navigational granularity an event describes.
type Level string

const (
	LevelCard  Level = "card"
	LevelGroup Level = "group"
	LevelField Level = "field"
)

// Phase is the point in a unit's lifecycle an event describes.
type Phase string

const (
	// PhaseChanging fires before a transition and may be vetoed.
	PhaseChanging Phase = "changing"
	// PhaseChanged fires after a transition and describes the new current unit.
	PhaseChanged Phase = "changed"
	// PhaseComplete fires when a unit's content is finished, independent of navigation.
	PhaseComplete Phase = "complete"
)

// Kind is a (level, phase) pair, written "<level>.<phase>" on the wire.
// It is also the event type used by the router and bus.
type Kind string

const (
	KindCardChanging  Kind = "card.changing"
	KindCardChanged   Kind = "card.changed"
	KindCardComplete  Kind = "card.complete"
	KindGroupChanging Kind = "group.changing"
	KindGroupChanged  Kind = "group.changed"
	KindGroupComplete Kind = "group.complete"
	KindFieldChanging Kind = "field.changing"
	KindFieldChanged  Kind = "field.changed"
	KindFieldComplete Kind = "field.complete"
)

// ErrUnknownKind is returned for event types outside the navigation vocabulary.
var ErrUnknownKind = errors.New("formnav: unknown event kind")

var allKinds = []Kind{
	KindCardChanging, KindCardChanged, KindCardComplete,
	KindGroupChanging, KindGroupChanged, KindGroupComplete,
	KindFieldChanging, KindFieldChanged, KindFieldComplete,
}

// AllKinds returns the nine kinds, card first, in lifecycle order.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// KindOf builds the kind for a level and phase.
func KindOf(level Level, phase Phase) Kind {
	return Kind(string(level) + "." + string(phase))
}

// ParseKind parses "<level>.<phase>".
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the nine kinds.
func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Level returns the granularity part of k.
func (k Kind) Level() Level {
	level, _, _ := strings.Cut(string(k), ".")
	return Level(level)
}

// Phase returns the lifecycle part of k.
func (k Kind) Phase() Phase {
	_, phase, _ := strings.Cut(string(k), ".")
	return Phase(phase)
}

func (k Kind) String() string {
	return string(k)
}
