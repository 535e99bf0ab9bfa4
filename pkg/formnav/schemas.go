package formnav

import (
	"fmt"

	"github.com/randalmurphal/formnav/pkg/formnav/event"
)

// SchemaVersion returns the current payload schema version of kind.
func SchemaVersion(kind Kind) int {
	if kind == KindFieldChanged {
		return 2
	}
	return 1
}

var descriptions = map[Kind]string{
	KindCardChanging:  "Before leaving one card for another; listeners may veto",
	KindCardChanged:   "After a card transition; describes the new current card",
	KindCardComplete:  "A card's content is finished",
	KindGroupChanging: "Before leaving one group for another; listeners may veto",
	KindGroupChanged:  "After a group transition; describes the new group and its set",
	KindGroupComplete: "A group's content is finished",
	KindFieldChanging: "Before focus moves between fields; carries the direction",
	KindFieldChanged:  "After focus moved; describes the field with its set and card",
	KindFieldComplete: "A field's input is validly filled",
}

// legacyFieldChanged is the first field.changed revision, kept so stored
// events can be recognized and refused with a useful message.
var legacyFieldChanged = &event.EventSchema{
	Type:               string(KindFieldChanged),
	Version:            1,
	Description:        "Focus moved; reported only the previous field index",
	Fields:             []string{"fieldIndex", "fieldId", "inputName", "previousFieldIndex"},
	Tags:               []string{string(LevelField), string(PhaseChanged)},
	Deprecated:         true,
	DeprecationMessage: "previousFieldIndex was replaced by set and card context in version 2",
}

// RegisterSchemas registers the nine navigation kinds, plus the deprecated
// first revision of field.changed, with registry. Each schema validates the
// event payload with PayloadOf.
func RegisterSchemas(registry *event.EventRegistry) error {
	if err := registry.Register(legacyFieldChanged); err != nil {
		return fmt.Errorf("register %s v1: %w", KindFieldChanged, err)
	}

	for _, kind := range allKinds {
		schema := &event.EventSchema{
			Type:        string(kind),
			Version:     SchemaVersion(kind),
			Description: descriptions[kind],
			Fields:      Fields(kind),
			Tags:        []string{string(kind.Level()), string(kind.Phase())},
			Validator:   validatePayload,
		}
		if err := registry.Register(schema); err != nil {
			return fmt.Errorf("register %s: %w", kind, err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding the navigation schemas.
func NewRegistry() *event.EventRegistry {
	registry := event.NewEventRegistry()
	if err := RegisterSchemas(registry); err != nil {
		// The built-in schemas are static and always valid.
		panic(err)
	}
	return registry
}

func validatePayload(evt event.Event) error {
	_, err := PayloadOf(evt)
	return err
}
