package formnav

// Payload is the body of a navigation event.
type Payload interface {
	Kind() Kind
	// Validate reports the first field that breaks the shape as a *ShapeError.
	Validate() error
}

// Endpoint locates a unit among its siblings.
type Endpoint struct {
	Index int
	ID    string
}

// TransitionPayload is implemented by the three changing payloads.
type TransitionPayload interface {
	Payload
	Endpoints() (from, to Endpoint)
}

// PositionPayload is implemented by the changed and complete payloads.
type PositionPayload interface {
	Payload
	Position() Endpoint
}

// Direction is the traversal direction of a field transition.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// Valid reports whether d is forward or backward.
func (d Direction) Valid() bool {
	return d == DirectionForward || d == DirectionBackward
}

// CardChangingEvent fires before leaving one card for another.
// Listeners may veto it.
type CardChangingEvent struct {
	FromIndex int    `json:"fromIndex"`
	ToIndex   int    `json:"toIndex"`
	FromID    string `json:"fromId"`
	ToID      string `json:"toId"`
}

func (CardChangingEvent) Kind() Kind { return KindCardChanging }

func (e CardChangingEvent) Validate() error {
	c := shapeCheck{kind: KindCardChanging}
	c.index("fromIndex", e.FromIndex)
	c.index("toIndex", e.ToIndex)
	c.id("fromId", e.FromID)
	c.id("toId", e.ToID)
	return c.result()
}

func (e CardChangingEvent) Endpoints() (from, to Endpoint) {
	return Endpoint{e.FromIndex, e.FromID}, Endpoint{e.ToIndex, e.ToID}
}

// CardChangedEvent describes the new current card.
type CardChangedEvent struct {
	CardIndex int    `json:"cardIndex"`
	CardID    string `json:"cardId"`
	CardTitle string `json:"cardTitle"`
}

func (CardChangedEvent) Kind() Kind { return KindCardChanged }

func (e CardChangedEvent) Validate() error {
	c := shapeCheck{kind: KindCardChanged}
	c.index("cardIndex", e.CardIndex)
	c.id("cardId", e.CardID)
	return c.result()
}

func (e CardChangedEvent) Position() Endpoint { return Endpoint{e.CardIndex, e.CardID} }

// CardCompleteEvent marks a card's content as finished.
type CardCompleteEvent struct {
	CardID    string `json:"cardId"`
	CardIndex int    `json:"cardIndex"`
}

func (CardCompleteEvent) Kind() Kind { return KindCardComplete }

func (e CardCompleteEvent) Validate() error {
	c := shapeCheck{kind: KindCardComplete}
	c.id("cardId", e.CardID)
	c.index("cardIndex", e.CardIndex)
	return c.result()
}

func (e CardCompleteEvent) Position() Endpoint { return Endpoint{e.CardIndex, e.CardID} }

// GroupChangingEvent fires before leaving one group for another.
type GroupChangingEvent struct {
	FromIndex int    `json:"fromIndex"`
	ToIndex   int    `json:"toIndex"`
	FromID    string `json:"fromId"`
	ToID      string `json:"toId"`
}

func (GroupChangingEvent) Kind() Kind { return KindGroupChanging }

func (e GroupChangingEvent) Validate() error {
	c := shapeCheck{kind: KindGroupChanging}
	c.index("fromIndex", e.FromIndex)
	c.index("toIndex", e.ToIndex)
	c.id("fromId", e.FromID)
	c.id("toId", e.ToID)
	return c.result()
}

func (e GroupChangingEvent) Endpoints() (from, to Endpoint) {
	return Endpoint{e.FromIndex, e.FromID}, Endpoint{e.ToIndex, e.ToID}
}

// GroupChangedEvent describes the new current group and the set that holds it.
type GroupChangedEvent struct {
	GroupIndex int    `json:"groupIndex"`
	GroupID    string `json:"groupId"`
	GroupTitle string `json:"groupTitle"`
	SetIndex   int    `json:"setIndex"`
	SetID      string `json:"setId"`
}

func (GroupChangedEvent) Kind() Kind { return KindGroupChanged }

func (e GroupChangedEvent) Validate() error {
	c := shapeCheck{kind: KindGroupChanged}
	c.index("groupIndex", e.GroupIndex)
	c.id("groupId", e.GroupID)
	c.index("setIndex", e.SetIndex)
	c.id("setId", e.SetID)
	return c.result()
}

func (e GroupChangedEvent) Position() Endpoint { return Endpoint{e.GroupIndex, e.GroupID} }

// GroupCompleteEvent marks a group's content as finished.
type GroupCompleteEvent struct {
	GroupID    string `json:"groupId"`
	GroupIndex int    `json:"groupIndex"`
}

func (GroupCompleteEvent) Kind() Kind { return KindGroupComplete }

func (e GroupCompleteEvent) Validate() error {
	c := shapeCheck{kind: KindGroupComplete}
	c.id("groupId", e.GroupID)
	c.index("groupIndex", e.GroupIndex)
	return c.result()
}

func (e GroupCompleteEvent) Position() Endpoint { return Endpoint{e.GroupIndex, e.GroupID} }

// FieldChangingEvent fires before focus moves from one field to another.
// Direction is reported by the navigator and is not derived from the indexes,
// which restart in every set.
type FieldChangingEvent struct {
	FromIndex int       `json:"fromIndex"`
	ToIndex   int       `json:"toIndex"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId"`
	Direction Direction `json:"direction"`
}

func (FieldChangingEvent) Kind() Kind { return KindFieldChanging }

func (e FieldChangingEvent) Validate() error {
	c := shapeCheck{kind: KindFieldChanging}
	c.index("fromIndex", e.FromIndex)
	c.index("toIndex", e.ToIndex)
	c.id("fromId", e.FromID)
	c.id("toId", e.ToID)
	if !e.Direction.Valid() {
		c.fail("direction", "must be forward or backward")
	}
	return c.result()
}

func (e FieldChangingEvent) Endpoints() (from, to Endpoint) {
	return Endpoint{e.FromIndex, e.FromID}, Endpoint{e.ToIndex, e.ToID}
}

// FieldChangedEvent describes the newly focused field with its set and card.
// This is schema version 2; version 1 carried only previousFieldIndex and is
// no longer accepted.
type FieldChangedEvent struct {
	FieldIndex int    `json:"fieldIndex"`
	FieldID    string `json:"fieldId"`
	InputName  string `json:"inputName"`
	SetIndex   int    `json:"setIndex"`
	SetID      string `json:"setId"`
	CardIndex  int    `json:"cardIndex"`
	CardID     string `json:"cardId"`
}

func (FieldChangedEvent) Kind() Kind { return KindFieldChanged }

func (e FieldChangedEvent) Validate() error {
	c := shapeCheck{kind: KindFieldChanged}
	c.index("fieldIndex", e.FieldIndex)
	c.id("fieldId", e.FieldID)
	c.id("inputName", e.InputName)
	c.index("setIndex", e.SetIndex)
	c.id("setId", e.SetID)
	c.index("cardIndex", e.CardIndex)
	c.id("cardId", e.CardID)
	return c.result()
}

func (e FieldChangedEvent) Position() Endpoint { return Endpoint{e.FieldIndex, e.FieldID} }

// FieldCompleteEvent marks a field's input as validly filled.
type FieldCompleteEvent struct {
	FieldID    string `json:"fieldId"`
	FieldIndex int    `json:"fieldIndex"`
	InputName  string `json:"inputName"`
}

func (FieldCompleteEvent) Kind() Kind { return KindFieldComplete }

func (e FieldCompleteEvent) Validate() error {
	c := shapeCheck{kind: KindFieldComplete}
	c.id("fieldId", e.FieldID)
	c.index("fieldIndex", e.FieldIndex)
	c.id("inputName", e.InputName)
	return c.result()
}

func (e FieldCompleteEvent) Position() Endpoint { return Endpoint{e.FieldIndex, e.FieldID} }

var (
	_ TransitionPayload = CardChangingEvent{}
	_ TransitionPayload = GroupChangingEvent{}
	_ TransitionPayload = FieldChangingEvent{}
	_ PositionPayload   = CardChangedEvent{}
	_ PositionPayload   = CardCompleteEvent{}
	_ PositionPayload   = GroupChangedEvent{}
	_ PositionPayload   = GroupCompleteEvent{}
	_ PositionPayload   = FieldChangedEvent{}
	_ PositionPayload   = FieldCompleteEvent{}
)
