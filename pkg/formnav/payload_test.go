package formnav_test

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/formnav/pkg/formnav"
)

func TestFields_ExactShapes(t *testing.T) {
	tests := []struct {
		kind   formnav.Kind
		fields []string
	}{
		{formnav.KindCardChanging, []string{"fromIndex", "toIndex", "fromId", "toId"}},
		{formnav.KindGroupChanging, []string{"fromIndex", "toIndex", "fromId", "toId"}},
		{formnav.KindFieldChanging, []string{"fromIndex", "toIndex", "fromId", "toId", "direction"}},
		{formnav.KindCardChanged, []string{"cardIndex", "cardId", "cardTitle"}},
		{formnav.KindGroupChanged, []string{"groupIndex", "groupId", "groupTitle", "setIndex", "setId"}},
		{formnav.KindFieldChanged, []string{"fieldIndex", "fieldId", "inputName", "setIndex", "setId", "cardIndex", "cardId"}},
		{formnav.KindCardComplete, []string{"cardId", "cardIndex"}},
		{formnav.KindGroupComplete, []string{"groupId", "groupIndex"}},
		{formnav.KindFieldComplete, []string{"fieldId", "fieldIndex", "inputName"}},
	}

	require.Len(t, tests, len(formnav.AllKinds()))
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.fields, formnav.Fields(tt.kind))
		})
	}
}

func TestFields_MarshalMatchesShape(t *testing.T) {
	for _, p := range validPayloads() {
		t.Run(p.Kind().String(), func(t *testing.T) {
			data, err := json.Marshal(p)
			require.NoError(t, err)

			var raw map[string]any
			require.NoError(t, json.Unmarshal(data, &raw))

			keys := make([]string, 0, len(raw))
			for k := range raw {
				keys = append(keys, k)
			}
			want := formnav.Fields(p.Kind())
			sort.Strings(keys)
			sort.Strings(want)
			assert.Equal(t, want, keys)
		})
	}
}

func TestFieldChanged_NoLegacyAndContextTogether(t *testing.T) {
	fields := formnav.Fields(formnav.KindFieldChanged)
	assert.NotContains(t, fields, "previousFieldIndex")
	for _, f := range []string{"setIndex", "setId", "cardIndex", "cardId"} {
		assert.Contains(t, fields, f)
	}
}

func TestCompleteEvents_NoAncestorContext(t *testing.T) {
	ancestors := map[formnav.Kind][]string{
		formnav.KindCardComplete:  {"setIndex", "setId"},
		formnav.KindGroupComplete: {"setIndex", "setId", "cardIndex", "cardId"},
		formnav.KindFieldComplete: {"setIndex", "setId", "cardIndex", "cardId"},
	}
	for kind, forbidden := range ancestors {
		for _, f := range formnav.Fields(kind) {
			assert.NotContains(t, forbidden, f, "kind %s", kind)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload formnav.Payload
		field   string
	}{
		{
			name:    "negative from index",
			payload: formnav.CardChangingEvent{FromIndex: -1, ToIndex: 0, FromID: "a", ToID: "b"},
			field:   "fromIndex",
		},
		{
			name:    "empty to id",
			payload: formnav.GroupChangingEvent{FromIndex: 0, ToIndex: 1, FromID: "a"},
			field:   "toId",
		},
		{
			name:    "missing direction",
			payload: formnav.FieldChangingEvent{FromIndex: 2, ToIndex: 3, FromID: "a", ToID: "b"},
			field:   "direction",
		},
		{
			name:    "unknown direction",
			payload: formnav.FieldChangingEvent{FromIndex: 2, ToIndex: 3, FromID: "a", ToID: "b", Direction: "sideways"},
			field:   "direction",
		},
		{
			name:    "empty input name",
			payload: formnav.FieldCompleteEvent{FieldID: "email", FieldIndex: 0},
			field:   "inputName",
		},
		{
			name:    "negative set index",
			payload: formnav.GroupChangedEvent{GroupIndex: 0, GroupID: "g", SetIndex: -2, SetID: "s"},
			field:   "setIndex",
		},
		{
			name: "empty card id on field",
			payload: formnav.FieldChangedEvent{
				FieldIndex: 0, FieldID: "f", InputName: "email", SetIndex: 0, SetID: "s", CardIndex: 0,
			},
			field: "cardId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			var shapeErr *formnav.ShapeError
			require.True(t, errors.As(err, &shapeErr), "got %v", err)
			assert.Equal(t, tt.payload.Kind(), shapeErr.Kind)
			assert.Equal(t, tt.field, shapeErr.Field)
		})
	}
}

func TestValidate_ReportsFirstField(t *testing.T) {
	err := formnav.CardChangingEvent{FromIndex: -1, ToIndex: -1}.Validate()
	var shapeErr *formnav.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, "fromIndex", shapeErr.Field)
	assert.EqualError(t, err, "formnav: card.changing payload: fromIndex: must be a non-negative index, got -1")
}

func TestValidate_EmptyTitlesAllowed(t *testing.T) {
	assert.NoError(t, formnav.CardChangedEvent{CardIndex: 0, CardID: "c"}.Validate())
	assert.NoError(t, formnav.GroupChangedEvent{GroupID: "g", SetID: "s"}.Validate())
}

func TestValidate_AllValid(t *testing.T) {
	for _, p := range validPayloads() {
		assert.NoError(t, p.Validate(), "kind %s", p.Kind())
	}
}

func TestEndpointsAndPosition(t *testing.T) {
	changing := formnav.FieldChangingEvent{FromIndex: 2, ToIndex: 3, FromID: "a", ToID: "b", Direction: formnav.DirectionForward}
	from, to := changing.Endpoints()
	assert.Equal(t, formnav.Endpoint{Index: 2, ID: "a"}, from)
	assert.Equal(t, formnav.Endpoint{Index: 3, ID: "b"}, to)

	changed := formnav.FieldChangedEvent{FieldIndex: 3, FieldID: "b", InputName: "x", SetID: "s", CardID: "c"}
	assert.Equal(t, to, changed.Position())
}

// validPayloads returns one valid payload of every kind, in AllKinds order.
func validPayloads() []formnav.Payload {
	return []formnav.Payload{
		formnav.CardChangingEvent{FromIndex: 0, ToIndex: 1, FromID: "personal", ToID: "address"},
		formnav.CardChangedEvent{CardIndex: 1, CardID: "address", CardTitle: "Address"},
		formnav.CardCompleteEvent{CardID: "personal", CardIndex: 0},
		formnav.GroupChangingEvent{FromIndex: 0, ToIndex: 1, FromID: "street", ToID: "city"},
		formnav.GroupChangedEvent{GroupIndex: 1, GroupID: "city", GroupTitle: "City", SetIndex: 0, SetID: "home"},
		formnav.GroupCompleteEvent{GroupID: "street", GroupIndex: 0},
		formnav.FieldChangingEvent{FromIndex: 2, ToIndex: 3, FromID: "a", ToID: "b", Direction: formnav.DirectionForward},
		formnav.FieldChangedEvent{
			FieldIndex: 3, FieldID: "b", InputName: "zip",
			SetIndex: 0, SetID: "home", CardIndex: 1, CardID: "address",
		},
		formnav.FieldCompleteEvent{FieldID: "a", FieldIndex: 2, InputName: "city"},
	}
}
