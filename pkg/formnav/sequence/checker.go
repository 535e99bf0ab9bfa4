// Package sequence checks that navigation events arrive in a valid order.
//
// For each form and level, a changing event opens a transition and the next
// changed event at that level must close it: same target index and id, and,
// when the changed event records a cause, caused by that changing event.
// A changing event that is never followed by a changed event (a veto) is
// superseded by the next changing event. Complete events are independent
// and always accepted.
package sequence

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/formnav/pkg/formnav"
	"github.com/randalmurphal/formnav/pkg/formnav/event"
)

var (
	ErrChangedWithoutChanging = errors.New("changed event without a pending changing event")
	ErrEndpointMismatch       = formnav.ErrEndpointMismatch
	ErrCausationMismatch      = errors.New("changed event was not caused by the pending changing event")
)

// Violation reports an event that broke the ordering rules or carried an
// invalid payload.
type Violation struct {
	EventID string
	FormID  string
	Kind    string
	Err     error
}

func (v *Violation) Error() string {
	return fmt.Sprintf("sequence: form %s: event %s (%s): %v", v.FormID, v.EventID, v.Kind, v.Err)
}

func (v *Violation) Unwrap() error {
	return v.Err
}

// Pending is a transition that has started but not finished.
type Pending struct {
	FormID        string
	Level         formnav.Level
	EventID       string
	CorrelationID string
	From          formnav.Endpoint
	To            formnav.Endpoint
	Since         time.Time
}

// Checker tracks open transitions per form. It is safe for concurrent use.
type Checker struct {
	mu    sync.Mutex
	forms map[string]map[formnav.Level]Pending
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{forms: make(map[string]map[formnav.Level]Pending)}
}

// Observe records evt and reports a *Violation if it is out of order.
// A rejected event leaves the checker's state unchanged.
func (c *Checker) Observe(evt event.Event) error {
	payload, err := formnav.PayloadOf(evt)
	if err != nil {
		return c.violation(evt, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	level := payload.Kind().Level()
	switch p := payload.(type) {
	case formnav.TransitionPayload:
		from, to := p.Endpoints()
		open := c.forms[evt.FormID()]
		if open == nil {
			open = make(map[formnav.Level]Pending)
			c.forms[evt.FormID()] = open
		}
		open[level] = Pending{
			FormID:        evt.FormID(),
			Level:         level,
			EventID:       evt.ID(),
			CorrelationID: evt.CorrelationID(),
			From:          from,
			To:            to,
			Since:         evt.Timestamp(),
		}
		return nil

	case formnav.PositionPayload:
		if payload.Kind().Phase() != formnav.PhaseChanged {
			return nil
		}
		pending, ok := c.forms[evt.FormID()][level]
		if !ok {
			return c.violation(evt, ErrChangedWithoutChanging)
		}
		if at := p.Position(); at != pending.To {
			return c.violation(evt, fmt.Errorf("%w: expected %d/%q, got %d/%q",
				ErrEndpointMismatch, pending.To.Index, pending.To.ID, at.Index, at.ID))
		}
		if cause := evt.CausationID(); cause != "" && cause != pending.EventID {
			return c.violation(evt, fmt.Errorf("%w: expected %s, got %s",
				ErrCausationMismatch, pending.EventID, cause))
		}
		delete(c.forms[evt.FormID()], level)
		return nil
	}
	return nil
}

func (c *Checker) violation(evt event.Event, err error) error {
	return &Violation{EventID: evt.ID(), FormID: evt.FormID(), Kind: evt.Type(), Err: err}
}

var levelOrder = []formnav.Level{formnav.LevelCard, formnav.LevelGroup, formnav.LevelField}

// Pending returns the open transitions of a form, card level first.
func (c *Checker) Pending(formID string) []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Pending, 0, len(c.forms[formID]))
	for _, p := range c.forms[formID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return slices.Index(levelOrder, out[i].Level) < slices.Index(levelOrder, out[j].Level)
	})
	return out
}

// Forms returns the ids of forms with open transitions, sorted.
func (c *Checker) Forms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.forms))
	for id, open := range c.forms {
		if len(open) > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Reset forgets every open transition of a form.
func (c *Checker) Reset(formID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.forms, formID)
}

var _ formnav.Observer = (*Checker)(nil)
