// Package journal persists the ordered record of events each form emitted.
package journal

import (
	"context"
	"errors"
)

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores an entry at the end of its form's journal and returns the
	// sequence number assigned to it. Sequence numbers start at 1 per form.
	// Returns ErrDuplicate if an entry with the same event id exists.
	Append(ctx context.Context, entry Entry) (int64, error)

	// Get retrieves one entry.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, formID string, seq int64) (Entry, error)

	// List returns all entries of a form, ordered by sequence.
	// Returns an empty slice (not error) if the form has no entries.
	List(ctx context.Context, formID string) ([]Entry, error)

	// Forms returns the ids of forms that have entries, sorted.
	Forms(ctx context.Context) ([]string, error)

	// DeleteForm removes all entries of a form.
	// Returns nil if the form has no entries.
	DeleteForm(ctx context.Context, formID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for journal operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("journal entry not found")

	// ErrDuplicate indicates the event was already journaled.
	ErrDuplicate = errors.New("event already journaled")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)
