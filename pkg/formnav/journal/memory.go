package journal

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryStore is an in-memory journal for tests and short-lived processes.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	forms  map[string][]Entry // formID -> entries in sequence order
	seen   map[string]struct{}
	closed bool
}

// NewMemoryStore creates a new in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		forms: make(map[string][]Entry),
		seen:  make(map[string]struct{}),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, entry Entry) (int64, error) {
	if err := entry.validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	if _, dup := m.seen[entry.EventID]; dup {
		return 0, ErrDuplicate
	}

	entries := m.forms[entry.FormID]
	entry.Seq = int64(len(entries)) + 1
	entry.Envelope = slices.Clone(entry.Envelope)

	m.forms[entry.FormID] = append(entries, entry)
	m.seen[entry.EventID] = struct{}{}
	return entry.Seq, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, formID string, seq int64) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Entry{}, ErrStoreClosed
	}

	entries := m.forms[formID]
	if seq < 1 || seq > int64(len(entries)) {
		return Entry{}, ErrNotFound
	}
	return clone(entries[seq-1]), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, formID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := m.forms[formID]
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = clone(e)
	}
	return out, nil
}

// Forms implements Store.
func (m *MemoryStore) Forms(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	ids := make([]string, 0, len(m.forms))
	for id := range m.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteForm implements Store.
func (m *MemoryStore) DeleteForm(_ context.Context, formID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	for _, e := range m.forms[formID] {
		delete(m.seen, e.EventID)
	}
	delete(m.forms, formID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.forms = nil
	m.seen = nil
	return nil
}

// Len returns the total number of entries across all forms.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, entries := range m.forms {
		count += len(entries)
	}
	return count
}

func clone(e Entry) Entry {
	e.Envelope = slices.Clone(e.Envelope)
	return e
}
