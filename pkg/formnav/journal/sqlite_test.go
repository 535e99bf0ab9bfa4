package journal_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/formnav/pkg/formnav/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	store1, err := journal.NewSQLiteStore(dbPath)
	require.NoError(t, err)

	evt := cardEvent("form-1", 4)
	_, err = store1.Append(ctx, entryFor(t, evt))
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	// Reopening the database keeps entries and the next sequence.
	store2, err := journal.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	got, err := store2.Get(ctx, "form-1", 1)
	require.NoError(t, err)
	assert.Equal(t, evt.ID(), got.EventID)

	seq, err := store2.Append(ctx, entryFor(t, cardEvent("form-1", 5)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	_, err = store2.Append(ctx, entryFor(t, evt))
	assert.ErrorIs(t, err, journal.ErrDuplicate)
}

func TestSQLiteStore_CorruptTimestamp(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	store, err := journal.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	_, err = store.Append(ctx, entryFor(t, cardEvent("form-1", 0)))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE journal_entries SET timestamp = 'yesterday'`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err = journal.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "form-1", 1)
	assert.ErrorContains(t, err, "timestamp")

	_, err = store.List(ctx, "form-1")
	assert.ErrorContains(t, err, "timestamp")
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := journal.NewSQLiteStore("/nonexistent/path/journal.db")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := journal.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_CanceledContext(t *testing.T) {
	store, err := journal.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Append(ctx, entryFor(t, cardEvent("form-1", 0)))
	assert.Error(t, err)
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, err := journal.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	const numGoroutines = 20
	const numOps = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			formID := "form-" + string(rune('a'+id%5))
			for j := 0; j < numOps; j++ {
				if j%2 == 0 {
					_, _ = store.Append(ctx, entryFor(t, cardEvent(formID, j)))
				} else {
					_, _ = store.List(ctx, formID)
				}
			}
		}(i)
	}

	wg.Wait()

	total := 0
	forms, err := store.Forms(ctx)
	require.NoError(t, err)
	for _, formID := range forms {
		entries, err := store.List(ctx, formID)
		require.NoError(t, err)
		for i, e := range entries {
			assert.Equal(t, int64(i+1), e.Seq)
		}
		total += len(entries)
	}
	assert.Equal(t, numGoroutines*numOps/2, total)
}
