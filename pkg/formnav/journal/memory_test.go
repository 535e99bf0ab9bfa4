package journal_test

import (
	"context"
	"sync"
	"testing"

	"github.com/randalmurphal/formnav/pkg/formnav/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Len(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemoryStore()
	defer store.Close()

	assert.Equal(t, 0, store.Len())

	_, err := store.Append(ctx, entryFor(t, cardEvent("form-1", 0)))
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	_, err = store.Append(ctx, entryFor(t, cardEvent("form-1", 1)))
	require.NoError(t, err)
	_, err = store.Append(ctx, entryFor(t, cardEvent("form-2", 0)))
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())

	require.NoError(t, store.DeleteForm(ctx, "form-1"))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := journal.NewMemoryStore()
	defer store.Close()

	const numGoroutines = 100
	const numOps = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()

			formID := "form-" + string(rune('a'+id%26))
			for j := 0; j < numOps; j++ {
				switch j % 3 {
				case 0:
					_, _ = store.Append(ctx, entryFor(t, cardEvent(formID, j)))
				case 1:
					_, _ = store.List(ctx, formID)
				case 2:
					_, _ = store.Forms(ctx)
				}
			}
		}(i)
	}

	wg.Wait()

	// Sequences stay dense under concurrent appends.
	forms, err := store.Forms(ctx)
	require.NoError(t, err)
	for _, formID := range forms {
		entries, err := store.List(ctx, formID)
		require.NoError(t, err)
		for i, e := range entries {
			assert.Equal(t, int64(i+1), e.Seq)
		}
	}
}
