package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/atlaschat/internal/history"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	defer store.Close()

	// Unknown session
	_, err := store.Get(ctx, "nope")
	assert.ErrorIs(t, err, history.ErrSessionNotFound)

	// Append and read back
	err = store.Append(ctx, "s1",
		history.Message{Role: history.RoleHuman, Content: "move DE-3 to DONE"},
		history.Message{Role: history.RoleAI, Content: "Done."},
	)
	require.NoError(t, err)

	msgs, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, history.RoleHuman, msgs[0].Role)
	assert.Equal(t, "Done.", msgs[1].Content)

	// Returned slice is a copy
	msgs[0].Content = "mutated"
	again, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "move DE-3 to DONE", again[0].Content)

	// Sessions
	require.NoError(t, store.Append(ctx, "s2", history.Message{Role: history.RoleHuman, Content: "hi"}))
	ids, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)

	// Clear
	require.NoError(t, store.Clear(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, history.ErrSessionNotFound)

	// Clearing twice is fine
	require.NoError(t, store.Clear(ctx, "s1"))
}

func TestTruncate(t *testing.T) {
	msgs := []history.Message{
		{Role: history.RoleHuman, Content: "1"},
		{Role: history.RoleAI, Content: "2"},
		{Role: history.RoleHuman, Content: "3"},
	}

	assert.Len(t, history.Truncate(msgs, 0), 3)
	assert.Len(t, history.Truncate(msgs, 5), 3)

	kept := history.Truncate(msgs, 2)
	require.Len(t, kept, 2)
	assert.Equal(t, "2", kept[0].Content)
	assert.Equal(t, "3", kept[1].Content)
}
