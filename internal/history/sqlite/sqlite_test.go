package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/atlaschat/internal/history"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(Options{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSqliteStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, history.ErrSessionNotFound)

	err = store.Append(ctx, "s1",
		history.Message{Role: history.RoleHuman, Content: "find the onboarding page"},
		history.Message{Role: history.RoleAI, Content: "Found it: Onboarding Guide"},
	)
	require.NoError(t, err)

	msgs, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "find the onboarding page", msgs[0].Content)
	assert.Equal(t, history.RoleAI, msgs[1].Role)

	require.NoError(t, store.Append(ctx, "s2", history.Message{Role: history.RoleHuman, Content: "hi"}))

	ids, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)

	require.NoError(t, store.Clear(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, history.ErrSessionNotFound)
}

func TestSqliteStoreOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i, content := range []string{"first", "second", "third"} {
		role := history.RoleHuman
		if i%2 == 1 {
			role = history.RoleAI
		}
		require.NoError(t, store.Append(ctx, "s1", history.Message{Role: role, Content: content}))
	}

	msgs, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
}
