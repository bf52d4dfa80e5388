package data

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "wiki.db"), filepath.Join(dir, "assets"), 5*time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// createPage runs the full draft-then-promote flow and returns the page id.
func createPage(t *testing.T, store *Store, path, userName, source string) PageID {
	t.Helper()
	draft, lock, err := store.CreateDraft(path, userName)
	require.NoError(t, err)
	token := lock.Token
	result, err := store.PutPage(draft.ID, source, userName, false, &token)
	require.NoError(t, err)
	require.True(t, result.Promoted)
	require.Equal(t, Revision(1), result.Revision)
	return draft.ID
}
