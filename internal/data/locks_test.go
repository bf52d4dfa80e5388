package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLockConflicts(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	lock, err := store.AcquireLock(id, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, lock.PageID)

	_, err = store.AcquireLock(id, "bob")
	assert.ErrorIs(t, err, ErrPageLocked)

	_, err = store.AcquireLock(NewPageID(), "alice")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestExtendLockRotatesToken(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	lock, err := store.AcquireLock(id, "alice")
	require.NoError(t, err)
	first := lock.Token

	renewed, err := store.ExtendLock(id, first, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first, renewed.Token)

	// the old token is dead
	_, err = store.ExtendLock(id, first, "alice")
	assert.ErrorIs(t, err, ErrLockNotFound)
	_, err = store.ReleaseLock(id, first, "alice")
	assert.ErrorIs(t, err, ErrLockForbidden)

	// the rotated token works
	_, err = store.ReleaseLock(id, renewed.Token, "alice")
	require.NoError(t, err)

	live, _, err := store.GetLock(id)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestExtendLockWrongHolder(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	lock, err := store.AcquireLock(id, "alice")
	require.NoError(t, err)

	_, err = store.ExtendLock(id, lock.Token, "bob")
	assert.ErrorIs(t, err, ErrLockForbidden)
}

func TestLockExpiry(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	lock, err := store.AcquireLock(id, "alice")
	require.NoError(t, err)

	// move the clock past the TTL
	store.now = func() time.Time { return lock.Expire.Add(time.Second) }

	_, err = store.ExtendLock(id, lock.Token, "alice")
	assert.ErrorIs(t, err, ErrLockNotFound)

	// the expired lock is gone; the page is lockable again
	fresh, err := store.AcquireLock(id, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, lock.Token, fresh.Token)
}

func TestExpiredDraftLockDiscardsDraft(t *testing.T) {
	store := newTestStore(t)

	draft, lock, err := store.CreateDraft("/draft", "alice")
	require.NoError(t, err)

	store.now = func() time.Time { return lock.Expire.Add(time.Second) }

	live, _, err := store.GetLock(draft.ID)
	require.NoError(t, err)
	assert.Nil(t, live)

	_, err = store.GetPage(draft.ID)
	assert.ErrorIs(t, err, ErrPageNotFound)

	// the path is free again
	_, _, err = store.CreateDraft("/draft", "bob")
	require.NoError(t, err)
}

func TestCleanupExpiredLocks(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	lock, err := store.AcquireLock(id, "alice")
	require.NoError(t, err)
	_, _, err = store.CreateDraft("/draft", "alice")
	require.NoError(t, err)

	store.now = func() time.Time { return lock.Expire.Add(time.Second) }

	_, err = store.CleanupExpiredLocks()
	require.NoError(t, err)

	entries, _, err := store.ListLocks()
	require.NoError(t, err)
	assert.Empty(t, entries)

	// the page survives unlocked; the draft is gone
	idx, err := store.GetPage(id)
	require.NoError(t, err)
	assert.Nil(t, idx.Page.LockToken)
	_, err = store.ResolvePath("/draft")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestUnlockPage(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	_, err := store.UnlockPage(id)
	assert.ErrorIs(t, err, ErrLockNotFound)

	_, err = store.AcquireLock(id, "alice")
	require.NoError(t, err)

	_, err = store.UnlockPage(id)
	require.NoError(t, err)

	live, _, err := store.GetLock(id)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestDeleteLockByToken(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	lock, err := store.AcquireLock(id, "alice")
	require.NoError(t, err)

	require.NoError(t, store.DeleteLockByToken(lock.Token))

	live, _, err := store.GetLock(id)
	require.NoError(t, err)
	assert.Nil(t, live)

	err = store.DeleteLockByToken(lock.Token)
	assert.ErrorIs(t, err, ErrLockNotFound)
}
