package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftLifecycle(t *testing.T) {
	store := newTestStore(t)

	draft, lock, err := store.CreateDraft("/new", "alice")
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "/new", draft.Path)

	// the path is occupied while the draft exists
	_, _, err = store.CreateDraft("/new", "bob")
	assert.ErrorIs(t, err, ErrPageAlreadyExists)

	// a draft has no readable source
	_, err = store.GetSource(draft.ID, 0)
	assert.ErrorIs(t, err, ErrPageNotFound)

	// promotion requires the lock token
	_, err = store.PutPage(draft.ID, "# Hello", "alice", false, nil)
	assert.ErrorIs(t, err, ErrPageLocked)

	token := lock.Token
	result, err := store.PutPage(draft.ID, "# Hello", "alice", false, &token)
	require.NoError(t, err)
	assert.True(t, result.Promoted)
	assert.Equal(t, Revision(1), result.Revision)

	idx, err := store.GetPage(draft.ID)
	require.NoError(t, err)
	require.False(t, idx.IsDraft())
	assert.Equal(t, Revision(1), idx.Page.Latest)
	assert.Equal(t, Revision(1), idx.Page.Earliest)
	assert.Equal(t, []Revision{1}, idx.Page.RenameRevisions)

	// promotion released the lock
	released, _, err := store.GetLock(draft.ID)
	require.NoError(t, err)
	assert.Nil(t, released)
}

func TestDraftReleaseReturnsToPreCreationState(t *testing.T) {
	store := newTestStore(t)

	draft, lock, err := store.CreateDraft("/scratch", "alice")
	require.NoError(t, err)

	_, err = store.ReleaseLock(draft.ID, lock.Token, "alice")
	require.NoError(t, err)

	_, err = store.GetPage(draft.ID)
	assert.ErrorIs(t, err, ErrPageNotFound)

	// the path is free again
	_, _, err = store.CreateDraft("/scratch", "bob")
	require.NoError(t, err)
}

func TestPutAppendsRevisions(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/page", "alice", "v1")

	result, err := store.PutPage(id, "v2", "bob", false, nil)
	require.NoError(t, err)
	assert.Equal(t, Revision(2), result.Revision)
	assert.False(t, result.Promoted)

	src, err := store.GetSource(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "v2", src.Source)
	assert.Equal(t, Revision(2), src.Revision)

	src, err = store.GetSource(id, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", src.Source)

	_, err = store.GetSource(id, 3)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestPutOnLockedPageRequiresToken(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/locked", "alice", "v1")

	lock, err := store.AcquireLock(id, "bob")
	require.NoError(t, err)

	_, err = store.PutPage(id, "v2", "bob", false, nil)
	assert.ErrorIs(t, err, ErrPageLocked)

	wrong := NewLockToken()
	_, err = store.PutPage(id, "v2", "bob", false, &wrong)
	assert.ErrorIs(t, err, ErrLockForbidden)

	// holder mismatch fails even with the right token
	token := lock.Token
	_, err = store.PutPage(id, "v2", "mallory", false, &token)
	assert.ErrorIs(t, err, ErrLockForbidden)

	result, err := store.PutPage(id, "v2", "bob", false, &token)
	require.NoError(t, err)
	assert.Equal(t, Revision(2), result.Revision)

	// the successful write released the lock
	released, _, err := store.GetLock(id)
	require.NoError(t, err)
	assert.Nil(t, released)
}

func TestAmendRestrictedToLatestAuthor(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/amend", "alice", "v1")

	_, err := store.PutPage(id, "v2", "alice", false, nil)
	require.NoError(t, err)

	_, err = store.PutPage(id, "v2 fixed by bob", "bob", true, nil)
	assert.ErrorIs(t, err, ErrAmendForbidden)

	result, err := store.PutPage(id, "v2 fixed", "alice", true, nil)
	require.NoError(t, err)
	assert.Equal(t, Revision(2), result.Revision)

	src, err := store.GetSource(id, 2)
	require.NoError(t, err)
	assert.Equal(t, "v2 fixed", src.Source)

	idx, err := store.GetPage(id)
	require.NoError(t, err)
	assert.Equal(t, Revision(2), idx.Page.Latest)
}

func TestRenameConflictAndHistory(t *testing.T) {
	store := newTestStore(t)
	idA := createPage(t, store, "/a", "alice", "page a")
	createPage(t, store, "/b", "alice", "page b")

	_, err := store.Rename(idA, "/b", "alice", false)
	assert.ErrorIs(t, err, ErrPageAlreadyExists)

	pairs, err := store.Rename(idA, "/c", "alice", false)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "/a", pairs[0].From)
	assert.Equal(t, "/c", pairs[0].To)

	idx, err := store.GetPage(idA)
	require.NoError(t, err)
	assert.Equal(t, "/c", idx.Page.Path)
	assert.Equal(t, Revision(2), idx.Page.Latest)
	assert.Equal(t, []Revision{1, 2}, idx.Page.RenameRevisions)

	src, err := store.GetSource(idA, 2)
	require.NoError(t, err)
	require.NotNil(t, src.Rename)
	require.NotNil(t, src.Rename.From)
	assert.Equal(t, "/a", *src.Rename.From)
	assert.Equal(t, "/c", src.Rename.To)
	// content carries over unchanged
	assert.Equal(t, "page a", src.Source)

	// renaming back restores the mapping and appends another revision
	_, err = store.Rename(idA, "/a", "alice", false)
	require.NoError(t, err)
	resolved, err := store.ResolvePath("/a")
	require.NoError(t, err)
	assert.Equal(t, idA, resolved)

	path1, err := store.PathAtRevision(idA, 1)
	require.NoError(t, err)
	assert.Equal(t, "/a", path1)
	path2, err := store.PathAtRevision(idA, 2)
	require.NoError(t, err)
	assert.Equal(t, "/c", path2)
}

func TestRenameRecursiveSubtree(t *testing.T) {
	store := newTestStore(t)
	idTop := createPage(t, store, "/docs", "alice", "top")
	idChild := createPage(t, store, "/docs/child", "alice", "child")

	pairs, err := store.Rename(idTop, "/manual", "alice", true)
	require.NoError(t, err)
	assert.Len(t, pairs, 2)

	resolved, err := store.ResolvePath("/manual/child")
	require.NoError(t, err)
	assert.Equal(t, idChild, resolved)

	_, err = store.ResolvePath("/docs/child")
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestRenameIntoOwnSubtree(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/tree", "alice", "top")
	createPage(t, store, "/tree/leaf", "alice", "leaf")

	_, err := store.Rename(id, "/tree/leaf/deeper", "alice", true)
	assert.ErrorIs(t, err, ErrInvalidMoveDestination)
}

func TestRollbackAppends(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/roll", "alice", "v1")
	_, err := store.PutPage(id, "v2", "alice", false, nil)
	require.NoError(t, err)

	rev, err := store.Rollback(id, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, Revision(3), rev)

	src, err := store.GetSource(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "v1", src.Source)
	assert.Equal(t, Revision(3), src.Revision)

	// rolling back to the pre-rollback latest restores v2
	rev, err = store.Rollback(id, 2, "alice")
	require.NoError(t, err)
	assert.Equal(t, Revision(4), rev)
	src, err = store.GetSource(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "v2", src.Source)

	_, err = store.Rollback(id, 99, "alice")
	assert.ErrorIs(t, err, ErrInvalidRevision)
}

func TestCompactDropsHistory(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/compact", "alice", "v1")
	for _, source := range []string{"v2", "v3", "v4", "v5"} {
		_, err := store.PutPage(id, source, "alice", false, nil)
		require.NoError(t, err)
	}

	require.NoError(t, store.Compact(id, 3))

	_, err := store.GetSource(id, 2)
	assert.ErrorIs(t, err, ErrPageNotFound)
	src, err := store.GetSource(id, 3)
	require.NoError(t, err)
	assert.Equal(t, "v3", src.Source)

	idx, err := store.GetPage(id)
	require.NoError(t, err)
	assert.Equal(t, Revision(3), idx.Page.Earliest)
	assert.Equal(t, Revision(5), idx.Page.Latest)
	// the evicted rename revision is gone from the history list
	assert.Empty(t, idx.Page.RenameRevisions)

	_, err = store.Rollback(id, 2, "alice")
	assert.ErrorIs(t, err, ErrInvalidRevision)

	// compacting to the latest keeps exactly one revision
	require.NoError(t, store.Compact(id, 5))
	idx, err = store.GetPage(id)
	require.NoError(t, err)
	assert.Equal(t, idx.Page.Earliest, idx.Page.Latest)
}

func TestSoftDeleteAndUndelete(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/gone", "alice", "v1")
	_, err := store.PutPage(id, "v2", "alice", false, nil)
	require.NoError(t, err)

	_, err = store.DeletePage(id, "alice", nil, false)
	require.NoError(t, err)

	_, err = store.ResolvePath("/gone")
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = store.GetSource(id, 0)
	assert.ErrorIs(t, err, ErrPageDeleted)

	// the path is reusable while the old page sits in the deleted set
	createPage(t, store, "/gone", "bob", "replacement")
	ids, err := store.DeletedPageIDs("/gone")
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	// restore to a different path; no revision is appended
	require.NoError(t, store.Undelete(id, "/back", false, false))
	idx, err := store.GetPage(id)
	require.NoError(t, err)
	assert.Equal(t, "/back", idx.Page.Path)
	assert.False(t, idx.Page.PathDeleted)
	assert.Equal(t, Revision(2), idx.Page.Latest)

	// restoring a live page is a conflict
	err = store.Undelete(id, "/elsewhere", false, false)
	assert.ErrorIs(t, err, ErrPageAlreadyExists)
}

func TestUndeleteTargetOccupied(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/one", "alice", "v1")
	createPage(t, store, "/two", "alice", "v1")

	_, err := store.DeletePage(id, "alice", nil, false)
	require.NoError(t, err)

	err = store.Undelete(id, "/two", false, false)
	assert.ErrorIs(t, err, ErrPageAlreadyExists)
}

func TestRootPageProtected(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureRootPage("alice", "# Root"))

	id, err := store.ResolvePath(RootPagePath)
	require.NoError(t, err)

	_, err = store.DeletePage(id, "alice", nil, false)
	assert.ErrorIs(t, err, ErrRootProtected)

	_, err = store.Rename(id, "/moved-root", "alice", false)
	assert.ErrorIs(t, err, ErrRootProtected)

	// a second bootstrap is a no-op
	require.NoError(t, store.EnsureRootPage("bob", "# Other"))
	src, err := store.GetSource(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "# Root", src.Source)
}

func TestHardDeleteErasesEverything(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/erase", "alice", "v1")
	asset, err := store.CreateAsset(id, "pic.png", "image/png", 3, "alice", nil)
	require.NoError(t, err)

	affected, err := store.DeletePageHard(id, false)
	require.NoError(t, err)
	assert.Equal(t, []PageID{id}, affected)

	_, err = store.GetPage(id)
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = store.ResolvePath("/erase")
	assert.ErrorIs(t, err, ErrPageNotFound)

	// the asset survives as a zombie
	info, err := store.GetAsset(asset.ID)
	require.NoError(t, err)
	assert.True(t, info.IsZombie())
	assert.True(t, info.Deleted)
	assert.Nil(t, info.PageID)

	_, err = store.ResolvePageAsset(id, "pic.png")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestRecursiveDeleteBlockedByLockedDescendant(t *testing.T) {
	store := newTestStore(t)
	id := createPage(t, store, "/sub", "alice", "top")
	child := createPage(t, store, "/sub/leaf", "alice", "leaf")

	_, err := store.AcquireLock(child, "bob")
	require.NoError(t, err)

	_, err = store.DeletePage(id, "alice", nil, true)
	assert.ErrorIs(t, err, ErrPageLocked)
}

func TestLinkRefsCapturedOnPromotion(t *testing.T) {
	store := newTestStore(t)
	target := createPage(t, store, "/target", "alice", "target page")

	draft, lock, err := store.CreateDraft("/linker", "alice")
	require.NoError(t, err)
	token := lock.Token
	_, err = store.PutPage(draft.ID, "see [target](/target) and [missing](/nowhere)", "alice", false, &token)
	require.NoError(t, err)

	src, err := store.GetSource(draft.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, src.Rename)
	refs := src.Rename.LinkRefs
	require.Contains(t, refs, "/target")
	require.NotNil(t, refs["/target"])
	assert.Equal(t, target, *refs["/target"])
	// unresolved links are recorded without an id
	require.Contains(t, refs, "/nowhere")
	assert.Nil(t, refs["/nowhere"])
}

func TestListPages(t *testing.T) {
	store := newTestStore(t)
	createPage(t, store, "/l/a", "alice", "a")
	idB := createPage(t, store, "/l/b", "alice", "b")
	_, _, err := store.CreateDraft("/l/c", "alice")
	require.NoError(t, err)

	_, err = store.DeletePage(idB, "alice", nil, false)
	require.NoError(t, err)

	entries, err := store.ListPages("/l", false)
	require.NoError(t, err)
	require.Len(t, entries, 2) // live page + draft

	entries, err = store.ListPages("/l", true)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var deleted, drafts int
	for _, entry := range entries {
		if entry.Deleted {
			deleted++
		}
		if entry.Draft {
			drafts++
			assert.True(t, entry.Locked)
		}
	}
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 1, drafts)
}

func TestResolveParent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.EnsureRootPage("alice", "# Root"))
	rootID, err := store.ResolvePath(RootPagePath)
	require.NoError(t, err)
	docs := createPage(t, store, "/docs", "alice", "docs")
	createPage(t, store, "/docs/a/b", "alice", "deep")

	id, path, err := store.ResolveParent("/docs/a/b", true)
	require.NoError(t, err)
	assert.Equal(t, docs, id)
	assert.Equal(t, "/docs", path)

	_, _, err = store.ResolveParent("/docs/a/b", false)
	assert.ErrorIs(t, err, ErrPageNotFound)

	id, _, err = store.ResolveParent("/docs", false)
	require.NoError(t, err)
	assert.Equal(t, rootID, id)
}
