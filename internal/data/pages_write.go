package data

import (
	"strings"
	"time"

	"wikid/internal/kv"
)

// PutResult reports what a source write did.
type PutResult struct {
	PageID   PageID
	Revision Revision
	Promoted bool
}

// RenamePair is one page moved by a rename.
type RenamePair struct {
	ID   PageID
	From string
	To   string
}

// SoftDeleteResult reports the outcome of a delete. RemovedAssetFiles is
// non-empty only when a draft (whose assets are hard-deleted) was
// discarded; Affected lists every page whose state changed.
type SoftDeleteResult struct {
	DraftDeleted      bool
	RemovedAssetFiles []AssetID
	Affected          []PageID
}

// CreatePage creates a page directly at revision 1. Used by the root
// bootstrap and the CLI; the REST flow goes through drafts instead.
func (s *Store) CreatePage(path, userName, source string) (PageID, error) {
	path, err := NormalizePath(path)
	if err != nil {
		return PageID{}, err
	}

	id := NewPageID()
	now := s.now()
	err = s.kv.Update(func(tx *kv.Txn) error {
		if _, occupied, err := resolvePathTx(tx, path); err != nil {
			return err
		} else if occupied {
			return ErrPageAlreadyExists
		}

		linkRefs, err := buildLinkRefsTx(tx, path, source)
		if err != nil {
			return err
		}

		info := NewPageInfo(id, path)
		if err := putPageInfo(tx, info); err != nil {
			return err
		}
		src := &PageSource{
			Revision:  1,
			Timestamp: s.timestamp(now),
			UserName:  userName,
			Rename:    &RenameInfo{To: path, LinkRefs: linkRefs},
			Source:    source,
		}
		if err := putPageSource(tx, id, src); err != nil {
			return err
		}
		return tx.Put(tablePagePath, pathKey(path), id.Bytes())
	})
	if err != nil {
		return PageID{}, err
	}
	return id, nil
}

// CreateDraft reserves a path for a page-in-creation and issues its lock,
// all in one transaction.
func (s *Store) CreateDraft(path, userName string) (*DraftInfo, *LockInfo, error) {
	path, err := NormalizePath(path)
	if err != nil {
		return nil, nil, err
	}

	draft := &DraftInfo{ID: NewPageID(), Path: path}
	now := s.now()
	lock := NewLockInfo(draft.ID, userName, s.lockTTL, now)
	err = s.kv.Update(func(tx *kv.Txn) error {
		if _, occupied, err := resolvePathTx(tx, path); err != nil {
			return err
		} else if occupied {
			return ErrPageAlreadyExists
		}
		if err := putDraftInfo(tx, draft); err != nil {
			return err
		}
		if err := tx.Put(tablePagePath, pathKey(path), draft.ID.Bytes()); err != nil {
			return err
		}
		return putLockInfo(tx, lock)
	})
	if err != nil {
		return nil, nil, err
	}
	return draft, lock, nil
}

// authenticateLockTx enforces the lock ladder for a mutating operation.
// Unlocked pages pass. A valid lock demands the matching token and holder;
// a missing token fails ErrPageLocked, a mismatch ErrLockForbidden. Expired
// locks are cleaned up; on drafts an expired lock fails ErrLockNotFound
// since the draft is about to be reaped.
func (s *Store) authenticateLockTx(tx *kv.Txn, idx *PageIndex, token *LockToken, userName string, now time.Time) (*LockInfo, error) {
	var lock *LockInfo
	var err error
	if idx.IsDraft() {
		lock, err = findLockByPageTx(tx, idx.Draft.ID)
	} else if idx.Page.LockToken != nil {
		lock, err = getLockInfo(tx, *idx.Page.LockToken)
	}
	if err != nil {
		return nil, err
	}
	if lock == nil {
		if idx.IsDraft() {
			return nil, ErrLockNotFound
		}
		return nil, nil
	}

	if lock.Expired(now) {
		if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
			return nil, err
		}
		if idx.IsDraft() {
			return nil, ErrLockNotFound
		}
		idx.Page.LockToken = nil
		if err := putPageInfo(tx, idx.Page); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if token == nil {
		return nil, ErrPageLocked
	}
	if *token != lock.Token || userName != lock.UserName {
		return nil, ErrLockForbidden
	}
	return lock, nil
}

// releaseLockTx removes a held lock and clears the index link.
func releaseLockTx(tx *kv.Txn, idx *PageIndex, lock *LockInfo) error {
	if lock == nil {
		return nil
	}
	if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
		return err
	}
	if !idx.IsDraft() && idx.Page.LockToken != nil {
		idx.Page.LockToken = nil
		return putPageInfo(tx, idx.Page)
	}
	return nil
}

// PutPage writes a page source. Drafts are promoted to revision 1; pages
// get an appended revision, or an in-place amend of the latest when amend
// is set and the caller authored it. A consumed lock is released on
// commit.
func (s *Store) PutPage(id PageID, source, userName string, amend bool, token *LockToken) (*PutResult, error) {
	now := s.now()
	var result *PutResult
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}

		if idx.IsDraft() {
			if amend {
				return ErrAmendForbidden
			}
			lock, err := s.authenticateLockTx(tx, idx, token, userName, now)
			if err != nil {
				return err
			}
			if err := releaseLockTx(tx, idx, lock); err != nil {
				return err
			}

			linkRefs, err := buildLinkRefsTx(tx, idx.Draft.Path, source)
			if err != nil {
				return err
			}
			info := NewPageInfo(id, idx.Draft.Path)
			if err := putPageInfo(tx, info); err != nil {
				return err
			}
			src := &PageSource{
				Revision:  1,
				Timestamp: s.timestamp(now),
				UserName:  userName,
				Rename:    &RenameInfo{To: info.Path, LinkRefs: linkRefs},
				Source:    source,
			}
			if err := putPageSource(tx, id, src); err != nil {
				return err
			}
			result = &PutResult{PageID: id, Revision: 1, Promoted: true}
			return nil
		}

		info := idx.Page
		if info.PathDeleted {
			return ErrPageDeleted
		}

		lock, err := s.authenticateLockTx(tx, idx, token, userName, now)
		if err != nil {
			return err
		}

		if amend {
			latest, err := getPageSource(tx, id, info.Latest)
			if err != nil {
				return err
			}
			if latest == nil {
				return ErrInvalidRevision
			}
			if latest.UserName != userName {
				return ErrAmendForbidden
			}
			latest.Source = source
			latest.Timestamp = s.timestamp(now)
			if err := putPageSource(tx, id, latest); err != nil {
				return err
			}
			if err := releaseLockTx(tx, idx, lock); err != nil {
				return err
			}
			result = &PutResult{PageID: id, Revision: info.Latest}
			return nil
		}

		rev := info.Latest + 1
		src := &PageSource{
			Revision:  rev,
			Timestamp: s.timestamp(now),
			UserName:  userName,
			Source:    source,
		}
		if err := putPageSource(tx, id, src); err != nil {
			return err
		}
		info.Latest = rev
		if err := putPageInfo(tx, info); err != nil {
			return err
		}
		if err := releaseLockTx(tx, idx, lock); err != nil {
			return err
		}
		result = &PutResult{PageID: id, Revision: rev}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePage soft-deletes a page, or discards it entirely when it is still
// a draft. With recursive set, the whole live subtree is deleted in the
// same transaction; a locked descendant aborts everything.
func (s *Store) DeletePage(id PageID, userName string, token *LockToken, recursive bool) (*SoftDeleteResult, error) {
	now := s.now()
	result := &SoftDeleteResult{}
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}

		if idx.IsDraft() {
			if _, err := s.authenticateLockTx(tx, idx, token, userName, now); err != nil {
				return err
			}
			files, err := deleteDraftTx(tx, idx.Draft)
			if err != nil {
				return err
			}
			result.DraftDeleted = true
			result.RemovedAssetFiles = files
			return nil
		}

		info := idx.Page
		if info.PathDeleted {
			return ErrPageDeleted
		}
		if info.Path == RootPagePath {
			return ErrRootProtected
		}

		lock, err := s.authenticateLockTx(tx, idx, token, userName, now)
		if err != nil {
			return err
		}
		if err := releaseLockTx(tx, idx, lock); err != nil {
			return err
		}

		if !recursive {
			if err := softDeletePageTx(tx, info); err != nil {
				return err
			}
			result.Affected = append(result.Affected, id)
			return nil
		}

		targets, err := collectRecursiveTargetsTx(tx, info.Path, now)
		if err != nil {
			return err
		}
		for _, target := range targets {
			if err := softDeletePageTx(tx, target.info); err != nil {
				return err
			}
			result.Affected = append(result.Affected, target.id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeletePageHard removes a page and its history permanently, making owned
// assets zombies. Recursive covers the live subtree.
func (s *Store) DeletePageHard(id PageID, recursive bool) ([]PageID, error) {
	now := s.now()
	var affected []PageID
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if !idx.IsDraft() && idx.Page.Path == RootPagePath && !idx.Page.PathDeleted {
			return ErrRootProtected
		}

		if !recursive || idx.IsDraft() || idx.Page.PathDeleted {
			if err := hardDeletePageTx(tx, idx); err != nil {
				return err
			}
			affected = append(affected, id)
			return nil
		}

		targets, err := collectRecursiveTargetsTx(tx, idx.Page.Path, now)
		if err != nil {
			return err
		}
		for _, target := range targets {
			if err := hardDeletePageTx(tx, &PageIndex{Kind: indexKindPage, Page: target.info}); err != nil {
				return err
			}
			affected = append(affected, target.id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// Rename moves a page to a new path, appending a revision that records the
// path change. A destination ending in '/' keeps the source's leaf name.
// With recursive set, every live descendant moves in the same transaction.
func (s *Store) Rename(id PageID, newPath, userName string, recursive bool) ([]RenamePair, error) {
	now := s.now()
	var pairs []RenamePair
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if idx.IsDraft() {
			return ErrPageLocked
		}
		info := idx.Page
		if info.PathDeleted {
			return ErrPageDeleted
		}
		if info.Path == RootPagePath {
			return ErrRootProtected
		}

		dst := newPath
		if strings.HasSuffix(dst, "/") {
			dst += pathSuffix(info.Path)
		}
		dst, err = NormalizePath(dst)
		if err != nil {
			return err
		}
		if dst == info.Path {
			return nil
		}
		if strings.HasPrefix(dst, recursivePrefix(info.Path)) {
			return ErrInvalidMoveDestination
		}

		var targets []recursiveTarget
		if recursive {
			targets, err = collectRecursiveTargetsTx(tx, info.Path, now)
			if err != nil {
				return err
			}
		} else {
			if err := verifyPageLockTx(tx, info, now); err != nil {
				return err
			}
			targets = []recursiveTarget{{id: id, info: info, path: info.Path}}
		}

		oldPrefix := recursivePrefix(info.Path)
		newPrefix := recursivePrefix(dst)
		targetIDs := make(map[PageID]bool, len(targets))
		for _, target := range targets {
			targetIDs[target.id] = true
		}

		// Conflict scan before any mutation so the transaction fails whole.
		for _, target := range targets {
			targetDst := dst
			if target.path != info.Path {
				targetDst = newPrefix + strings.TrimPrefix(target.path, oldPrefix)
			}
			occupant, occupied, err := resolvePathTx(tx, targetDst)
			if err != nil {
				return err
			}
			if occupied && !targetIDs[occupant] {
				return ErrPageAlreadyExists
			}
		}

		for _, target := range targets {
			targetDst := dst
			if target.path != info.Path {
				targetDst = newPrefix + strings.TrimPrefix(target.path, oldPrefix)
			}

			latest, err := getPageSource(tx, target.id, target.info.Latest)
			if err != nil {
				return err
			}
			if latest == nil {
				return ErrInvalidRevision
			}
			linkRefs, err := buildLinkRefsTx(tx, targetDst, latest.Source)
			if err != nil {
				return err
			}

			from := target.path
			rev := target.info.Latest + 1
			src := &PageSource{
				Revision:  rev,
				Timestamp: s.timestamp(now),
				UserName:  userName,
				Rename:    &RenameInfo{From: &from, To: targetDst, LinkRefs: linkRefs},
				Source:    latest.Source,
			}
			if err := putPageSource(tx, target.id, src); err != nil {
				return err
			}

			target.info.Latest = rev
			target.info.PushRenameRevision(rev)
			target.info.Path = targetDst
			if err := putPageInfo(tx, target.info); err != nil {
				return err
			}

			if _, err := tx.Delete(tablePagePath, pathKey(target.path)); err != nil {
				return err
			}
			if err := tx.Put(tablePagePath, pathKey(targetDst), target.id.Bytes()); err != nil {
				return err
			}
			pairs = append(pairs, RenamePair{ID: target.id, From: target.path, To: targetDst})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

// Rollback appends a new revision whose source equals the target
// revision's. History only grows; nothing is moved or erased.
func (s *Store) Rollback(id PageID, target Revision, userName string) (Revision, error) {
	now := s.now()
	var newRev Revision
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if idx.IsDraft() {
			return ErrPageNotFound
		}
		info := idx.Page
		if info.PathDeleted {
			return ErrPageDeleted
		}
		if err := verifyPageLockTx(tx, info, now); err != nil {
			return err
		}
		if target < info.Earliest || target > info.Latest {
			return ErrInvalidRevision
		}

		old, err := getPageSource(tx, id, target)
		if err != nil {
			return err
		}
		if old == nil {
			return ErrInvalidRevision
		}

		newRev = info.Latest + 1
		src := &PageSource{
			Revision:  newRev,
			Timestamp: s.timestamp(now),
			UserName:  userName,
			Source:    old.Source,
		}
		if err := putPageSource(tx, id, src); err != nil {
			return err
		}
		info.Latest = newRev
		return putPageInfo(tx, info)
	})
	if err != nil {
		return 0, err
	}
	return newRev, nil
}

// Compact discards revisions below keepFrom and advances the earliest
// retained revision. Rename history entries on evicted revisions are
// dropped with them.
func (s *Store) Compact(id PageID, keepFrom Revision) error {
	now := s.now()
	return s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil || idx.IsDraft() {
			return ErrPageNotFound
		}
		info := idx.Page
		if info.PathDeleted {
			return ErrPageDeleted
		}
		if err := verifyPageLockTx(tx, info, now); err != nil {
			return err
		}
		if keepFrom < info.Earliest || keepFrom > info.Latest {
			return ErrInvalidRevision
		}
		if keepFrom == info.Earliest {
			return nil
		}

		lo := sourceKey(id, info.Earliest)
		hi := sourceKey(id, keepFrom)
		if err := tx.DeleteRange(tablePageSource, lo, hi); err != nil {
			return err
		}
		info.Earliest = keepFrom
		info.DropRenameRevisionsBelow(keepFrom)
		return putPageInfo(tx, info)
	})
}

// Undelete restores a soft-deleted page at targetPath without appending a
// revision. With recursive set, soft-deleted descendants of the old path
// are reattached preserving their relative paths. withAssets also clears
// the deleted flag on owned assets.
func (s *Store) Undelete(id PageID, targetPath string, recursive, withAssets bool) error {
	targetPath, err := NormalizePath(targetPath)
	if err != nil {
		return err
	}
	return s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil || idx.IsDraft() {
			return ErrPageNotFound
		}
		info := idx.Page
		if !info.PathDeleted {
			return ErrPageAlreadyExists
		}

		oldPath := info.Path
		restore := func(target *PageInfo, fromPath, toPath string) error {
			if _, occupied, err := resolvePathTx(tx, toPath); err != nil {
				return err
			} else if occupied {
				return ErrPageAlreadyExists
			}
			if _, err := tx.MDelete(tableDeletedPagePath, pathKey(fromPath), target.ID.Bytes()); err != nil {
				return err
			}
			target.Path = toPath
			target.PathDeleted = false
			if err := putPageInfo(tx, target); err != nil {
				return err
			}
			if err := tx.Put(tablePagePath, pathKey(toPath), target.ID.Bytes()); err != nil {
				return err
			}
			if !withAssets {
				return nil
			}
			assetIDs, err := ownedAssetIDsTx(tx, target.ID)
			if err != nil {
				return err
			}
			for _, assetID := range assetIDs {
				asset, err := getAssetInfo(tx, assetID)
				if err != nil {
					return err
				}
				if asset == nil || !asset.Deleted {
					continue
				}
				asset.Deleted = false
				if err := putAssetInfo(tx, asset); err != nil {
					return err
				}
			}
			return nil
		}

		if err := restore(info, oldPath, targetPath); err != nil {
			return err
		}
		if !recursive {
			return nil
		}

		descendants, err := collectRecursiveDeletedTargetsTx(tx, oldPath)
		if err != nil {
			return err
		}
		oldPrefix := recursivePrefix(oldPath)
		newPrefix := recursivePrefix(targetPath)
		for _, target := range descendants {
			if target.id == id {
				continue
			}
			toPath := newPrefix + strings.TrimPrefix(target.path, oldPrefix)
			if err := restore(target.info, target.path, toPath); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteDraft discards a draft regardless of its lock. Used by admin
// unlock and the reaper; returns asset body files to remove.
func (s *Store) DeleteDraft(id PageID) ([]AssetID, error) {
	var files []AssetID
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if !idx.IsDraft() {
			return ErrPageNotFound
		}
		files, err = deleteDraftTx(tx, idx.Draft)
		return err
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
