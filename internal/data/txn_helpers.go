package data

import (
	"bytes"
	"fmt"
	"time"

	"wikid/internal/kv"
)

// findLockByPageTx scans the lock table for an entry targeting the page.
// Locks on drafts are only reachable this way; promoted pages also link
// the token from their index record.
func findLockByPageTx(tx *kv.Txn, pageID PageID) (*LockInfo, error) {
	var found *LockInfo
	err := tx.AscendRange(tableLockInfo, nil, nil, func(_, value []byte) (bool, error) {
		var lock LockInfo
		if err := decodeJSON(value, &lock); err != nil {
			return false, fmt.Errorf("failed to decode lock info: %w", err)
		}
		if lock.PageID == pageID {
			found = &lock
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// verifyPageLockTx fails with ErrPageLocked when the page holds a live
// lock. An expired lock is removed in place and the cleared index record
// is written back, so callers continue against an unlocked page.
func verifyPageLockTx(tx *kv.Txn, info *PageInfo, now time.Time) error {
	if info.LockToken == nil {
		return nil
	}

	lock, err := getLockInfo(tx, *info.LockToken)
	if err != nil {
		return err
	}
	if lock != nil && !lock.Expired(now) {
		return ErrPageLocked
	}

	if lock != nil {
		if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
			return err
		}
	}
	info.LockToken = nil
	return putPageInfo(tx, info)
}

// deleteDraftTx removes a draft, its path entry, its lock, and all of its
// assets' metadata. It returns the asset ids whose body files must be
// removed after the transaction commits.
func deleteDraftTx(tx *kv.Txn, draft *DraftInfo) ([]AssetID, error) {
	assetIDs, err := ownedAssetIDsTx(tx, draft.ID)
	if err != nil {
		return nil, err
	}

	for _, assetID := range assetIDs {
		info, err := getAssetInfo(tx, assetID)
		if err != nil {
			return nil, err
		}
		if info != nil {
			if _, err := tx.Delete(tableAssetLookup, assetLookupKey(draft.ID, info.FileName)); err != nil {
				return nil, err
			}
		}
		if _, err := tx.Delete(tableAssetInfo, assetID.Bytes()); err != nil {
			return nil, err
		}
	}
	if err := tx.MDeleteAll(tableAssetGroup, draft.ID.Bytes()); err != nil {
		return nil, err
	}

	lock, err := findLockByPageTx(tx, draft.ID)
	if err != nil {
		return nil, err
	}
	if lock != nil {
		if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Delete(tablePagePath, pathKey(draft.Path)); err != nil {
		return nil, err
	}
	if _, err := tx.Delete(tablePageIndex, draft.ID.Bytes()); err != nil {
		return nil, err
	}
	return assetIDs, nil
}

// ownedAssetIDsTx returns the asset ids attached to a page, ascending.
func ownedAssetIDsTx(tx *kv.Txn, pageID PageID) ([]AssetID, error) {
	vals, err := tx.MValues(tableAssetGroup, pageID.Bytes())
	if err != nil {
		return nil, err
	}
	ids := make([]AssetID, 0, len(vals))
	for _, val := range vals {
		id, err := assetIDFromBytes(val)
		if err != nil {
			return nil, fmt.Errorf("failed to decode asset id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// recursiveTarget is one page swept up by a recursive rename, delete or
// restore: the base page itself plus every descendant.
type recursiveTarget struct {
	id   PageID
	info *PageInfo
	path string
}

// collectRecursiveTargetsTx gathers the live page at basePath and every
// live page under it. A draft anywhere in the subtree, or a page holding a
// valid lock, aborts the whole operation with ErrPageLocked; expired locks
// are cleaned up in passing.
func collectRecursiveTargetsTx(tx *kv.Txn, basePath string, now time.Time) ([]recursiveTarget, error) {
	prefix := []byte(recursivePrefix(basePath))
	var targets []recursiveTarget

	appendTarget := func(path string, rawID []byte) error {
		id, err := pageIDFromBytes(rawID)
		if err != nil {
			return fmt.Errorf("failed to decode page id for %q: %w", path, err)
		}
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return fmt.Errorf("dangling path entry %q: %w", path, ErrPageNotFound)
		}
		if idx.IsDraft() {
			return ErrPageLocked
		}
		if err := verifyPageLockTx(tx, idx.Page, now); err != nil {
			return err
		}
		targets = append(targets, recursiveTarget{id: id, info: idx.Page, path: path})
		return nil
	}

	rawBase, err := tx.Get(tablePagePath, pathKey(basePath))
	if err != nil {
		return nil, err
	}
	if rawBase != nil {
		if err := appendTarget(basePath, rawBase); err != nil {
			return nil, err
		}
	}

	err = tx.AscendRange(tablePagePath, prefix, prefixEnd(prefix), func(key, value []byte) (bool, error) {
		if !bytes.HasPrefix(key, prefix) {
			return false, nil
		}
		if err := appendTarget(string(key), value); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// collectRecursiveDeletedTargetsTx gathers soft-deleted pages whose
// last-deleted path is basePath or sits under it.
func collectRecursiveDeletedTargetsTx(tx *kv.Txn, basePath string) ([]recursiveTarget, error) {
	prefix := []byte(recursivePrefix(basePath))
	var targets []recursiveTarget

	appendTarget := func(path string, rawID []byte) error {
		id, err := pageIDFromBytes(rawID)
		if err != nil {
			return fmt.Errorf("failed to decode page id for %q: %w", path, err)
		}
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil || idx.IsDraft() || !idx.Page.PathDeleted {
			return nil
		}
		targets = append(targets, recursiveTarget{id: id, info: idx.Page, path: path})
		return nil
	}

	vals, err := tx.MValues(tableDeletedPagePath, pathKey(basePath))
	if err != nil {
		return nil, err
	}
	for _, val := range vals {
		if err := appendTarget(basePath, val); err != nil {
			return nil, err
		}
	}

	err = tx.MAscendRange(tableDeletedPagePath, prefix, prefixEnd(prefix), func(key, val []byte) (bool, error) {
		if !bytes.HasPrefix(key, prefix) {
			return false, nil
		}
		if err := appendTarget(string(key), val); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return targets, nil
}

// softDeletePageTx releases the page's path, records it in the deleted
// multimap, soft-deletes owned assets, and drops any lock.
func softDeletePageTx(tx *kv.Txn, info *PageInfo) error {
	if info.LockToken != nil {
		if _, err := tx.Delete(tableLockInfo, info.LockToken.Bytes()); err != nil {
			return err
		}
		info.LockToken = nil
	}

	if _, err := tx.Delete(tablePagePath, pathKey(info.Path)); err != nil {
		return err
	}
	if err := tx.MPut(tableDeletedPagePath, pathKey(info.Path), info.ID.Bytes()); err != nil {
		return err
	}

	assetIDs, err := ownedAssetIDsTx(tx, info.ID)
	if err != nil {
		return err
	}
	for _, assetID := range assetIDs {
		asset, err := getAssetInfo(tx, assetID)
		if err != nil {
			return err
		}
		if asset == nil || asset.Deleted {
			continue
		}
		asset.Deleted = true
		if err := putAssetInfo(tx, asset); err != nil {
			return err
		}
	}

	info.PathDeleted = true
	return putPageInfo(tx, info)
}

// hardDeletePageTx removes the page outright: every revision, both path
// indexes, the lock, and the index record. Owned assets are soft-deleted
// and detached, leaving them as zombies reachable only by id.
func hardDeletePageTx(tx *kv.Txn, idx *PageIndex) error {
	if idx.IsDraft() {
		_, err := deleteDraftTx(tx, idx.Draft)
		return err
	}
	info := idx.Page

	if info.LockToken != nil {
		if _, err := tx.Delete(tableLockInfo, info.LockToken.Bytes()); err != nil {
			return err
		}
	}

	assetIDs, err := ownedAssetIDsTx(tx, info.ID)
	if err != nil {
		return err
	}
	for _, assetID := range assetIDs {
		asset, err := getAssetInfo(tx, assetID)
		if err != nil {
			return err
		}
		if asset == nil {
			continue
		}
		if _, err := tx.Delete(tableAssetLookup, assetLookupKey(info.ID, asset.FileName)); err != nil {
			return err
		}
		asset.Deleted = true
		asset.PageID = nil
		if err := putAssetInfo(tx, asset); err != nil {
			return err
		}
	}
	if err := tx.MDeleteAll(tableAssetGroup, info.ID.Bytes()); err != nil {
		return err
	}

	lo := sourceKey(info.ID, info.Earliest)
	hi := sourceKey(info.ID, info.Latest+1)
	if err := tx.DeleteRange(tablePageSource, lo, hi); err != nil {
		return err
	}

	if info.PathDeleted {
		if _, err := tx.MDelete(tableDeletedPagePath, pathKey(info.Path), info.ID.Bytes()); err != nil {
			return err
		}
	} else {
		if _, err := tx.Delete(tablePagePath, pathKey(info.Path)); err != nil {
			return err
		}
	}

	_, err = tx.Delete(tablePageIndex, info.ID.Bytes())
	return err
}
