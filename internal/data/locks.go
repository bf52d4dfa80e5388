package data

import (
	"wikid/internal/kv"
)

// LockListEntry is one row of the admin lock listing, joined with the
// page path.
type LockListEntry struct {
	Lock LockInfo
	Path string
}

// AcquireLock issues a fresh lock on an unlocked page. Re-locking a locked
// page fails ErrPageLocked even for the holder.
func (s *Store) AcquireLock(id PageID, userName string) (*LockInfo, error) {
	now := s.now()
	var lock *LockInfo
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if !idx.IsDraft() && idx.Page.PathDeleted {
			return ErrPageDeleted
		}

		var existing *LockInfo
		if idx.IsDraft() {
			existing, err = findLockByPageTx(tx, id)
		} else if idx.Page.LockToken != nil {
			existing, err = getLockInfo(tx, *idx.Page.LockToken)
		}
		if err != nil {
			return err
		}
		if existing != nil {
			if !existing.Expired(now) {
				return ErrPageLocked
			}
			if _, err := tx.Delete(tableLockInfo, existing.Token.Bytes()); err != nil {
				return err
			}
		}

		lock = NewLockInfo(id, userName, s.lockTTL, now)
		if err := putLockInfo(tx, lock); err != nil {
			return err
		}
		if !idx.IsDraft() {
			idx.Page.LockToken = &lock.Token
			return putPageInfo(tx, idx.Page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// ExtendLock rotates the token and pushes the expiry out. The presented
// token must be the current one and the caller must be the holder; the old
// token is dead the moment this commits.
func (s *Store) ExtendLock(id PageID, token LockToken, userName string) (*LockInfo, error) {
	now := s.now()
	var renewed *LockInfo
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if !idx.IsDraft() && idx.Page.PathDeleted {
			return ErrPageDeleted
		}

		lock, err := getLockInfo(tx, token)
		if err != nil {
			return err
		}
		if lock == nil || lock.PageID != id {
			return ErrLockNotFound
		}
		if lock.Expired(now) {
			if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
				return err
			}
			if !idx.IsDraft() && idx.Page.LockToken != nil {
				idx.Page.LockToken = nil
				if err := putPageInfo(tx, idx.Page); err != nil {
					return err
				}
			}
			return ErrLockNotFound
		}
		if lock.UserName != userName {
			return ErrLockForbidden
		}

		if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
			return err
		}
		lock.Renew(s.lockTTL, now)
		if err := putLockInfo(tx, lock); err != nil {
			return err
		}
		if !idx.IsDraft() {
			idx.Page.LockToken = &lock.Token
			if err := putPageInfo(tx, idx.Page); err != nil {
				return err
			}
		}
		renewed = lock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renewed, nil
}

// ReleaseLock gives a lock up. Releasing a draft's lock discards the draft
// and its assets in the same transaction; the returned asset ids name body
// files to remove afterwards.
func (s *Store) ReleaseLock(id PageID, token LockToken, userName string) ([]AssetID, error) {
	now := s.now()
	var files []AssetID
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}

		lock, err := getLockInfo(tx, token)
		if err != nil {
			return err
		}
		if lock == nil || lock.PageID != id {
			return ErrLockForbidden
		}
		if lock.Expired(now) {
			if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
				return err
			}
			if idx.IsDraft() {
				files, err = deleteDraftTx(tx, idx.Draft)
				if err != nil {
					return err
				}
			} else if idx.Page.LockToken != nil {
				idx.Page.LockToken = nil
				if err := putPageInfo(tx, idx.Page); err != nil {
					return err
				}
			}
			return ErrLockNotFound
		}
		if lock.UserName != userName {
			return ErrLockForbidden
		}

		if idx.IsDraft() {
			files, err = deleteDraftTx(tx, idx.Draft)
			return err
		}
		if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
			return err
		}
		idx.Page.LockToken = nil
		return putPageInfo(tx, idx.Page)
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// GetLock returns the live lock on a page, or nil when unlocked. Expired
// locks are cleaned up in passing; an expired draft lock discards the
// draft, returning its asset files.
func (s *Store) GetLock(id PageID) (*LockInfo, []AssetID, error) {
	now := s.now()
	var lock *LockInfo
	var files []AssetID
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if !idx.IsDraft() && idx.Page.PathDeleted {
			return ErrPageDeleted
		}

		var existing *LockInfo
		if idx.IsDraft() {
			existing, err = findLockByPageTx(tx, id)
		} else if idx.Page.LockToken != nil {
			existing, err = getLockInfo(tx, *idx.Page.LockToken)
		}
		if err != nil || existing == nil {
			return err
		}

		if !existing.Expired(now) {
			lock = existing
			return nil
		}

		if _, err := tx.Delete(tableLockInfo, existing.Token.Bytes()); err != nil {
			return err
		}
		if idx.IsDraft() {
			files, err = deleteDraftTx(tx, idx.Draft)
			return err
		}
		idx.Page.LockToken = nil
		return putPageInfo(tx, idx.Page)
	})
	if err != nil {
		return nil, nil, err
	}
	return lock, files, nil
}

// CleanupExpiredLocks removes every expired lock, clearing index links and
// discarding drafts whose lock lapsed. Returns asset files of discarded
// drafts. This is the reaper's periodic pass.
func (s *Store) CleanupExpiredLocks() ([]AssetID, error) {
	now := s.now()
	var files []AssetID
	err := s.kv.Update(func(tx *kv.Txn) error {
		var expired []LockInfo
		err := tx.AscendRange(tableLockInfo, nil, nil, func(_, value []byte) (bool, error) {
			var lock LockInfo
			if err := decodeJSON(value, &lock); err != nil {
				return false, err
			}
			if lock.Expired(now) {
				expired = append(expired, lock)
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		for _, lock := range expired {
			if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
				return err
			}
			idx, err := getPageIndex(tx, lock.PageID)
			if err != nil {
				return err
			}
			if idx == nil {
				continue
			}
			if idx.IsDraft() {
				draftFiles, err := deleteDraftTx(tx, idx.Draft)
				if err != nil {
					return err
				}
				files = append(files, draftFiles...)
				continue
			}
			if idx.Page.LockToken != nil && *idx.Page.LockToken == lock.Token {
				idx.Page.LockToken = nil
				if err := putPageInfo(tx, idx.Page); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ListLocks returns every live lock joined with its page path, for the
// admin CLI. Expired locks are reaped first.
func (s *Store) ListLocks() ([]LockListEntry, []AssetID, error) {
	files, err := s.CleanupExpiredLocks()
	if err != nil {
		return nil, nil, err
	}

	var entries []LockListEntry
	err = s.kv.View(func(tx *kv.Txn) error {
		return tx.AscendRange(tableLockInfo, nil, nil, func(_, value []byte) (bool, error) {
			var lock LockInfo
			if err := decodeJSON(value, &lock); err != nil {
				return false, err
			}
			idx, err := getPageIndex(tx, lock.PageID)
			if err != nil {
				return false, err
			}
			entry := LockListEntry{Lock: lock}
			if idx != nil {
				if idx.IsDraft() {
					entry.Path = idx.Draft.Path
				} else {
					entry.Path = idx.Page.Path
				}
			}
			entries = append(entries, entry)
			return true, nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return entries, files, nil
}

// DeleteLockByToken force-removes a lock by its token, clearing the index
// link. Admin operation; the holder is not consulted.
func (s *Store) DeleteLockByToken(token LockToken) error {
	return s.kv.Update(func(tx *kv.Txn) error {
		lock, err := getLockInfo(tx, token)
		if err != nil {
			return err
		}
		if lock == nil {
			return ErrLockNotFound
		}
		if _, err := tx.Delete(tableLockInfo, lock.Token.Bytes()); err != nil {
			return err
		}
		idx, err := getPageIndex(tx, lock.PageID)
		if err != nil {
			return err
		}
		if idx != nil && !idx.IsDraft() && idx.Page.LockToken != nil && *idx.Page.LockToken == token {
			idx.Page.LockToken = nil
			return putPageInfo(tx, idx.Page)
		}
		return nil
	})
}

// UnlockPage force-releases whatever lock a page holds. Unlocking a draft
// discards it. Admin operation.
func (s *Store) UnlockPage(id PageID) ([]AssetID, error) {
	var files []AssetID
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if idx.IsDraft() {
			files, err = deleteDraftTx(tx, idx.Draft)
			return err
		}
		if idx.Page.LockToken == nil {
			return ErrLockNotFound
		}
		if _, err := tx.Delete(tableLockInfo, idx.Page.LockToken.Bytes()); err != nil {
			return err
		}
		idx.Page.LockToken = nil
		return putPageInfo(tx, idx.Page)
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
