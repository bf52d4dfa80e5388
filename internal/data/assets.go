package data

import (
	"wikid/internal/kv"
)

// AssetListEntry is one row of the admin asset listing, joined with the
// owning page's path. Path is empty for zombies.
type AssetListEntry struct {
	Info AssetInfo
	Path string
}

// CreateAsset records an uploaded asset's metadata. The caller stages the
// body to a temporary file first and moves it into place only after this
// commits. A soft-deleted asset occupying the same file name is displaced
// from the lookup; a live one is a conflict.
func (s *Store) CreateAsset(pageID PageID, fileName, mime string, size int64, userName string, token *LockToken) (*AssetInfo, error) {
	now := s.now()
	info := &AssetInfo{
		ID:        NewAssetID(),
		PageID:    &pageID,
		FileName:  fileName,
		Mime:      mime,
		Size:      size,
		UserName:  userName,
		Timestamp: s.timestamp(now),
	}
	err := s.kv.Update(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, pageID)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if !idx.IsDraft() {
			if idx.Page.PathDeleted {
				return ErrPageDeleted
			}
			if _, err := s.authenticateLockTx(tx, idx, token, userName, now); err != nil {
				return err
			}
		} else if token != nil {
			if _, err := s.authenticateLockTx(tx, idx, token, userName, now); err != nil {
				return err
			}
		}

		existingRaw, err := tx.Get(tableAssetLookup, assetLookupKey(pageID, fileName))
		if err != nil {
			return err
		}
		if existingRaw != nil {
			existingID, err := assetIDFromBytes(existingRaw)
			if err != nil {
				return err
			}
			existing, err := getAssetInfo(tx, existingID)
			if err != nil {
				return err
			}
			if existing != nil && !existing.Deleted {
				return ErrAssetAlreadyExists
			}
			// deleted occupant: free the name, keep the asset by id
			if _, err := tx.Delete(tableAssetLookup, assetLookupKey(pageID, fileName)); err != nil {
				return err
			}
		}

		if err := putAssetInfo(tx, info); err != nil {
			return err
		}
		if err := tx.Put(tableAssetLookup, assetLookupKey(pageID, fileName), info.ID.Bytes()); err != nil {
			return err
		}
		return tx.MPut(tableAssetGroup, pageID.Bytes(), info.ID.Bytes())
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GetAsset returns an asset's metadata by id.
func (s *Store) GetAsset(id AssetID) (*AssetInfo, error) {
	var info *AssetInfo
	err := s.kv.View(func(tx *kv.Txn) error {
		var err error
		info, err = getAssetInfo(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrAssetNotFound
	}
	return info, nil
}

// ResolvePageAsset returns the id of the live asset named fileName on a
// page.
func (s *Store) ResolvePageAsset(pageID PageID, fileName string) (AssetID, error) {
	var id AssetID
	err := s.kv.View(func(tx *kv.Txn) error {
		raw, err := tx.Get(tableAssetLookup, assetLookupKey(pageID, fileName))
		if err != nil {
			return err
		}
		if raw == nil {
			return ErrAssetNotFound
		}
		id, err = assetIDFromBytes(raw)
		return err
	})
	if err != nil {
		return AssetID{}, err
	}
	return id, nil
}

// ListPageAssets returns the non-deleted assets attached to a page.
func (s *Store) ListPageAssets(pageID PageID) ([]AssetInfo, error) {
	var infos []AssetInfo
	err := s.kv.View(func(tx *kv.Txn) error {
		ids, err := ownedAssetIDsTx(tx, pageID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			info, err := getAssetInfo(tx, id)
			if err != nil {
				return err
			}
			if info == nil || info.Deleted {
				continue
			}
			infos = append(infos, *info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// ListAssets returns every asset in the store, zombies included, joined
// with the owner's current path where one exists.
func (s *Store) ListAssets() ([]AssetListEntry, error) {
	var entries []AssetListEntry
	err := s.kv.View(func(tx *kv.Txn) error {
		return tx.AscendRange(tableAssetInfo, nil, nil, func(_, value []byte) (bool, error) {
			var info AssetInfo
			if err := decodeJSON(value, &info); err != nil {
				return false, err
			}
			entry := AssetListEntry{Info: info}
			if info.PageID != nil {
				idx, err := getPageIndex(tx, *info.PageID)
				if err != nil {
					return false, err
				}
				if idx != nil {
					if idx.IsDraft() {
						entry.Path = idx.Draft.Path
					} else {
						entry.Path = idx.Page.Path
					}
				}
			}
			entries = append(entries, entry)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteAsset soft-deletes an asset: the body stays on disk, the file name
// is freed for reuse.
func (s *Store) DeleteAsset(id AssetID) error {
	return s.kv.Update(func(tx *kv.Txn) error {
		info, err := getAssetInfo(tx, id)
		if err != nil {
			return err
		}
		if info == nil {
			return ErrAssetNotFound
		}
		if info.Deleted {
			return ErrAssetDeleted
		}
		if info.PageID != nil {
			if _, err := tx.Delete(tableAssetLookup, assetLookupKey(*info.PageID, info.FileName)); err != nil {
				return err
			}
		}
		info.Deleted = true
		return putAssetInfo(tx, info)
	})
}

// DeleteAssetHard removes an asset's metadata entirely. The caller removes
// the body file after commit.
func (s *Store) DeleteAssetHard(id AssetID) error {
	return s.kv.Update(func(tx *kv.Txn) error {
		info, err := getAssetInfo(tx, id)
		if err != nil {
			return err
		}
		if info == nil {
			return ErrAssetNotFound
		}
		if info.PageID != nil {
			if _, err := tx.Delete(tableAssetLookup, assetLookupKey(*info.PageID, info.FileName)); err != nil {
				return err
			}
			if _, err := tx.MDelete(tableAssetGroup, info.PageID.Bytes(), id.Bytes()); err != nil {
				return err
			}
		}
		_, err = tx.Delete(tableAssetInfo, id.Bytes())
		return err
	})
}

// UndeleteAsset revives a soft-deleted asset under its old file name, or a
// new one. Zombies must be reassigned with MoveAsset instead.
func (s *Store) UndeleteAsset(id AssetID, newName *string) error {
	return s.kv.Update(func(tx *kv.Txn) error {
		info, err := getAssetInfo(tx, id)
		if err != nil {
			return err
		}
		if info == nil {
			return ErrAssetNotFound
		}
		if !info.Deleted {
			return ErrAssetAlreadyExists
		}
		if info.PageID == nil {
			return ErrPageNotFound
		}

		fileName := info.FileName
		if newName != nil {
			fileName = *newName
		}
		occupied, err := tx.Get(tableAssetLookup, assetLookupKey(*info.PageID, fileName))
		if err != nil {
			return err
		}
		if occupied != nil {
			return ErrAssetAlreadyExists
		}

		info.FileName = fileName
		info.Deleted = false
		if err := putAssetInfo(tx, info); err != nil {
			return err
		}
		return tx.Put(tableAssetLookup, assetLookupKey(*info.PageID, fileName), id.Bytes())
	})
}

// MoveAsset reassigns an asset to another page, reviving zombies. Moving
// onto a soft-deleted page or over an existing file name requires force;
// a displaced asset is hard-deleted and its id returned so the caller can
// remove the body file.
func (s *Store) MoveAsset(id AssetID, dstPageID PageID, force bool) ([]AssetID, error) {
	var displaced []AssetID
	err := s.kv.Update(func(tx *kv.Txn) error {
		info, err := getAssetInfo(tx, id)
		if err != nil {
			return err
		}
		if info == nil {
			return ErrAssetNotFound
		}

		dstIdx, err := getPageIndex(tx, dstPageID)
		if err != nil {
			return err
		}
		if dstIdx == nil {
			return ErrPageNotFound
		}
		if !dstIdx.IsDraft() && dstIdx.Page.PathDeleted && !force {
			return ErrAssetMovePageDeleted
		}

		occupantRaw, err := tx.Get(tableAssetLookup, assetLookupKey(dstPageID, info.FileName))
		if err != nil {
			return err
		}
		if occupantRaw != nil {
			occupantID, err := assetIDFromBytes(occupantRaw)
			if err != nil {
				return err
			}
			if occupantID != id {
				if !force {
					return ErrAssetAlreadyExists
				}
				if _, err := tx.Delete(tableAssetLookup, assetLookupKey(dstPageID, info.FileName)); err != nil {
					return err
				}
				if _, err := tx.MDelete(tableAssetGroup, dstPageID.Bytes(), occupantID.Bytes()); err != nil {
					return err
				}
				if _, err := tx.Delete(tableAssetInfo, occupantID.Bytes()); err != nil {
					return err
				}
				displaced = append(displaced, occupantID)
			}
		}

		if info.PageID != nil {
			if _, err := tx.Delete(tableAssetLookup, assetLookupKey(*info.PageID, info.FileName)); err != nil {
				return err
			}
			if _, err := tx.MDelete(tableAssetGroup, info.PageID.Bytes(), id.Bytes()); err != nil {
				return err
			}
		}

		info.PageID = &dstPageID
		info.Deleted = false
		if err := putAssetInfo(tx, info); err != nil {
			return err
		}
		if err := tx.Put(tableAssetLookup, assetLookupKey(dstPageID, info.FileName), id.Bytes()); err != nil {
			return err
		}
		return tx.MPut(tableAssetGroup, dstPageID.Bytes(), id.Bytes())
	})
	if err != nil {
		return nil, err
	}
	return displaced, nil
}
