package data

import (
	"encoding/json"
	"fmt"

	"wikid/internal/kv"
)

// Transaction-scoped accessors for the typed records. Every reader returns
// the zero pointer when the key is absent; callers decide whether absence
// is an error.

func decodeJSON(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

func getPageIndex(tx *kv.Txn, id PageID) (*PageIndex, error) {
	raw, err := tx.Get(tablePageIndex, id.Bytes())
	if err != nil || raw == nil {
		return nil, err
	}
	var idx PageIndex
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode page index: %w", err)
	}
	return &idx, nil
}

func putPageIndex(tx *kv.Txn, id PageID, idx *PageIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to encode page index: %w", err)
	}
	return tx.Put(tablePageIndex, id.Bytes(), raw)
}

func putPageInfo(tx *kv.Txn, info *PageInfo) error {
	return putPageIndex(tx, info.ID, &PageIndex{Kind: indexKindPage, Page: info})
}

func putDraftInfo(tx *kv.Txn, draft *DraftInfo) error {
	return putPageIndex(tx, draft.ID, &PageIndex{Kind: indexKindDraft, Draft: draft})
}

func getPageSource(tx *kv.Txn, id PageID, rev Revision) (*PageSource, error) {
	raw, err := tx.Get(tablePageSource, sourceKey(id, rev))
	if err != nil || raw == nil {
		return nil, err
	}
	var src PageSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, fmt.Errorf("failed to decode page source: %w", err)
	}
	return &src, nil
}

func putPageSource(tx *kv.Txn, id PageID, src *PageSource) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode page source: %w", err)
	}
	return tx.Put(tablePageSource, sourceKey(id, src.Revision), raw)
}

func getLockInfo(tx *kv.Txn, token LockToken) (*LockInfo, error) {
	raw, err := tx.Get(tableLockInfo, token.Bytes())
	if err != nil || raw == nil {
		return nil, err
	}
	var lock LockInfo
	if err := json.Unmarshal(raw, &lock); err != nil {
		return nil, fmt.Errorf("failed to decode lock info: %w", err)
	}
	return &lock, nil
}

func putLockInfo(tx *kv.Txn, lock *LockInfo) error {
	raw, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to encode lock info: %w", err)
	}
	return tx.Put(tableLockInfo, lock.Token.Bytes(), raw)
}

func getAssetInfo(tx *kv.Txn, id AssetID) (*AssetInfo, error) {
	raw, err := tx.Get(tableAssetInfo, id.Bytes())
	if err != nil || raw == nil {
		return nil, err
	}
	var info AssetInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode asset info: %w", err)
	}
	return &info, nil
}

func putAssetInfo(tx *kv.Txn, info *AssetInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode asset info: %w", err)
	}
	return tx.Put(tableAssetInfo, info.ID.Bytes(), raw)
}

func getUserInfo(tx *kv.Txn, id UserID) (*UserInfo, error) {
	raw, err := tx.Get(tableUserInfo, id.Bytes())
	if err != nil || raw == nil {
		return nil, err
	}
	var info UserInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &info, nil
}

func putUserInfo(tx *kv.Txn, info *UserInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode user info: %w", err)
	}
	return tx.Put(tableUserInfo, info.ID.Bytes(), raw)
}

// resolvePathTx looks a live path up in the path index.
func resolvePathTx(tx *kv.Txn, path string) (PageID, bool, error) {
	raw, err := tx.Get(tablePagePath, pathKey(path))
	if err != nil {
		return PageID{}, false, err
	}
	if raw == nil {
		return PageID{}, false, nil
	}
	id, err := pageIDFromBytes(raw)
	if err != nil {
		return PageID{}, false, fmt.Errorf("failed to decode page id for %q: %w", path, err)
	}
	return id, true, nil
}
