package data

import (
	"embed"
	"encoding/binary"
)

// Table names in the KV store. kv_* tables are unique-key, kvm_* tables
// are multimaps.
const (
	tablePagePath        = "kv_page_path"         // path -> page id
	tableDeletedPagePath = "kvm_deleted_page_path" // path -> set of page ids
	tablePageIndex       = "kv_page_index"        // page id -> PageIndex
	tablePageSource      = "kv_page_source"       // page id + revision -> PageSource
	tableLockInfo        = "kv_lock_info"         // lock token -> LockInfo
	tableAssetInfo       = "kv_asset_info"        // asset id -> AssetInfo
	tableAssetLookup     = "kv_asset_lookup"      // page id + file name -> asset id
	tableAssetGroup      = "kvm_asset_group"      // page id -> set of asset ids
	tableUserID          = "kv_user_id"           // user name -> user id
	tableUserInfo        = "kv_user_info"         // user id -> UserInfo
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RootPagePath is the path of the bootstrap root page. The root can never
// be renamed or deleted.
const RootPagePath = "/"

// TimestampLayout is the storage format for revision and asset timestamps:
// local time, second precision, no zone.
const TimestampLayout = "2006-01-02T15:04:05"

func pathKey(path string) []byte {
	return []byte(path)
}

func nameKey(name string) []byte {
	return []byte(name)
}

// sourceKey orders revisions of one page contiguously after the fixed-width
// page id prefix.
func sourceKey(id PageID, rev Revision) []byte {
	key := make([]byte, 0, 20)
	key = append(key, id.Bytes()...)
	var revBytes [4]byte
	binary.BigEndian.PutUint32(revBytes[:], uint32(rev))
	return append(key, revBytes[:]...)
}

// assetLookupKey is the page id followed by the file name; the id is fixed
// width so no separator is needed.
func assetLookupKey(id PageID, fileName string) []byte {
	key := make([]byte, 0, 16+len(fileName))
	key = append(key, id.Bytes()...)
	return append(key, fileName...)
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix, or nil when no such bound exists (all 0xFF).
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
