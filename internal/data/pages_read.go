package data

import (
	"bytes"
	"strings"
	"time"

	"wikid/internal/kv"
)

// PageListEntry is one row of a page listing, joined with the latest
// revision's authorship.
type PageListEntry struct {
	ID        PageID
	Path      string
	Deleted   bool
	Draft     bool
	Locked    bool
	Latest    Revision
	Timestamp string
	UserName  string
}

// RevisionMeta is the per-revision header shown by the meta endpoint.
type RevisionMeta struct {
	Revision  Revision
	Timestamp string
	UserName  string
	RenamedTo *string
}

// RevisionText is one revision's indexable content.
type RevisionText struct {
	Revision Revision
	Source   string
	Latest   bool
	Deleted  bool
}

// GetPage returns the index record for a page id.
func (s *Store) GetPage(id PageID) (*PageIndex, error) {
	var idx *PageIndex
	err := s.kv.View(func(tx *kv.Txn) error {
		var err error
		idx, err = getPageIndex(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, ErrPageNotFound
	}
	return idx, nil
}

// GetSource returns one revision of a page, the latest when rev is 0.
// Drafts have no revisions and soft-deleted pages are gone for readers.
func (s *Store) GetSource(id PageID, rev Revision) (*PageSource, error) {
	var src *PageSource
	err := s.kv.View(func(tx *kv.Txn) error {
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
		if rev == 0 {
			rev = info.Latest
		}
		if rev < info.Earliest || rev > info.Latest {
			return ErrPageNotFound
		}
		src, err = getPageSource(tx, id, rev)
		if err != nil {
			return err
		}
		if src == nil {
			return ErrPageNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return src, nil
}

// ResolvePath returns the id of the live page at path.
func (s *Store) ResolvePath(path string) (PageID, error) {
	var id PageID
	err := s.kv.View(func(tx *kv.Txn) error {
		resolved, found, err := resolvePathTx(tx, path)
		if err != nil {
			return err
		}
		if !found {
			return ErrPageNotFound
		}
		id = resolved
		return nil
	})
	if err != nil {
		return PageID{}, err
	}
	return id, nil
}

// ListPages enumerates live pages (and drafts) whose path starts with
// prefix, in path order. With withDeleted, soft-deleted pages whose
// last-deleted path matches are appended.
func (s *Store) ListPages(prefix string, withDeleted bool) ([]PageListEntry, error) {
	now := s.now()
	var entries []PageListEntry
	err := s.kv.View(func(tx *kv.Txn) error {
		prefixBytes := []byte(prefix)
		err := tx.AscendRange(tablePagePath, prefixBytes, prefixEnd(prefixBytes), func(key, value []byte) (bool, error) {
			if !bytes.HasPrefix(key, prefixBytes) {
				return false, nil
			}
			entry, err := s.listEntryTx(tx, string(key), value, false, now)
			if err != nil {
				return false, err
			}
			if entry != nil {
				entries = append(entries, *entry)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		if !withDeleted {
			return nil
		}
		return tx.MAscendRange(tableDeletedPagePath, prefixBytes, prefixEnd(prefixBytes), func(key, val []byte) (bool, error) {
			if !bytes.HasPrefix(key, prefixBytes) {
				return false, nil
			}
			entry, err := s.listEntryTx(tx, string(key), val, true, now)
			if err != nil {
				return false, err
			}
			if entry != nil {
				entries = append(entries, *entry)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// listEntryTx joins a path index row with its page record. Deleted-path
// rows pointing at pages that were since restored elsewhere are skipped.
func (s *Store) listEntryTx(tx *kv.Txn, path string, rawID []byte, deleted bool, now time.Time) (*PageListEntry, error) {
	id, err := pageIDFromBytes(rawID)
	if err != nil {
		return nil, err
	}
	idx, err := getPageIndex(tx, id)
	if err != nil || idx == nil {
		return nil, err
	}

	if idx.IsDraft() {
		if deleted {
			return nil, nil
		}
		return &PageListEntry{ID: id, Path: path, Draft: true, Locked: true}, nil
	}

	info := idx.Page
	if deleted && !info.PathDeleted {
		return nil, nil
	}

	locked := false
	if info.LockToken != nil {
		lock, err := getLockInfo(tx, *info.LockToken)
		if err != nil {
			return nil, err
		}
		locked = lock != nil && !lock.Expired(now)
	}

	latest, err := getPageSource(tx, id, info.Latest)
	if err != nil {
		return nil, err
	}
	entry := &PageListEntry{
		ID:      id,
		Path:    path,
		Deleted: deleted,
		Locked:  locked,
		Latest:  info.Latest,
	}
	if latest != nil {
		entry.Timestamp = latest.Timestamp
		entry.UserName = latest.UserName
	}
	return entry, nil
}

// DeletedPageIDs returns the ids of soft-deleted pages whose last-deleted
// path equals path, ascending by id.
func (s *Store) DeletedPageIDs(path string) ([]PageID, error) {
	var ids []PageID
	err := s.kv.View(func(tx *kv.Txn) error {
		vals, err := tx.MValues(tableDeletedPagePath, pathKey(path))
		if err != nil {
			return err
		}
		for _, val := range vals {
			id, err := pageIDFromBytes(val)
			if err != nil {
				return err
			}
			idx, err := getPageIndex(tx, id)
			if err != nil {
				return err
			}
			if idx == nil || idx.IsDraft() {
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListRevisionMeta returns the revision headers of a page, earliest first.
func (s *Store) ListRevisionMeta(id PageID) ([]RevisionMeta, error) {
	var metas []RevisionMeta
	err := s.kv.View(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if idx.IsDraft() {
			return nil
		}
		info := idx.Page
		for rev := info.Earliest; rev <= info.Latest; rev++ {
			src, err := getPageSource(tx, id, rev)
			if err != nil {
				return err
			}
			if src == nil {
				return ErrInvalidRevision
			}
			meta := RevisionMeta{
				Revision:  src.Revision,
				Timestamp: src.Timestamp,
				UserName:  src.UserName,
			}
			if src.Rename != nil {
				to := src.Rename.To
				meta.RenamedTo = &to
			}
			metas = append(metas, meta)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return metas, nil
}

// PathAtRevision resolves the path a page had at revision rev by walking
// the rename history: the greatest rename revision at or below rev names
// the path. Falls back to the current path when the relevant rename
// revision was compacted away.
func (s *Store) PathAtRevision(id PageID, rev Revision) (string, error) {
	var path string
	err := s.kv.View(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil {
			return ErrPageNotFound
		}
		if idx.IsDraft() {
			path = idx.Draft.Path
			return nil
		}
		info := idx.Page
		path = info.Path

		var renameRev Revision
		for _, rr := range info.RenameRevisions {
			if rr <= rev && rr > renameRev {
				renameRev = rr
			}
		}
		if renameRev == 0 {
			return nil
		}
		src, err := getPageSource(tx, id, renameRev)
		if err != nil {
			return err
		}
		if src != nil && src.Rename != nil {
			path = src.Rename.To
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// ResolveParent finds the page at the parent path of path. With recursive
// set, missing ancestors are skipped upward until a page (ultimately the
// root) is found.
func (s *Store) ResolveParent(path string, recursive bool) (PageID, string, error) {
	var id PageID
	var parentPath string
	err := s.kv.View(func(tx *kv.Txn) error {
		parent := ParentPath(path)
		if parent == "" {
			if !recursive {
				return ErrPageNotFound
			}
			parent = RootPagePath
		}
		for {
			resolved, found, err := resolvePathTx(tx, parent)
			if err != nil {
				return err
			}
			if found {
				id = resolved
				parentPath = parent
				return nil
			}
			if !recursive || parent == RootPagePath {
				return ErrPageNotFound
			}
			parent = ParentPath(parent)
			if parent == "" {
				parent = RootPagePath
			}
		}
	})
	if err != nil {
		return PageID{}, "", err
	}
	return id, parentPath, nil
}

// ListTemplates returns non-deleted, non-draft pages under the template
// prefix, ordered by path.
func (s *Store) ListTemplates(templatePrefix string) ([]PageListEntry, error) {
	entries, err := s.ListPages(strings.TrimRight(templatePrefix, "/")+"/", false)
	if err != nil {
		return nil, err
	}
	templates := entries[:0]
	for _, entry := range entries {
		if entry.Draft {
			continue
		}
		templates = append(templates, entry)
	}
	return templates, nil
}

// PageDocuments returns every retained revision of a page for indexing.
func (s *Store) PageDocuments(id PageID) ([]RevisionText, error) {
	var texts []RevisionText
	err := s.kv.View(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil || idx.IsDraft() {
			return nil
		}
		info := idx.Page
		for rev := info.Earliest; rev <= info.Latest; rev++ {
			src, err := getPageSource(tx, id, rev)
			if err != nil {
				return err
			}
			if src == nil {
				continue
			}
			texts = append(texts, RevisionText{
				Revision: rev,
				Source:   src.Source,
				Latest:   rev == info.Latest,
				Deleted:  info.PathDeleted,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return texts, nil
}

// AllPageIDs returns every non-draft page id in the store.
func (s *Store) AllPageIDs() ([]PageID, error) {
	var ids []PageID
	err := s.kv.View(func(tx *kv.Txn) error {
		return tx.AscendRange(tablePageIndex, nil, nil, func(key, value []byte) (bool, error) {
			var idx PageIndex
			if err := decodeJSON(value, &idx); err != nil {
				return false, err
			}
			if idx.IsDraft() {
				return true, nil
			}
			id, err := pageIDFromBytes(key)
			if err != nil {
				return false, err
			}
			ids = append(ids, id)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// PageState reports liveness for search post-filtering: whether the page
// still exists and whether it is soft-deleted.
func (s *Store) PageState(id PageID) (exists, deleted bool, err error) {
	err = s.kv.View(func(tx *kv.Txn) error {
		idx, err := getPageIndex(tx, id)
		if err != nil {
			return err
		}
		if idx == nil || idx.IsDraft() {
			return nil
		}
		exists = true
		deleted = idx.Page.PathDeleted
		return nil
	})
	return exists, deleted, err
}
