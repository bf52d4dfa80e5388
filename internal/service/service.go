// Package service composes the store, the full-text index and the asset
// file tree into the operations the REST handlers and the CLI call. Every
// mutation runs one store transaction; index updates follow the commit and
// are best-effort, with rebuild as the recovery path.
package service

import (
	"errors"
	"fmt"
	"os"

	"github.com/VictoriaMetrics/metrics"

	"wikid/internal/data"
	"wikid/internal/fts"
	"wikid/internal/logger"
)

// ErrTooLarge rejects uploads over the configured limit.
var ErrTooLarge = errors.New("asset too large")

// Config carries the service's policy knobs.
type Config struct {
	TemplatePrefix string
	MaxUploadBytes int64
}

// Service is the application core behind the HTTP and CLI front ends.
type Service struct {
	store *data.Store
	index *fts.Index
	log   logger.Logger
	cfg   Config
}

// New wires a Service.
func New(store *data.Store, index *fts.Index, log logger.Logger, cfg Config) *Service {
	return &Service{store: store, index: index, log: log, cfg: cfg}
}

// Store exposes the store for read paths; mutations go through the
// Service so index and filesystem effects stay coordinated.
func (s *Service) Store() *data.Store {
	return s.store
}

// MaxUploadBytes returns the upload size limit.
func (s *Service) MaxUploadBytes() int64 {
	return s.cfg.MaxUploadBytes
}

// TemplatePrefix returns the path prefix template pages live under.
func (s *Service) TemplatePrefix() string {
	return s.cfg.TemplatePrefix
}

// CreateDraft reserves a path and returns the draft with its lock.
func (s *Service) CreateDraft(path, userName string) (*data.DraftInfo, *data.LockInfo, error) {
	draft, lock, err := s.store.CreateDraft(path, userName)
	if err != nil {
		return nil, nil, err
	}
	metrics.GetOrCreateCounter("wikid_drafts_created_total").Inc()
	return draft, lock, nil
}

// PutPage writes a source revision (or promotes a draft) and reindexes
// the page.
func (s *Service) PutPage(id data.PageID, source, userName string, amend bool, token *data.LockToken) (*data.PutResult, error) {
	result, err := s.store.PutPage(id, source, userName, amend, token)
	if err != nil {
		return nil, err
	}
	metrics.GetOrCreateCounter("wikid_pages_written_total").Inc()
	s.reindexPage(id)
	return result, nil
}

// DeletePage soft-deletes a page (discarding it when still a draft) and
// updates the index for every affected page.
func (s *Service) DeletePage(id data.PageID, userName string, token *data.LockToken, recursive bool) (*data.SoftDeleteResult, error) {
	result, err := s.store.DeletePage(id, userName, token, recursive)
	if err != nil {
		return nil, err
	}
	if result.DraftDeleted {
		s.removeAssetFiles(result.RemovedAssetFiles)
	}
	for _, affected := range result.Affected {
		s.reindexPage(affected)
	}
	metrics.GetOrCreateCounter("wikid_pages_deleted_total").Inc()
	return result, nil
}

// HardDeletePage removes a page permanently and evicts it from the index.
func (s *Service) HardDeletePage(id data.PageID, recursive bool) error {
	affected, err := s.store.DeletePageHard(id, recursive)
	if err != nil {
		return err
	}
	for _, pageID := range affected {
		if err := s.index.DeletePage(pageID.String()); err != nil {
			s.log.Error(err, "Failed to evict page from index")
		}
	}
	return nil
}

// Rename moves a page (and optionally its subtree) and reindexes the
// moved pages, each of which gained a rename revision.
func (s *Service) Rename(id data.PageID, newPath, userName string, recursive bool) ([]data.RenamePair, error) {
	pairs, err := s.store.Rename(id, newPath, userName, recursive)
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		s.reindexPage(pair.ID)
	}
	return pairs, nil
}

// Rollback appends a revision equal to an older one and reindexes.
func (s *Service) Rollback(id data.PageID, target data.Revision, userName string) (data.Revision, error) {
	rev, err := s.store.Rollback(id, target, userName)
	if err != nil {
		return 0, err
	}
	s.reindexPage(id)
	return rev, nil
}

// Compact drops revisions below keepFrom and reindexes the survivors.
func (s *Service) Compact(id data.PageID, keepFrom data.Revision) error {
	if err := s.store.Compact(id, keepFrom); err != nil {
		return err
	}
	s.reindexPage(id)
	return nil
}

// Undelete restores a soft-deleted page and refreshes its index entries'
// liveness.
func (s *Service) Undelete(id data.PageID, targetPath string, recursive, withAssets bool) error {
	if err := s.store.Undelete(id, targetPath, recursive, withAssets); err != nil {
		return err
	}
	s.reindexPage(id)
	if recursive {
		// descendants changed liveness too; their ids are cheapest to
		// recover from the restored subtree
		entries, err := s.store.ListPages(targetPath, false)
		if err == nil {
			for _, entry := range entries {
				s.reindexPage(entry.ID)
			}
		}
	}
	return nil
}

// AcquireLock locks a page for editing.
func (s *Service) AcquireLock(id data.PageID, userName string) (*data.LockInfo, error) {
	return s.store.AcquireLock(id, userName)
}

// ExtendLock rotates a lock's token and extends its expiry.
func (s *Service) ExtendLock(id data.PageID, token data.LockToken, userName string) (*data.LockInfo, error) {
	return s.store.ExtendLock(id, token, userName)
}

// ReleaseLock gives a lock up; a released draft is discarded along with
// its asset files.
func (s *Service) ReleaseLock(id data.PageID, token data.LockToken, userName string) error {
	files, err := s.store.ReleaseLock(id, token, userName)
	if err != nil {
		return err
	}
	s.removeAssetFiles(files)
	return nil
}

// GetLock reports the live lock on a page, reaping an expired one. An
// unlocked page reads as lock-not-found.
func (s *Service) GetLock(id data.PageID) (*data.LockInfo, error) {
	lock, files, err := s.store.GetLock(id)
	if err != nil {
		return nil, err
	}
	s.removeAssetFiles(files)
	if lock == nil {
		return nil, data.ErrLockNotFound
	}
	return lock, nil
}

// UnlockPage force-releases a page's lock (admin). Drafts are discarded.
func (s *Service) UnlockPage(id data.PageID) error {
	files, err := s.store.UnlockPage(id)
	if err != nil {
		return err
	}
	s.removeAssetFiles(files)
	return nil
}

// ListLocks reports every live lock with its page's path, reaping
// expired ones on the way.
func (s *Service) ListLocks() ([]data.LockListEntry, error) {
	entries, files, err := s.store.ListLocks()
	if err != nil {
		return nil, err
	}
	s.removeAssetFiles(files)
	return entries, nil
}

// AddUser registers a user; the first one triggers the root bootstrap.
func (s *Service) AddUser(name, password, rootSeed string) error {
	first, err := s.store.AddUser(name, password)
	if err != nil {
		return err
	}
	if first {
		if err := s.store.EnsureRootPage(name, rootSeed); err != nil {
			return fmt.Errorf("failed to bootstrap root page: %w", err)
		}
		s.reindexRoot()
	}
	return nil
}

func (s *Service) reindexRoot() {
	id, err := s.store.ResolvePath(data.RootPagePath)
	if err != nil {
		return
	}
	s.reindexPage(id)
}

// reindexPage replaces a page's index documents from the store. Index
// drift is logged, not fatal; fts rebuild recovers.
func (s *Service) reindexPage(id data.PageID) {
	texts, err := s.store.PageDocuments(id)
	if err != nil {
		s.log.Error(err, "Failed to read page documents for indexing")
		return
	}
	docs := make([]fts.Document, 0, len(texts))
	for _, text := range texts {
		docs = append(docs, fts.Document{
			PageID:   id.String(),
			Revision: uint32(text.Revision),
			Deleted:  text.Deleted,
			Latest:   text.Latest,
			Sections: fts.ExtractSections(text.Source),
		})
	}
	if err := s.index.ReplacePage(id.String(), docs); err != nil {
		s.log.Error(err, "Failed to update full-text index")
	}
}

// RebuildIndex reconstructs the whole index from the store.
func (s *Service) RebuildIndex() error {
	if err := s.index.Clear(); err != nil {
		return err
	}
	ids, err := s.store.AllPageIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.reindexPage(id)
	}
	return s.index.Merge()
}

// MergeIndex folds index segments together.
func (s *Service) MergeIndex() error {
	return s.index.Merge()
}

func (s *Service) removeAssetFiles(ids []data.AssetID) {
	for _, id := range ids {
		path := s.store.AssetFilePath(id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Error(err, "Failed to remove asset file")
		}
	}
}
