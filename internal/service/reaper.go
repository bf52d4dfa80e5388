package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"wikid/internal/data"
)

// RunReaper periodically reaps expired locks (discarding doomed drafts
// and their asset files) until the context is cancelled. Call from its
// own goroutine.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			files, err := s.store.CleanupExpiredLocks()
			if err != nil {
				s.log.Error(err, "Lock reaper pass failed")
				continue
			}
			if len(files) > 0 {
				s.log.With(map[string]interface{}{"asset_files": len(files)}).Info("Reaped expired draft locks")
				s.removeAssetFiles(files)
			}
		}
	}
}

// SweepOrphans removes asset files with no metadata row, plus stale
// upload temp files. Run once at startup; it covers crashes between
// staging an upload and committing its metadata.
func (s *Service) SweepOrphans() error {
	root := s.store.AssetDir()
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	tmpDir := filepath.Join(root, "tmp")
	removed := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return err
		}
		if filepath.Dir(path) == tmpDir {
			if rerr := os.Remove(path); rerr == nil {
				removed++
			}
			return nil
		}
		id, perr := data.ParseAssetID(filepath.Base(path))
		if perr != nil {
			return nil
		}
		_, gerr := s.store.GetAsset(id)
		if errors.Is(gerr, data.ErrAssetNotFound) {
			if rerr := os.Remove(path); rerr == nil {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if removed > 0 {
		s.log.With(map[string]interface{}{"count": removed}).Info("Swept orphan asset files")
	}
	return nil
}
