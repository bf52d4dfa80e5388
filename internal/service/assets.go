package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/VictoriaMetrics/metrics"

	"wikid/internal/data"
)

// UploadAsset stages the body to a temp file, records the asset in one
// store transaction and only then moves the bytes into place, so a crash
// leaves at worst an orphan temp file for the reaper.
func (s *Service) UploadAsset(pageID data.PageID, fileName, mime string, body io.Reader, userName string, token *data.LockToken) (*data.AssetInfo, error) {
	tmpDir := filepath.Join(s.store.AssetDir(), "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset temp dir: %w", err)
	}
	tmp, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to stage asset upload: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, io.LimitReader(body, s.cfg.MaxUploadBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write asset upload: %w", err)
	}
	if written > s.cfg.MaxUploadBytes {
		return nil, ErrTooLarge
	}

	info, err := s.store.CreateAsset(pageID, fileName, mime, written, userName, token)
	if err != nil {
		return nil, err
	}

	final := s.store.AssetFilePath(info.ID)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err == nil {
		err = os.Rename(tmpName, final)
	}
	if err != nil {
		// compensate: the metadata row must not outlive the bytes
		if derr := s.store.DeleteAssetHard(info.ID); derr != nil {
			s.log.Error(derr, "Failed to roll back asset metadata after file move failure")
		}
		return nil, fmt.Errorf("failed to place asset file: %w", err)
	}

	metrics.GetOrCreateCounter("wikid_assets_uploaded_total").Inc()
	return info, nil
}

// AssetFile returns the asset's metadata and the path of its bytes on
// disk. Soft-deleted assets still serve their bytes to admin tooling.
func (s *Service) AssetFile(id data.AssetID) (*data.AssetInfo, string, error) {
	info, err := s.store.GetAsset(id)
	if err != nil {
		return nil, "", err
	}
	return info, s.store.AssetFilePath(id), nil
}

// DeleteAsset soft-deletes an asset; the bytes stay for undelete.
func (s *Service) DeleteAsset(id data.AssetID) error {
	return s.store.DeleteAsset(id)
}

// HardDeleteAsset removes the asset's metadata and its bytes.
func (s *Service) HardDeleteAsset(id data.AssetID) error {
	if err := s.store.DeleteAssetHard(id); err != nil {
		return err
	}
	s.removeAssetFiles([]data.AssetID{id})
	return nil
}

// UndeleteAsset revives a soft-deleted asset, optionally under a new name.
func (s *Service) UndeleteAsset(id data.AssetID, newName *string) error {
	return s.store.UndeleteAsset(id, newName)
}

// MoveAsset reattaches an asset to another page. With force, a same-name
// occupant on the destination is hard-deleted, bytes included.
func (s *Service) MoveAsset(id data.AssetID, dstPageID data.PageID, force bool) error {
	displaced, err := s.store.MoveAsset(id, dstPageID, force)
	if err != nil {
		return err
	}
	s.removeAssetFiles(displaced)
	return nil
}
