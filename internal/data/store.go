package data

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wikid/internal/kv"
)

// Store is the wiki's persistence layer: the KV tables plus the asset file
// tree rooted at assetDir.
type Store struct {
	kv       *kv.Store
	assetDir string
	lockTTL  time.Duration
	now      func() time.Time
}

// Open opens the store, applying schema migrations and creating the asset
// directory when missing.
func Open(dbFile, assetDir string, lockTTL time.Duration) (*Store, error) {
	kvStore, err := kv.Open(dbFile, migrationsFS)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(assetDir, 0o755); err != nil {
		kvStore.Close()
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &Store{
		kv:       kvStore,
		assetDir: assetDir,
		lockTTL:  lockTTL,
		now:      time.Now,
	}, nil
}

// Close closes the underlying KV store.
func (s *Store) Close() error {
	return s.kv.Close()
}

// LockTTL returns the configured lock time-to-live.
func (s *Store) LockTTL() time.Duration {
	return s.lockTTL
}

// timestamp renders the shared wall-clock reading for one transaction.
func (s *Store) timestamp(now time.Time) string {
	return now.Format(TimestampLayout)
}

// EnsureRootPage creates the page at "/" from the seed source unless a
// live page already occupies the root. Called after the first user is
// registered.
func (s *Store) EnsureRootPage(userName, seedSource string) error {
	exists := false
	err := s.kv.View(func(tx *kv.Txn) error {
		_, ok, err := resolvePathTx(tx, RootPagePath)
		exists = ok
		return err
	})
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if _, err := s.CreatePage(RootPagePath, userName, seedSource); err != nil {
		// A concurrent bootstrap losing the race is fine.
		if errors.Is(err, ErrPageAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

// AssetFilePath returns the body location for an asset: two directory
// levels of fixed-width id prefixes keep per-directory fan-out bounded.
func (s *Store) AssetFilePath(id AssetID) string {
	raw := id.String()
	return filepath.Join(s.assetDir, raw[:2], raw[2:5], raw)
}

// AssetDir returns the asset tree root.
func (s *Store) AssetDir() string {
	return s.assetDir
}
