// Package kv provides an ordered key/value substrate on top of a single
// SQLite file. Named tables map one key to one value; multimap tables map
// one key to a set of values. Keys and values are raw bytes and keys sort
// bytewise, which is what SQLite's BLOB collation does natively.
package kv

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store is a transactional key/value store. All writes serialize through
// a single write transaction at a time; reads run on snapshots.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the store at the given file path and
// applies the supplied migrations, which are expected under a "migrations"
// directory of the filesystem.
func Open(filePath string, migrations fs.FS) (*Store, error) {
	db, err := sqlx.Connect("sqlite", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// WAL keeps readers unblocked while the single writer commits.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := applyMigrations(db, migrations); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// applyMigrations runs all up migrations against the open connection.
func applyMigrations(db *sqlx.DB, migrations fs.FS) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// View runs fn inside a read-only snapshot transaction.
func (s *Store) View(fn func(tx *Txn) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Txn{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Update runs fn inside the single write transaction. Concurrent callers
// queue on the store mutex; any error from fn rolls the transaction back.
func (s *Store) Update(fn func(tx *Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin write transaction: %w", err)
	}

	if err := fn(&Txn{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Txn is a handle on an open transaction. Table names come from package
// data's schema constants and are interpolated, not parameterized.
type Txn struct {
	tx *sqlx.Tx
}

// Get returns the value stored under key, or nil when the key is absent.
func (t *Txn) Get(table string, key []byte) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf(`SELECT value FROM %s WHERE key = ?`, table)
	if err := t.tx.Get(&value, query, key); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get from %s: %w", table, err)
	}
	return value, nil
}

// Put inserts or replaces the value under key.
func (t *Txn) Put(table string, key, value []byte) error {
	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (key, value) VALUES (?, ?)`, table)
	if _, err := t.tx.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to put into %s: %w", table, err)
	}
	return nil
}

// Delete removes key and reports whether a row existed.
func (t *Txn) Delete(table string, key []byte) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, table)
	result, err := t.tx.Exec(query, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// AscendRange iterates keys in [lo, hi) in ascending order. A nil lo starts
// at the beginning, a nil hi runs to the end. The callback returns false to
// stop early.
func (t *Txn) AscendRange(table string, lo, hi []byte, fn func(key, value []byte) (bool, error)) error {
	query := fmt.Sprintf(`SELECT key, value FROM %s`, table)
	args := []interface{}{}
	switch {
	case lo != nil && hi != nil:
		query += ` WHERE key >= ? AND key < ?`
		args = append(args, lo, hi)
	case lo != nil:
		query += ` WHERE key >= ?`
		args = append(args, lo)
	case hi != nil:
		query += ` WHERE key < ?`
		args = append(args, hi)
	}
	query += ` ORDER BY key ASC`

	rows, err := t.tx.Queryx(query, args...)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan row from %s: %w", table, err)
		}
		cont, err := fn(key, value)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return rows.Err()
}

// DeleteRange removes all keys in [lo, hi).
func (t *Txn) DeleteRange(table string, lo, hi []byte) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key >= ? AND key < ?`, table)
	if _, err := t.tx.Exec(query, lo, hi); err != nil {
		return fmt.Errorf("failed to delete range from %s: %w", table, err)
	}
	return nil
}

// MPut adds val to the value set of key in a multimap table.
func (t *Txn) MPut(table string, key, val []byte) error {
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (key, val) VALUES (?, ?)`, table)
	if _, err := t.tx.Exec(query, key, val); err != nil {
		return fmt.Errorf("failed to put into multimap %s: %w", table, err)
	}
	return nil
}

// MDelete removes one (key, val) pair and reports whether it existed.
func (t *Txn) MDelete(table string, key, val []byte) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ? AND val = ?`, table)
	result, err := t.tx.Exec(query, key, val)
	if err != nil {
		return false, fmt.Errorf("failed to delete from multimap %s: %w", table, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// MDeleteAll removes every value stored under key.
func (t *Txn) MDeleteAll(table string, key []byte) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, table)
	if _, err := t.tx.Exec(query, key); err != nil {
		return fmt.Errorf("failed to clear multimap key in %s: %w", table, err)
	}
	return nil
}

// MValues returns the value set of key in ascending value order.
func (t *Txn) MValues(table string, key []byte) ([][]byte, error) {
	query := fmt.Sprintf(`SELECT val FROM %s WHERE key = ? ORDER BY val ASC`, table)
	rows, err := t.tx.Queryx(query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read multimap %s: %w", table, err)
	}
	defer rows.Close()

	var vals [][]byte
	for rows.Next() {
		var val []byte
		if err := rows.Scan(&val); err != nil {
			return nil, fmt.Errorf("failed to scan multimap row from %s: %w", table, err)
		}
		vals = append(vals, val)
	}
	return vals, rows.Err()
}

// MAscendRange iterates (key, val) pairs with key in [lo, hi), ordered by
// key then value. Bounds follow AscendRange semantics.
func (t *Txn) MAscendRange(table string, lo, hi []byte, fn func(key, val []byte) (bool, error)) error {
	query := fmt.Sprintf(`SELECT key, val FROM %s`, table)
	args := []interface{}{}
	switch {
	case lo != nil && hi != nil:
		query += ` WHERE key >= ? AND key < ?`
		args = append(args, lo, hi)
	case lo != nil:
		query += ` WHERE key >= ?`
		args = append(args, lo)
	case hi != nil:
		query += ` WHERE key < ?`
		args = append(args, hi)
	}
	query += ` ORDER BY key ASC, val ASC`

	rows, err := t.tx.Queryx(query, args...)
	if err != nil {
		return fmt.Errorf("failed to scan multimap %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, val []byte
		if err := rows.Scan(&key, &val); err != nil {
			return fmt.Errorf("failed to scan multimap row from %s: %w", table, err)
		}
		cont, err := fn(key, val)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return rows.Err()
}
