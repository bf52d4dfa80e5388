// Package fts maintains the full-text index: an SQLite FTS5 table in its
// own database file, fed by the store after each committed mutation and
// rebuildable from it at any time.
package fts

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SnippetLimit bounds excerpt length in tokens; HitLimit bounds one
// query's result set.
const (
	SnippetLimit = 24
	HitLimit     = 100
)

// Index is a handle on the full-text database.
type Index struct {
	db *sqlx.DB
}

// Document is one (page, revision) entry in the index.
type Document struct {
	PageID   string
	Revision uint32
	Deleted  bool
	Latest   bool
	Sections Sections
}

// Query is a search request. Targets selects the matched fields; empty
// means all of them.
type Query struct {
	Expression   string
	Targets      []string
	WithDeleted  bool
	AllRevisions bool
}

// Hit is one search result. Score grows with relevance.
type Hit struct {
	PageID   string
	Revision uint32
	Deleted  bool
	Latest   bool
	Score    float64
	Snippet  string
}

var validTargets = map[string]bool{
	"headings": true,
	"body":     true,
	"code":     true,
}

// ValidTarget reports whether name is an indexed field.
func ValidTarget(name string) bool {
	return validTargets[name]
}

// Open opens (creating if needed) the index at the given file path.
func Open(filePath string) (*Index, error) {
	db, err := sqlx.Connect("sqlite", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open fts index: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode on fts index: %w", err)
	}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS page_docs USING fts5(
		headings, body, code,
		page_id UNINDEXED, revision UNINDEXED,
		deleted UNINDEXED, is_latest UNINDEXED
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create fts schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the index database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// ReplacePage swaps every document of a page for the given set. Called
// after any store commit that changed the page's revisions or liveness.
func (ix *Index) ReplacePage(pageID string, docs []Document) error {
	tx, err := ix.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin fts transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM page_docs WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("failed to evict page docs: %w", err)
	}
	insert := `INSERT INTO page_docs (headings, body, code, page_id, revision, deleted, is_latest)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, doc := range docs {
		_, err := tx.Exec(insert,
			doc.Sections.Headings, doc.Sections.Body, doc.Sections.Code,
			doc.PageID, doc.Revision, boolInt(doc.Deleted), boolInt(doc.Latest))
		if err != nil {
			return fmt.Errorf("failed to insert page doc: %w", err)
		}
	}
	return tx.Commit()
}

// DeletePage evicts every document of a hard-deleted page.
func (ix *Index) DeletePage(pageID string) error {
	if _, err := ix.db.Exec(`DELETE FROM page_docs WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("failed to evict page docs: %w", err)
	}
	return nil
}

// Search runs an FTS5 expression over the selected fields. Deleted pages
// are filtered out unless WithDeleted; non-latest revisions unless
// AllRevisions. Best matches first, capped at HitLimit.
func (ix *Index) Search(q Query) ([]Hit, error) {
	targets := q.Targets
	if len(targets) == 0 {
		targets = []string{"headings", "body", "code"}
	}
	for _, target := range targets {
		if !ValidTarget(target) {
			return nil, fmt.Errorf("unknown search target %q", target)
		}
	}
	match := fmt.Sprintf("{%s} : %s", strings.Join(targets, " "), q.Expression)

	query := `SELECT page_id, revision, deleted, is_latest,
			-bm25(page_docs) AS score,
			snippet(page_docs, -1, '<b>', '</b>', '…', ?) AS snip
		FROM page_docs WHERE page_docs MATCH ?`
	args := []interface{}{SnippetLimit, match}
	if !q.WithDeleted {
		query += ` AND deleted = 0`
	}
	if !q.AllRevisions {
		query += ` AND is_latest = 1`
	}
	query += ` ORDER BY bm25(page_docs) LIMIT ?`
	args = append(args, HitLimit)

	rows, err := ix.db.Queryx(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		var deleted, latest int
		if err := rows.Scan(&hit.PageID, &hit.Revision, &deleted, &latest, &hit.Score, &hit.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hit.Deleted = deleted != 0
		hit.Latest = latest != 0
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Clear drops every document; the caller reingests from the store.
func (ix *Index) Clear() error {
	if _, err := ix.db.Exec(`DELETE FROM page_docs`); err != nil {
		return fmt.Errorf("failed to clear fts index: %w", err)
	}
	return nil
}

// Merge folds the index's segments together.
func (ix *Index) Merge() error {
	if _, err := ix.db.Exec(`INSERT INTO page_docs(page_docs) VALUES('optimize')`); err != nil {
		return fmt.Errorf("failed to optimize fts index: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
