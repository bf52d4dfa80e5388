package service

import (
	"github.com/VictoriaMetrics/metrics"

	"wikid/internal/data"
	"wikid/internal/fts"
)

// SearchHit is one full-text match, resolved against the live store so
// path and liveness are current rather than as-indexed.
type SearchHit struct {
	PageID   data.PageID `json:"page_id"`
	Revision uint32      `json:"revision"`
	Path     string      `json:"path"`
	Deleted  bool        `json:"deleted"`
	Latest   bool        `json:"latest"`
	Score    float64     `json:"score"`
	Snippet  string      `json:"snippet"`
}

// Search runs an FTS5 expression and post-filters the hits against the
// store: pages hard-deleted since indexing vanish, liveness is read from
// the store, and each hit's path is the one it carried at that revision.
func (s *Service) Search(q fts.Query) ([]SearchHit, error) {
	metrics.GetOrCreateCounter("wikid_searches_total").Inc()

	raw, err := s.index.Search(q)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(raw))
	for _, hit := range raw {
		id, err := data.ParsePageID(hit.PageID)
		if err != nil {
			continue
		}
		exists, deleted, err := s.store.PageState(id)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		if deleted && !q.WithDeleted {
			continue
		}
		path, err := s.store.PathAtRevision(id, data.Revision(hit.Revision))
		if err != nil {
			continue
		}
		hits = append(hits, SearchHit{
			PageID:   id,
			Revision: hit.Revision,
			Path:     path,
			Deleted:  deleted,
			Latest:   hit.Latest,
			Score:    hit.Score,
			Snippet:  hit.Snippet,
		})
	}
	return hits, nil
}
