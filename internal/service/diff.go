package service

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"wikid/internal/data"
)

// DiffRevisions computes a patch-format text diff between two stored
// revisions of the same page. Revision 0 means latest on either side.
func (s *Service) DiffRevisions(id data.PageID, from, to data.Revision) (string, error) {
	oldSrc, err := s.store.GetSource(id, from)
	if err != nil {
		return "", err
	}
	newSrc, err := s.store.GetSource(id, to)
	if err != nil {
		return "", err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldSrc.Source, newSrc.Source, true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	patches := dmp.PatchMake(oldSrc.Source, diffs)
	return dmp.PatchToText(patches), nil
}
