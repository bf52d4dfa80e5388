package fts

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open(filepath.Join(t.TempDir(), "fts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

func doc(pageID string, rev uint32, latest bool, sections Sections) Document {
	return Document{PageID: pageID, Revision: rev, Latest: latest, Sections: sections}
}

func TestSearchLatestOnly(t *testing.T) {
	ix := openTestIndex(t)

	require.NoError(t, ix.ReplacePage("p1", []Document{
		doc("p1", 1, false, Sections{Body: "old cabbage text"}),
		doc("p1", 2, true, Sections{Body: "fresh cabbage text"}),
	}))

	hits, err := ix.Search(Query{Expression: "cabbage"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, uint32(2), hits[0].Revision)
	assert.True(t, hits[0].Latest)
	assert.Contains(t, hits[0].Snippet, "<b>cabbage</b>")

	hits, err = ix.Search(Query{Expression: "cabbage", AllRevisions: true})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchTargets(t *testing.T) {
	ix := openTestIndex(t)

	require.NoError(t, ix.ReplacePage("p1", []Document{
		doc("p1", 1, true, Sections{Headings: "turnip", Body: "potato"}),
	}))

	hits, err := ix.Search(Query{Expression: "potato", Targets: []string{"headings"}})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.Search(Query{Expression: "potato", Targets: []string{"body"}})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = ix.Search(Query{Expression: "potato", Targets: []string{"nope"}})
	assert.Error(t, err)
}

func TestSearchDeletedFilter(t *testing.T) {
	ix := openTestIndex(t)

	d := doc("p1", 1, true, Sections{Body: "spinach"})
	d.Deleted = true
	require.NoError(t, ix.ReplacePage("p1", []Document{d}))

	hits, err := ix.Search(Query{Expression: "spinach"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = ix.Search(Query{Expression: "spinach", WithDeleted: true})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	assert.True(t, hits[0].Deleted)
}

func TestReplacePageSwapsDocuments(t *testing.T) {
	ix := openTestIndex(t)

	require.NoError(t, ix.ReplacePage("p1", []Document{
		doc("p1", 1, true, Sections{Body: "before"}),
	}))
	require.NoError(t, ix.ReplacePage("p1", []Document{
		doc("p1", 1, false, Sections{Body: "before"}),
		doc("p1", 2, true, Sections{Body: "after"}),
	}))

	hits, err := ix.Search(Query{Expression: "after"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = ix.Search(Query{Expression: "before"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeletePageAndClear(t *testing.T) {
	ix := openTestIndex(t)

	require.NoError(t, ix.ReplacePage("p1", []Document{doc("p1", 1, true, Sections{Body: "one"})}))
	require.NoError(t, ix.ReplacePage("p2", []Document{doc("p2", 1, true, Sections{Body: "two"})}))

	require.NoError(t, ix.DeletePage("p1"))
	hits, err := ix.Search(Query{Expression: "one"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, ix.Clear())
	hits, err = ix.Search(Query{Expression: "two"})
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, ix.Merge())
}
