package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikid/internal/data"
	"wikid/internal/fts"
	"wikid/internal/handler"
	"wikid/internal/logger"
	"wikid/internal/service"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()
	store, err := data.Open(filepath.Join(dir, "wiki.db"), filepath.Join(dir, "assets"), 5*time.Minute)
	require.NoError(t, err)
	index, err := fts.Open(filepath.Join(dir, "fts.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		index.Close()
		store.Close()
	})

	_, err = store.AddUser("alice", "pw")
	require.NoError(t, err)
	_, err = store.AddUser("bob", "pw")
	require.NoError(t, err)

	log := logger.Discard()
	svc := service.New(store, index, log, service.Config{
		TemplatePrefix: "/templates",
		MaxUploadBytes: 10 * 1024 * 1024,
	})
	return handler.NewRouter(svc, log)
}

type request struct {
	method string
	target string
	body   string
	user   string
	header map[string]string
}

func do(t *testing.T, h http.Handler, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.target, body)
	user := r.user
	if user == "" {
		user = "alice"
	}
	req.SetBasicAuth(user, "pw")
	for key, value := range r.header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// lockToken extracts the token from an X-Page-Lock header value.
func lockToken(t *testing.T, header string) string {
	t.Helper()
	_, token, found := strings.Cut(header, " token=")
	require.True(t, found, "malformed X-Page-Lock header: %q", header)
	return token
}

func lockAuth(token string) map[string]string {
	return map[string]string{"X-Lock-Authentication": "token=" + token}
}

// createPage runs the draft-then-promote flow over the API.
func createPage(t *testing.T, h http.Handler, path, source string) string {
	t.Helper()
	rec := do(t, h, request{method: "POST", target: "/api/pages?path=" + path})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	token := lockToken(t, rec.Header().Get("X-Page-Lock"))

	rec = do(t, h, request{
		method: "PUT",
		target: "/api/pages/" + created.ID + "/source",
		body:   source,
		header: lockAuth(token),
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	return created.ID
}

func TestAuthRequired(t *testing.T) {
	h := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/hello", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("GET", "/api/hello", nil)
	req.SetBasicAuth("alice", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/hello"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
}

func TestMetricsOpen(t *testing.T) {
	h := newTestServer(t)
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDraftCreationScenario(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, request{method: "POST", target: "/api/pages?path=/new"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Page-Lock"))
	token := lockToken(t, rec.Header().Get("X-Page-Lock"))
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// a draft has no source yet
	rec = do(t, h, request{method: "GET", target: "/api/pages/" + created.ID + "/source"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, request{
		method: "PUT",
		target: "/api/pages/" + created.ID + "/source",
		body:   "# Hello",
		header: lockAuth(token),
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/pages/" + created.ID + "/meta"})
	require.Equal(t, http.StatusOK, rec.Code)
	var meta struct {
		Latest          uint32   `json:"latest"`
		Oldest          uint32   `json:"oldest"`
		RenameRevisions []uint32 `json:"rename_revisions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, uint32(1), meta.Latest)
	assert.Equal(t, uint32(1), meta.Oldest)
	assert.Equal(t, []uint32{1}, meta.RenameRevisions)
}

func TestAmendPermissionScenario(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/amend", "rev 1")

	// author writes rev 2
	rec := do(t, h, request{method: "PUT", target: "/api/pages/" + id + "/source", body: "rev 2"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// bob locks the page
	rec = do(t, h, request{method: "POST", target: "/api/pages/" + id + "/lock", user: "bob"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	token := lockToken(t, rec.Header().Get("X-Page-Lock"))

	// amend by a non-author is forbidden
	rec = do(t, h, request{
		method: "PUT",
		target: "/api/pages/" + id + "/source?amend=true",
		body:   "bob's edit",
		user:   "bob",
		header: lockAuth(token),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// a plain write by bob creates rev 3
	rec = do(t, h, request{
		method: "PUT",
		target: "/api/pages/" + id + "/source",
		body:   "bob's edit",
		user:   "bob",
		header: lockAuth(token),
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, fmt.Sprintf("%q", id+":3"), rec.Header().Get("ETag"))
}

func TestSoftDeleteAndRestoreScenario(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/keep", "content")

	rec := do(t, h, request{method: "DELETE", target: "/api/pages/" + id})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// a deleted page reads as gone
	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/source"})
	assert.Equal(t, http.StatusGone, rec.Code)

	// the path is reusable
	rec = do(t, h, request{method: "POST", target: "/api/pages?path=/keep"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/pages/deleted?path=/keep"})
	require.Equal(t, http.StatusOK, rec.Code)
	var ids []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ids))
	assert.Contains(t, ids, id)

	rec = do(t, h, request{method: "POST", target: "/api/pages/" + id + "/path?restore_to=/restored"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// restore appends no revision
	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/meta"})
	require.Equal(t, http.StatusOK, rec.Code)
	var meta struct {
		Path   string `json:"path"`
		Latest uint32 `json:"latest"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	assert.Equal(t, "/restored", meta.Path)
	assert.Equal(t, uint32(1), meta.Latest)
}

func TestRenameConflictScenario(t *testing.T) {
	h := newTestServer(t)
	idA := createPage(t, h, "/a", "a")
	createPage(t, h, "/b", "b")

	rec := do(t, h, request{method: "POST", target: "/api/pages/" + idA + "/path?rename_to=/b"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, request{method: "POST", target: "/api/pages/" + idA + "/path?rename_to=/c"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestLockRotationScenario(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/lk", "content")

	rec := do(t, h, request{method: "POST", target: "/api/pages/" + id + "/lock"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	t1 := lockToken(t, rec.Header().Get("X-Page-Lock"))

	// double lock is a conflict
	rec = do(t, h, request{method: "POST", target: "/api/pages/" + id + "/lock", user: "bob"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, request{method: "PUT", target: "/api/pages/" + id + "/lock", header: lockAuth(t1)})
	require.Equal(t, http.StatusNoContent, rec.Code)
	t2 := lockToken(t, rec.Header().Get("X-Page-Lock"))
	require.NotEqual(t, t1, t2)

	// the rotated-out token no longer releases
	rec = do(t, h, request{method: "DELETE", target: "/api/pages/" + id + "/lock", header: lockAuth(t1)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, request{method: "DELETE", target: "/api/pages/" + id + "/lock", header: lockAuth(t2)})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/lock"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompactionScenario(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/hist", "rev 1")
	for rev := 2; rev <= 5; rev++ {
		rec := do(t, h, request{
			method: "PUT",
			target: "/api/pages/" + id + "/source",
			body:   fmt.Sprintf("rev %d", rev),
		})
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec := do(t, h, request{method: "POST", target: "/api/pages/" + id + "/revision?keep_from=3"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/source?rev=2"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/source?rev=3"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rev 3", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
}

func TestRollbackAppendsRevision(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/roll", "rev 1")
	rec := do(t, h, request{method: "PUT", target: "/api/pages/" + id + "/source", body: "rev 2"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, request{method: "POST", target: "/api/pages/" + id + "/revision?rollback_to=1"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/source"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rev 1", rec.Body.String())
	assert.Equal(t, fmt.Sprintf("%q", id+":3"), rec.Header().Get("ETag"))

	// the revision selectors are mutually exclusive
	rec = do(t, h, request{method: "POST", target: "/api/pages/" + id + "/revision?rollback_to=1&keep_from=2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteLockedPageWithoutToken(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/locked", "content")

	rec := do(t, h, request{method: "POST", target: "/api/pages/" + id + "/lock"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, request{method: "PUT", target: "/api/pages/" + id + "/source", body: "edit"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Contains(t, rec.Body.String(), "reason")
}

func TestAssetUpload(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/page", "content")

	body := "hello asset"
	rec := do(t, h, request{
		method: "POST",
		target: "/api/pages/" + id + "/assets?file_name=greeting.txt",
		body:   body,
		header: map[string]string{"Content-Type": "text/plain"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var info struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))

	// the bytes round-trip through the canonical asset URL
	rec = do(t, h, request{method: "GET", target: "/api/assets/" + info.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	// the by-name route redirects to the canonical URL
	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/assets/greeting.txt"})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/assets/"+info.ID, rec.Header().Get("Location"))

	// soft delete makes the body unavailable
	rec = do(t, h, request{method: "DELETE", target: "/api/assets/" + info.ID})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, request{method: "GET", target: "/api/assets/" + info.ID})
	assert.Equal(t, http.StatusGone, rec.Code)
	// but the metadata stays readable
	rec = do(t, h, request{method: "GET", target: "/api/assets/" + info.ID + "/meta"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAssetUploadLengthChecks(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/page", "content")

	// missing Content-Length
	req := httptest.NewRequest("POST", "/api/pages/"+id+"/assets?file_name=f.bin", bytes.NewBufferString("x"))
	req.SetBasicAuth("alice", "pw")
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusLengthRequired, rec.Code)

	// declared size over the limit
	req = httptest.NewRequest("POST", "/api/pages/"+id+"/assets?file_name=f.bin", bytes.NewBufferString("x"))
	req.SetBasicAuth("alice", "pw")
	req.ContentLength = 11 * 1024 * 1024
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	h := newTestServer(t)
	createPage(t, h, "/veg", "# Vegetables\n\nrutabaga stew recipe")

	rec := do(t, h, request{method: "GET", target: "/api/pages/search?q=rutabaga"})
	require.Equal(t, http.StatusOK, rec.Code)
	var hits []struct {
		Path    string `json:"path"`
		Snippet string `json:"snippet"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "/veg", hits[0].Path)
	assert.Contains(t, hits[0].Snippet, "<b>rutabaga</b>")

	rec = do(t, h, request{method: "GET", target: "/api/pages/search?q=rutabaga&target=nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type listResponse struct {
	Items []struct {
		PageID     string `json:"page_id"`
		Path       string `json:"path"`
		LastUpdate struct {
			Revision uint32 `json:"revision"`
			UserName string `json:"username"`
		} `json:"last_update"`
	} `json:"items"`
	HasMore bool   `json:"has_more"`
	Anchor  string `json:"anchor"`
}

func TestListPagination(t *testing.T) {
	h := newTestServer(t)
	createPage(t, h, "/list", "index")
	for _, name := range []string{"/list/a", "/list/b", "/list/c", "/list/d"} {
		createPage(t, h, name, "content")
	}

	rec := do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&limit=2"})
	require.Equal(t, http.StatusOK, rec.Code)
	var first listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first.Items, 2)
	// the page living at the prefix itself is not an entry under it
	assert.Equal(t, "/list/a", first.Items[0].Path)
	assert.Equal(t, "/list/b", first.Items[1].Path)
	assert.NotEmpty(t, first.Items[0].PageID)
	assert.Equal(t, uint32(1), first.Items[0].LastUpdate.Revision)
	assert.Equal(t, "alice", first.Items[0].LastUpdate.UserName)
	assert.True(t, first.HasMore)
	assert.Equal(t, "/list/b", first.Anchor)

	// the cursor entry is excluded from the next window
	rec = do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&limit=2&forward=" + first.Anchor})
	require.Equal(t, http.StatusOK, rec.Code)
	var second listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second.Items, 2)
	assert.Equal(t, "/list/c", second.Items[0].Path)
	assert.Equal(t, "/list/d", second.Items[1].Path)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.Anchor)

	// rewind walks descending from its cursor
	rec = do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&limit=2&rewind=/list/c"})
	require.Equal(t, http.StatusOK, rec.Code)
	var rewound listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rewound))
	require.Len(t, rewound.Items, 2)
	assert.Equal(t, "/list/b", rewound.Items[0].Path)
	assert.Equal(t, "/list/a", rewound.Items[1].Path)
	assert.False(t, rewound.HasMore)

	rec = do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&forward=/list/a&rewind=/list/d"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListQueryValidation(t *testing.T) {
	h := newTestServer(t)
	createPage(t, h, "/list/a", "content")

	// cursors must be well-formed page paths
	rec := do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&rewind="})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&forward=not-a-path"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, request{method: "GET", target: "/api/pages?prefix=list"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// boolean parameters accept only true/false
	rec = do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&with_deleted=banana"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, request{method: "GET", target: "/api/pages?prefix=/list&with_deleted=false"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPathEndpoint(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/where", "content")

	rec := do(t, h, request{method: "GET", target: "/api/pages/" + id + "/path"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "/where", resp.Path)
	assert.Equal(t, fmt.Sprintf("%q", id+":1"), rec.Header().Get("ETag"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")

	// a draft has no published path
	rec = do(t, h, request{method: "POST", target: "/api/pages?path=/pending"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	rec = do(t, h, request{method: "GET", target: "/api/pages/" + created.ID + "/path"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// a soft-deleted page reads as gone
	rec = do(t, h, request{method: "DELETE", target: "/api/pages/" + id})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/path"})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestDiffEndpoint(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/d", "alpha beta gamma")
	rec := do(t, h, request{method: "PUT", target: "/api/pages/" + id + "/source", body: "alpha delta gamma"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/diff?from=1&to=2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())

	rec = do(t, h, request{method: "GET", target: "/api/pages/" + id + "/diff?to=2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTMLEndpoint(t *testing.T) {
	h := newTestServer(t)
	id := createPage(t, h, "/render", "# Heading\n\n<script>alert(1)</script>\n\nsafe *text*")

	rec := do(t, h, request{method: "GET", target: "/api/pages/" + id + "/html"})
	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<em>text</em>")
	assert.NotContains(t, html, "<script>")
}
