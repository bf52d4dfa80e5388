package handler

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"wikid/internal/data"
	"wikid/internal/fts"
	"wikid/internal/middleware"
)

const defaultListLimit = 50

type helloResponse struct {
	Message string `json:"message"`
	User    string `json:"user"`
}

func (h *Handler) hello(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, helloResponse{
		Message: "hello",
		User:    middleware.UserName(r.Context()),
	})
}

type draftResponse struct {
	ID   data.PageID `json:"id"`
	Path string      `json:"path"`
}

// createPage reserves a path as a draft and hands the caller its lock.
func (h *Handler) createPage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.badRequest(w, "missing path")
		return
	}
	draft, lock, err := h.svc.CreateDraft(path, middleware.UserName(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	setLockHeader(w, lock)
	w.Header().Set("Location", fmt.Sprintf("/api/pages/%s", draft.ID))
	w.Header().Set("ETag", pageETag(draft.ID, 0))
	h.writeJSON(w, http.StatusCreated, draftResponse{ID: draft.ID, Path: draft.Path})
}

type lastUpdate struct {
	Revision  data.Revision `json:"revision"`
	Timestamp string        `json:"timestamp"`
	UserName  string        `json:"username"`
}

type pageListItem struct {
	PageID     data.PageID `json:"page_id"`
	Path       string      `json:"path"`
	Deleted    bool        `json:"deleted"`
	Draft      bool        `json:"draft"`
	Locked     bool        `json:"locked"`
	LastUpdate lastUpdate  `json:"last_update"`
}

type pageListResponse struct {
	Items   []pageListItem `json:"items"`
	HasMore bool           `json:"has_more"`
	Anchor  string         `json:"anchor,omitempty"`
}

func toListItem(entry data.PageListEntry) pageListItem {
	return pageListItem{
		PageID:  entry.ID,
		Path:    entry.Path,
		Deleted: entry.Deleted,
		Draft:   entry.Draft,
		Locked:  entry.Locked,
		LastUpdate: lastUpdate{
			Revision:  entry.Latest,
			Timestamp: entry.Timestamp,
			UserName:  entry.UserName,
		},
	}
}

// listPages enumerates pages under a prefix with cursor pagination. The
// prefix page itself and the cursor entry are excluded; forward walks
// ascending (the cursor defaults to the prefix), rewind descending.
func (h *Handler) listPages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	prefix := query.Get("prefix")
	if prefix == "" {
		prefix = data.RootPagePath
	}
	if _, err := data.NormalizePath(prefix); err != nil {
		h.badRequest(w, "invalid prefix")
		return
	}

	ascending, cursor := true, prefix
	hasForward, hasRewind := query.Has("forward"), query.Has("rewind")
	switch {
	case hasForward && hasRewind:
		h.badRequest(w, "forward and rewind are mutually exclusive")
		return
	case hasForward:
		cursor = query.Get("forward")
		if _, err := data.NormalizePath(cursor); err != nil {
			h.badRequest(w, "invalid forward")
			return
		}
	case hasRewind:
		ascending, cursor = false, query.Get("rewind")
		if _, err := data.NormalizePath(cursor); err != nil {
			h.badRequest(w, "invalid rewind")
			return
		}
	}

	limit := defaultListLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := parsePositiveInt(raw)
		if err != nil {
			h.badRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	withDeleted, err := boolQuery(r, "with_deleted")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	entries, err := h.svc.Store().ListPages(prefix, withDeleted)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
	if !ascending {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}

	// the prefix page and the cursor entry itself are excluded
	filtered := entries[:0]
	for _, entry := range entries {
		if entry.Path == prefix {
			continue
		}
		if ascending && entry.Path <= cursor {
			continue
		}
		if !ascending && entry.Path >= cursor {
			continue
		}
		filtered = append(filtered, entry)
	}

	resp := pageListResponse{Items: []pageListItem{}}
	for i, entry := range filtered {
		if i == limit {
			resp.HasMore = true
			resp.Anchor = resp.Items[len(resp.Items)-1].Path
			break
		}
		resp.Items = append(resp.Items, toListItem(entry))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// deletedPages lists ids of soft-deleted pages whose last path was the
// given one.
func (h *Handler) deletedPages(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.badRequest(w, "missing path")
		return
	}
	ids, err := h.svc.Store().DeletedPageIDs(path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []data.PageID{}
	}
	h.writeJSON(w, http.StatusOK, ids)
}

// searchPages runs a full-text query.
func (h *Handler) searchPages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	expr := query.Get("q")
	if expr == "" {
		h.badRequest(w, "missing q")
		return
	}
	for _, target := range query["target"] {
		if !fts.ValidTarget(target) {
			h.badRequest(w, fmt.Sprintf("unknown search target %q", target))
			return
		}
	}
	withDeleted, err := boolQuery(r, "with_deleted")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	allRevisions, err := boolQuery(r, "all_revision")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	hits, err := h.svc.Search(fts.Query{
		Expression:   expr,
		Targets:      query["target"],
		WithDeleted:  withDeleted,
		AllRevisions: allRevisions,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, hits)
}

// listTemplates enumerates the pages under the template prefix.
func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Store().ListTemplates(h.svc.TemplatePrefix())
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]pageListItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, toListItem(entry))
	}
	h.writeJSON(w, http.StatusOK, items)
}

// getSource serves a revision's Markdown. A pinned revision is immutable
// and cached accordingly.
func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	rev, pinned, err := revisionQuery(r, "rev")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	src, err := h.svc.Store().GetSource(id, rev)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("ETag", pageETag(id, src.Revision))
	if pinned {
		setImmutable(w)
	}
	io.WriteString(w, src.Source)
}

// putSource writes a new revision (or promotes a draft). A locked page
// requires X-Lock-Authentication; amend rewrites the latest revision in
// place and is restricted to its author.
func (h *Handler) putSource(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	token, err := lockAuthToken(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	amend, err := boolQuery(r, "amend")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.badRequest(w, "failed to read request body")
		return
	}
	result, err := h.svc.PutPage(id, string(body), middleware.UserName(r.Context()), amend, token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("ETag", pageETag(id, result.Revision))
	w.WriteHeader(http.StatusNoContent)
}

// getHTML serves a revision rendered to sanitized HTML.
func (h *Handler) getHTML(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	rev, pinned, err := revisionQuery(r, "rev")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	html, servedRev, err := h.svc.RenderHTML(id, rev)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("ETag", pageETag(id, servedRev))
	if pinned {
		setImmutable(w)
	}
	io.WriteString(w, html)
}

// getDiff serves a patch-format diff between two revisions.
func (h *Handler) getDiff(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	from, hasFrom, err := revisionQuery(r, "from")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	to, _, err := revisionQuery(r, "to")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	if !hasFrom {
		h.badRequest(w, "missing from")
		return
	}
	patch, err := h.svc.DiffRevisions(id, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, patch)
}

type metaResponse struct {
	ID              data.PageID         `json:"id"`
	Path            string              `json:"path"`
	Deleted         bool                `json:"deleted"`
	Latest          data.Revision       `json:"latest"`
	Oldest          data.Revision       `json:"oldest"`
	RenameRevisions []data.Revision     `json:"rename_revisions"`
	Revisions       []revisionMetaEntry `json:"revisions"`
}

type revisionMetaEntry struct {
	Revision  data.Revision `json:"revision"`
	Timestamp string        `json:"timestamp"`
	UserName  string        `json:"user_name"`
	RenamedTo *string       `json:"renamed_to,omitempty"`
}

// getMeta reports a page's revision bounds and history headers. Drafts
// have no revisions yet and read as absent.
func (h *Handler) getMeta(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	idx, err := h.svc.Store().GetPage(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if idx.IsDraft() {
		h.writeError(w, data.ErrPageNotFound)
		return
	}
	metas, err := h.svc.Store().ListRevisionMeta(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	info := idx.Page
	resp := metaResponse{
		ID:              info.ID,
		Path:            info.Path,
		Deleted:         info.PathDeleted,
		Latest:          info.Latest,
		Oldest:          info.Earliest,
		RenameRevisions: info.RenameRevisions,
		Revisions:       make([]revisionMetaEntry, 0, len(metas)),
	}
	for _, meta := range metas {
		resp.Revisions = append(resp.Revisions, revisionMetaEntry{
			Revision:  meta.Revision,
			Timestamp: meta.Timestamp,
			UserName:  meta.UserName,
			RenamedTo: meta.RenamedTo,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type parentResponse struct {
	ID   data.PageID `json:"id"`
	Path string      `json:"path"`
}

// getParent resolves the page owning the parent path; with recursive,
// absent ancestors are skipped up to the root.
func (h *Handler) getParent(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	idx, err := h.svc.Store().GetPage(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	recursive, err := boolQuery(r, "recursive")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	var path string
	if idx.IsDraft() {
		path = idx.Draft.Path
	} else {
		path = idx.Page.Path
	}
	parentID, parentPath, err := h.svc.Store().ResolveParent(path, recursive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, parentResponse{ID: parentID, Path: parentPath})
}

type pathResponse struct {
	Path string `json:"path"`
}

// getPath reports a page's current path. The response is tied to the
// latest revision via the ETag, so it is served with immutable caching.
func (h *Handler) getPath(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	idx, err := h.svc.Store().GetPage(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if idx.IsDraft() {
		h.writeError(w, data.ErrPageNotFound)
		return
	}
	if idx.Page.PathDeleted {
		h.writeError(w, data.ErrPageDeleted)
		return
	}
	w.Header().Set("ETag", pageETag(id, idx.Page.Latest))
	setImmutable(w)
	h.writeJSON(w, http.StatusOK, pathResponse{Path: idx.Page.Path})
}

// changePath renames a live page or restores a soft-deleted one;
// rename_to and restore_to are mutually exclusive.
func (h *Handler) changePath(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	query := r.URL.Query()
	renameTo, restoreTo := query.Get("rename_to"), query.Get("restore_to")
	recursive, err := boolQuery(r, "recursive")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	withAssets, err := boolQuery(r, "with_assets")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	switch {
	case renameTo != "" && restoreTo != "":
		h.badRequest(w, "rename_to and restore_to are mutually exclusive")
	case renameTo != "":
		if _, err := h.svc.Rename(id, renameTo, middleware.UserName(r.Context()), recursive); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case restoreTo != "":
		if err := h.svc.Undelete(id, restoreTo, recursive, withAssets); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.badRequest(w, "missing rename_to or restore_to")
	}
}

// changeRevision rolls a page back or compacts its history; rollback_to
// and keep_from are mutually exclusive.
func (h *Handler) changeRevision(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	rollbackTo, hasRollback, err := revisionQuery(r, "rollback_to")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	keepFrom, hasKeep, err := revisionQuery(r, "keep_from")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	switch {
	case hasRollback && hasKeep:
		h.badRequest(w, "rollback_to and keep_from are mutually exclusive")
	case hasRollback:
		if _, err := h.svc.Rollback(id, rollbackTo, middleware.UserName(r.Context())); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case hasKeep:
		if err := h.svc.Compact(id, keepFrom); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		h.badRequest(w, "missing rollback_to or keep_from")
	}
}

// deletePage soft-deletes a page; a draft is discarded outright. A
// locked page requires X-Lock-Authentication.
func (h *Handler) deletePage(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	token, err := lockAuthToken(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	recursive, err := boolQuery(r, "recursive")
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	_, err = h.svc.DeletePage(id, middleware.UserName(r.Context()), token, recursive)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("not a positive number")
	}
	return n, nil
}
