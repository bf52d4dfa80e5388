package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wikid/internal/data"
	"wikid/internal/middleware"
)

// listPageAssets enumerates a page's live assets.
func (h *Handler) listPageAssets(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	assets, err := h.svc.Store().ListPageAssets(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if assets == nil {
		assets = []data.AssetInfo{}
	}
	h.writeJSON(w, http.StatusOK, assets)
}

// uploadAsset stores the request body as a page asset. Content-Length is
// mandatory and bounded; a locked page requires X-Lock-Authentication.
func (h *Handler) uploadAsset(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	fileName := r.URL.Query().Get("file_name")
	if fileName == "" {
		h.badRequest(w, "missing file_name")
		return
	}
	if r.ContentLength < 0 {
		w.Header().Set("Cache-Control", "no-store")
		h.writeJSON(w, http.StatusLengthRequired, errorBody{Reason: "Content-Length required"})
		return
	}
	if r.ContentLength > h.svc.MaxUploadBytes() {
		w.Header().Set("Cache-Control", "no-store")
		h.writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Reason: "asset too large"})
		return
	}
	token, err := lockAuthToken(r)
	if err != nil {
		h.badRequest(w, err.Error())
		return
	}
	mime := r.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	info, err := h.svc.UploadAsset(id, fileName, mime, r.Body, middleware.UserName(r.Context()), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/assets/%s", info.ID))
	h.writeJSON(w, http.StatusCreated, info)
}

// pageAssetByName resolves (page, file name) to the asset's canonical
// URL.
func (h *Handler) pageAssetByName(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	fileName := chi.URLParam(r, "fileName")
	assetID, err := h.svc.Store().ResolvePageAsset(id, fileName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/api/assets/%s", assetID), http.StatusFound)
}

// getAssetBody serves the asset bytes. Asset content is immutable, so
// the response caches indefinitely.
func (h *Handler) getAssetBody(w http.ResponseWriter, r *http.Request) {
	id, err := assetIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid asset id")
		return
	}
	info, filePath, err := h.svc.AssetFile(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if info.Deleted {
		h.writeError(w, data.ErrAssetDeleted)
		return
	}
	file, err := os.Open(filePath)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", info.Mime)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.Header().Set("ETag", fmt.Sprintf("%q", info.ID))
	setImmutable(w)
	io.Copy(w, file)
}

// getAssetMeta serves the asset's metadata, zombies included.
func (h *Handler) getAssetMeta(w http.ResponseWriter, r *http.Request) {
	id, err := assetIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid asset id")
		return
	}
	info, err := h.svc.Store().GetAsset(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

// deleteAsset soft-deletes an asset; the bytes stay until hard delete.
func (h *Handler) deleteAsset(w http.ResponseWriter, r *http.Request) {
	id, err := assetIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid asset id")
		return
	}
	if err := h.svc.DeleteAsset(id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
