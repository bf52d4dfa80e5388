// Package handler exposes the wiki engine as a JSON REST API. Handlers
// stay thin: parse the request, call the service, map the error kind to a
// status. Every failure body is {"reason": "..."}.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"wikid/internal/data"
	"wikid/internal/logger"
	"wikid/internal/service"
)

// Handler bundles the service with the logger for all API endpoints.
type Handler struct {
	svc *service.Service
	log logger.Logger
}

// New creates the API handler set.
func New(svc *service.Service, log logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

type errorBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error(err, "Failed to encode response body")
	}
}

// writeError maps an error to its status and emits the reason body.
// Unrecognized errors become an opaque 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	reason := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error(err, "Request failed")
		reason = "internal error"
	}
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, status, errorBody{Reason: reason})
}

func (h *Handler) badRequest(w http.ResponseWriter, reason string) {
	w.Header().Set("Cache-Control", "no-store")
	h.writeJSON(w, http.StatusBadRequest, errorBody{Reason: reason})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, data.ErrInvalidPath),
		errors.Is(err, data.ErrInvalidRevision),
		errors.Is(err, data.ErrInvalidMoveDestination):
		return http.StatusBadRequest
	case errors.Is(err, data.ErrLockForbidden),
		errors.Is(err, data.ErrAmendForbidden),
		errors.Is(err, data.ErrRootProtected):
		return http.StatusForbidden
	case errors.Is(err, data.ErrPageNotFound),
		errors.Is(err, data.ErrLockNotFound),
		errors.Is(err, data.ErrAssetNotFound),
		errors.Is(err, data.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, data.ErrPageAlreadyExists),
		errors.Is(err, data.ErrAssetAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, data.ErrPageDeleted),
		errors.Is(err, data.ErrAssetDeleted),
		errors.Is(err, data.ErrAssetMovePageDeleted):
		return http.StatusGone
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, data.ErrPageLocked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

// pageIDParam parses the {pageID} route parameter.
func pageIDParam(r *http.Request) (data.PageID, error) {
	return data.ParsePageID(chi.URLParam(r, "pageID"))
}

// assetIDParam parses the {assetID} route parameter.
func assetIDParam(r *http.Request) (data.AssetID, error) {
	return data.ParseAssetID(chi.URLParam(r, "assetID"))
}

// lockAuthToken extracts the token from an X-Lock-Authentication header
// of the form "token=<tok>". Returns nil when the header is absent.
func lockAuthToken(r *http.Request) (*data.LockToken, error) {
	header := r.Header.Get("X-Lock-Authentication")
	if header == "" {
		return nil, nil
	}
	value, ok := strings.CutPrefix(strings.TrimSpace(header), "token=")
	if !ok {
		return nil, fmt.Errorf("malformed X-Lock-Authentication header")
	}
	token, err := data.ParseLockToken(value)
	if err != nil {
		return nil, fmt.Errorf("malformed lock token")
	}
	return &token, nil
}

// setLockHeader advertises a lock on the response.
func setLockHeader(w http.ResponseWriter, lock *data.LockInfo) {
	w.Header().Set("X-Page-Lock",
		fmt.Sprintf("expire=%s token=%s", lock.Expire.UTC().Format(time.RFC3339), lock.Token))
}

func pageETag(id data.PageID, rev data.Revision) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%s:%d", id, rev))
}

func setImmutable(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
}

// revisionQuery parses an optional numeric query parameter; 0 when absent.
func revisionQuery(r *http.Request, name string) (data.Revision, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || n == 0 {
		return 0, true, fmt.Errorf("invalid %s", name)
	}
	return data.Revision(n), true, nil
}

// boolQuery parses an optional boolean query parameter; anything other
// than "true" or "false" is rejected.
func boolQuery(r *http.Request, name string) (bool, error) {
	switch r.URL.Query().Get(name) {
	case "", "false":
		return false, nil
	case "true":
		return true, nil
	default:
		return false, fmt.Errorf("invalid %s", name)
	}
}
