package handler

import (
	"errors"
	"net/http"
	"time"

	"wikid/internal/data"
	"wikid/internal/middleware"
)

// acquireLock takes the page's edit lock. A page already holding a live
// lock is a conflict, not a lock failure.
func (h *Handler) acquireLock(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	lock, err := h.svc.AcquireLock(id, middleware.UserName(r.Context()))
	if err != nil {
		if errors.Is(err, data.ErrPageLocked) {
			w.Header().Set("Cache-Control", "no-store")
			h.writeJSON(w, http.StatusConflict, errorBody{Reason: err.Error()})
			return
		}
		h.writeError(w, err)
		return
	}
	setLockHeader(w, lock)
	w.WriteHeader(http.StatusNoContent)
}

// extendLock refreshes the TTL and rotates the token; the old token
// stops working.
func (h *Handler) extendLock(w http.ResponseWriter, r *http.Request) {
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
	if token == nil {
		h.writeError(w, data.ErrPageLocked)
		return
	}
	lock, err := h.svc.ExtendLock(id, *token, middleware.UserName(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	setLockHeader(w, lock)
	w.WriteHeader(http.StatusNoContent)
}

type lockResponse struct {
	Expire   string `json:"expire"`
	UserName string `json:"username"`
}

// getLock reports the live lock on a page; an expired one is reaped on
// the way.
func (h *Handler) getLock(w http.ResponseWriter, r *http.Request) {
	id, err := pageIDParam(r)
	if err != nil {
		h.badRequest(w, "invalid page id")
		return
	}
	lock, err := h.svc.GetLock(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lockResponse{
		Expire:   lock.Expire.UTC().Format(time.RFC3339),
		UserName: lock.UserName,
	})
}

// releaseLock gives the lock up; releasing a draft's lock discards the
// draft.
func (h *Handler) releaseLock(w http.ResponseWriter, r *http.Request) {
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
	if token == nil {
		h.writeError(w, data.ErrPageLocked)
		return
	}
	if err := h.svc.ReleaseLock(id, *token, middleware.UserName(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
