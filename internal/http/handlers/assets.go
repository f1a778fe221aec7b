package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"miniapp-server/internal/storage"
)

// Asset serves a cached asset under the same path the stores mint share
// URLs for, so links embedded in casts resolve against this process.
func (a *App) Asset(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "asset key required")
		return
	}
	data, mime, err := a.Assets.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "asset not found")
			return
		}
		a.fail(w, err)
		return
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
