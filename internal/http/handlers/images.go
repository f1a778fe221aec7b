package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxImageUpload = 32 << 20

// ImageGenerate forwards an uploaded image plus prompt to the inference
// backend and streams the edited image back.
func (a *App) ImageGenerate(w http.ResponseWriter, r *http.Request) {
	source, filename, ok := a.imageUpload(w, r)
	if !ok {
		return
	}
	prompt := r.FormValue("prompt")
	if prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}
	result, err := a.Images.Edit(r.Context(), source, filename, prompt)
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

// ImageFilter applies one of the fixed filters to an uploaded image.
func (a *App) ImageFilter(w http.ResponseWriter, r *http.Request) {
	source, filename, ok := a.imageUpload(w, r)
	if !ok {
		return
	}
	filter := chi.URLParam(r, "filter")
	result, err := a.Images.Filter(r.Context(), source, filename, filter, r.URL.Query().Get("debug_stage"))
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (a *App) imageUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "multipart form required")
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return nil, "", false
	}
	defer file.Close()
	source, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable upload")
		return nil, "", false
	}
	return source, header.Filename, true
}
