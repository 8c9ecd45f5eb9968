package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worksInOurMachine/muscledenz-admin-dashboard/internal/usecases"
)

// GetHome handles GET /home
func (h *Handler) GetHome(w http.ResponseWriter, r *http.Request) {
	page, err := h.deps.Home.Get(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to load home page")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": page})
}

// SaveHomeSection handles PUT /home/{section}
func (h *Handler) SaveHomeSection(w http.ResponseWriter, r *http.Request) {
	var in usecases.SectionInput
	if err := decodeJSON(r, &in); err != nil {
		h.fail(w, r, err, "failed to save section")
		return
	}
	if err := h.deps.Home.SaveSection(r.Context(), chi.URLParam(r, "section"), in); err != nil {
		h.fail(w, r, err, "failed to save section")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadHomeImages handles POST /home/{section}/images (multipart "files")
func (h *Handler) UploadHomeImages(w http.ResponseWriter, r *http.Request) {
	files, ok := h.formFiles(w, r, "files")
	if !ok {
		return
	}
	page, err := h.deps.Home.UploadSectionImages(r.Context(), chi.URLParam(r, "section"), files)
	if err != nil {
		h.fail(w, r, err, "failed to upload images")
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]interface{}{"data": page})
}

// Analytics handles GET /analytics/dashboard
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	data, err := h.deps.Dashboard.Analytics(r.Context())
	if err != nil {
		h.fail(w, r, err, "failed to load analytics")
		return
	}
	h.respondJSON(w, r, http.StatusOK, data)
}
