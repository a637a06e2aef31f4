package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/files"
)

const maxUploadBytes = 5<<20 + 1<<20 // photo limit plus multipart overhead

func (a *API) uploadEquipmentPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "could not read upload")
		return
	}

	p, err := a.files.UploadPhoto(r.Context(), id, files.UploadInput{
		EquipmentID: chi.URLParam(r, "id"),
		Filename:    header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		Data:        data,
		IsPrimary:   r.FormValue("is_primary") == "true",
		PhotoType:   r.FormValue("photo_type"),
		Description: r.FormValue("description"),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listEquipmentPhotos(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	photos, err := a.files.ListPhotos(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": photos})
}

func (a *API) setPrimaryPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	p, err := a.files.SetPrimary(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) deletePhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.files.DeletePhoto(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) serveFile(w http.ResponseWriter, r *http.Request) {
	if a.disk == nil {
		writeError(w, r, http.StatusNotFound, "file serving disabled")
		return
	}
	path, err := a.disk.Path(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}
