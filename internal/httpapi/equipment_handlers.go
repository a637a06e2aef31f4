package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/equipment"
)

func (a *API) listEquipment(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.equipment.List(r.Context(), id, f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func filterFromQuery(r *http.Request) (equipment.Filter, error) {
	q := r.URL.Query()
	f := equipment.Filter{
		Status:          equipment.Status(q.Get("status")),
		Condition:       equipment.Condition(q.Get("condition")),
		EquipmentTypeID: q.Get("equipment_type_id"),
		Location:        q.Get("location"),
		Search:          strings.TrimSpace(q.Get("search")),
		SortBy:          q.Get("sort_by"),
		SortOrder:       q.Get("sort_order"),
	}
	var err error
	if f.Page, err = queryInt(q.Get("page")); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(q.Get("page_size")); err != nil {
		return f, err
	}
	return f, nil
}

func queryInt(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (a *API) createEquipment(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req equipment.CreateInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := a.equipment.Create(r.Context(), id, req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/equipment/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) getEquipment(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	detail, err := a.equipment.Get(r.Context(), id, chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) updateEquipment(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req equipment.Update
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, err := a.equipment.Update(r.Context(), id, chi.URLParam(r, "id"), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) updateEquipmentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req equipment.StatusUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	e, h, err := a.equipment.UpdateStatus(r.Context(), id, chi.URLParam(r, "id"), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"equipment": e,
		"history":   h,
	})
}

func (a *API) equipmentHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}
	entries, err := a.equipment.FullHistory(r.Context(), id, chi.URLParam(r, "id"), limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (a *API) deleteEquipment(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.equipment.Delete(r.Context(), id, chi.URLParam(r, "id")); err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}
