package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"equiptrack.io/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) registerCompany(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterCompanyInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.auth.RegisterCompany(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	u, err := a.auth.GetUser(r.Context(), id, id.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	tc, ok := auth.TenantFromContext(r.Context())
	if !ok {
		tc = auth.Derive(id)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":   u,
		"tenant": tc,
	})
}

func (a *API) getInvitation(w http.ResponseWriter, r *http.Request) {
	details, err := a.auth.GetInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (a *API) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req auth.AcceptInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.auth.AcceptInvitation(r.Context(), chi.URLParam(r, "token"), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
