package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"

	"equiptrack.io/internal/audit"
	"equiptrack.io/internal/auth"
	"equiptrack.io/internal/equipment"
	"equiptrack.io/internal/files"
	"equiptrack.io/internal/obs"
	"equiptrack.io/internal/ratelimit"
)

// ReadyProbe reports readiness, usually a DB ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer. The middleware chain in Handler is the request
// pipeline: request-id, metrics, logging, rate limit, identity, tenant
// context, then handlers, with audit capture wrapped around the protected
// routes.
type API struct {
	router     chi.Router
	auth       *auth.Service
	equipment  *equipment.Service
	files      *files.Service
	disk       *files.DiskStore
	recorder   *audit.Recorder
	limiter    ratelimit.Store
	readyProbe ReadyProbe
	version    string
	loginGuard *credentialGuard
}

// Options bundles the API's collaborators.
type Options struct {
	Auth       *auth.Service
	Equipment  *equipment.Service
	Files      *files.Service
	Disk       *files.DiskStore
	Recorder   *audit.Recorder
	Limiter    ratelimit.Store
	ReadyProbe ReadyProbe
	Version    string
}

func New(opts Options) *API {
	a := &API{
		router:     chi.NewRouter(),
		auth:       opts.Auth,
		equipment:  opts.Equipment,
		files:      opts.Files,
		disk:       opts.Disk,
		recorder:   opts.Recorder,
		limiter:    opts.Limiter,
		readyProbe: opts.ReadyProbe,
		version:    opts.Version,
		loginGuard: newCredentialGuard(),
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router

	r.Use(a.withRequestID)
	r.Use(obs.Instrument)
	r.Use(a.withRequestLogging)
	r.Use(a.withRateLimit)
	r.Use(a.withIdentity)
	r.Use(a.withAudit)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register-company", a.registerCompany)
		r.Post("/login", a.login)
		r.Get("/me", a.me)
		r.Get("/invitation/{token}", a.getInvitation)
		r.Post("/accept-invitation/{token}", a.acceptInvitation)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", a.listUsers)
		r.Post("/invite", a.inviteUser)
		r.Get("/profile", a.getProfile)
		r.Put("/profile", a.updateProfile)
		r.Put("/password", a.changePassword)
		r.Get("/{id}", a.getUser)
		r.Put("/{id}/role", a.changeRole)
		r.Put("/{id}/deactivate", a.deactivateUser)
		r.Put("/{id}/reactivate", a.reactivateUser)
	})

	r.Route("/equipment-types", func(r chi.Router) {
		r.Get("/", a.listEquipmentTypes)
		r.Post("/", a.createEquipmentType)
		r.Get("/{id}", a.getEquipmentType)
		r.Put("/{id}", a.updateEquipmentType)
		r.Delete("/{id}", a.deleteEquipmentType)
	})

	r.Route("/equipment", func(r chi.Router) {
		r.Get("/", a.listEquipment)
		r.Post("/", a.createEquipment)
		r.Get("/{id}", a.getEquipment)
		r.Put("/{id}", a.updateEquipment)
		r.Delete("/{id}", a.deleteEquipment)
		r.Patch("/{id}/status", a.updateEquipmentStatus)
		r.Get("/{id}/history", a.equipmentHistory)
		r.Get("/{id}/photos", a.listEquipmentPhotos)
		r.Post("/{id}/photos", a.uploadEquipmentPhoto)
	})

	r.Route("/photos", func(r chi.Router) {
		r.Put("/{id}/primary", a.setPrimaryPhoto)
		r.Delete("/{id}", a.deletePhoto)
	})

	r.Get("/files/{name}", a.serveFile)
}

// Handler returns the fully wired pipeline.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "equiptrack-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
