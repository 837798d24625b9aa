package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhr/meridian/internal/audit"
	"github.com/meridianhr/meridian/internal/authz"
	"github.com/meridianhr/meridian/internal/catalog"
	"github.com/meridianhr/meridian/internal/grants"
	"github.com/meridianhr/meridian/internal/observability"
	"github.com/meridianhr/meridian/internal/platform/httpx"
	"github.com/meridianhr/meridian/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthzHandler    *authz.Handler
	CatalogHandler  *catalog.Handler
	RolesHandler    *roles.Handler
	GrantsHandler   *grants.Handler
	AuditHandler    *audit.Handler
	AuthzMiddleware authz.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Decision surface: read-only, available to any identified caller.
		r.Route("/authz", func(r chi.Router) {
			params.AuthzHandler.MountRoutes(r)
		})

		// Administrative surface: guarded by the engine itself.
		r.Route("/permissions", func(r chi.Router) {
			r.Use(params.AuthzMiddleware.Require("ADMIN", "R"))
			params.CatalogHandler.MountRoutes(r)
		})
		r.Route("/roles", func(r chi.Router) {
			r.Use(params.AuthzMiddleware.Require("ADMIN", "U"))
			params.RolesHandler.MountRoutes(r)
		})
		r.Route("/grants", func(r chi.Router) {
			r.Use(params.AuthzMiddleware.Require("ADMIN", "U"))
			params.GrantsHandler.MountRoutes(r)
		})
		r.Route("/audit", func(r chi.Router) {
			r.Use(params.AuthzMiddleware.Require("ADMIN", "R"))
			params.AuditHandler.MountRoutes(r)
		})
	})

	return r
}
