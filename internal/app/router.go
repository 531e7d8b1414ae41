package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fleetdesk/fleetdesk/internal/auth"
	"github.com/fleetdesk/fleetdesk/internal/gate"
	"github.com/fleetdesk/fleetdesk/internal/packages"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
	"github.com/fleetdesk/fleetdesk/internal/roles"
	"github.com/fleetdesk/fleetdesk/internal/screenview"
	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/tweaks"
	"github.com/fleetdesk/fleetdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SessionManager    *shared.SessionManager
	CSRFManager       *shared.CSRFManager
	AuthHandler       *auth.Handler
	RolesHandler      *roles.Handler
	TweaksHandler     *tweaks.Handler
	PackagesHandler   *packages.Handler
	ScreenViewHandler *screenview.Handler
	ActionsHandler    *gate.Handler
	RBACHandler       *rbac.Handler
	JobHandler        *jobs.Handler
	RBACMiddleware    rbac.Middleware
}

// NewRouter constructs the chi.Router with Fleetdesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireAuthenticated)

		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r)
		}
		if params.RolesHandler != nil {
			r.Route("/roles", func(r chi.Router) {
				r.Use(params.RBACMiddleware.RequireSystemAction(rbac.ActionManageRoles))
				params.RolesHandler.MountRoutes(r)
			})
		}
		if params.TweaksHandler != nil {
			params.TweaksHandler.MountRoutes(r)
		}
		if params.PackagesHandler != nil {
			params.PackagesHandler.MountRoutes(r)
		}
		if params.ScreenViewHandler != nil {
			params.ScreenViewHandler.MountRoutes(r)
		}
		if params.ActionsHandler != nil {
			params.ActionsHandler.MountRoutes(r)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r)
		})
	}

	return r
}
