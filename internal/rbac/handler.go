package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// Handler exposes read-only permission introspection endpoints.
type Handler struct {
	logger   *slog.Logger
	resolver *Resolver
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, resolver *Resolver) *Handler {
	return &Handler{logger: logger, resolver: resolver}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.myGrants)
}

type grantView struct {
	RoleID     int64   `json:"role_id"`
	Type       string  `json:"permission_type"`
	ResourceID *string `json:"resource_id"`
	IsAllowed  bool    `json:"is_allowed"`
}

func (h *Handler) myGrants(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	grants, err := h.resolver.Grants(r.Context(), userID)
	if err != nil {
		h.logger.Error("list grants", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]grantView, 0, len(grants))
	for _, g := range grants {
		views = append(views, grantView{RoleID: g.RoleID, Type: string(g.Type), ResourceID: g.ResourceID, IsAllowed: g.Allowed})
	}
	httpx.JSON(w, http.StatusOK, views)
}
