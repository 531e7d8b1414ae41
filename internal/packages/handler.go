package packages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetdesk/fleetdesk/internal/gate"
	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// Handler wires HTTP endpoints for the package catalog.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validator: validator.New()}
}

// MountRoutes registers package routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/packages", h.list)
	r.Get("/packages/installed", h.listInstalled)
	r.Post("/packages/{identifier}/install", h.install)
	r.Post("/packages/{identifier}/install/verify", h.verifyInstall)
	r.Post("/packages/{identifier}/uninstall", h.uninstall)
	r.Post("/packages/{identifier}/uninstall/verify", h.verifyUninstall)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSystemAction(rbac.ActionManageCatalog))
		r.Post("/packages", h.create)
		r.Put("/packages/{identifier}", h.update)
	})
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,len=8,numeric"`
}

type packageRequest struct {
	Identifier           string `json:"identifier" validate:"required,max=200"`
	Name                 string `json:"name" validate:"required,max=200"`
	Category             string `json:"category" validate:"required,max=100"`
	Description          string `json:"description" validate:"max=1000"`
	InstallCommand       string `json:"install_command" validate:"required"`
	UninstallCommand     string `json:"uninstall_command" validate:"required"`
	RequiresVerification bool   `json:"requires_verification"`
	IsSystemApp          bool   `json:"is_system_app"`
	IsActive             bool   `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	pkgs, err := h.service.ListAccessible(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pkgs)
}

func (h *Handler) listInstalled(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	apps, err := h.service.ListInstalled(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, apps)
}

func (h *Handler) install(w http.ResponseWriter, r *http.Request) {
	h.begin(w, r, h.service.Install)
}

func (h *Handler) uninstall(w http.ResponseWriter, r *http.Request) {
	h.begin(w, r, h.service.Uninstall)
}

func (h *Handler) begin(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID int64, identifier string) (gate.BeginResult, error)) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	result, err := op(r.Context(), userID, chi.URLParam(r, "identifier"))
	if err != nil && !errors.Is(err, gate.ErrExecutionFailed) {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) verifyInstall(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, h.service.VerifyInstall)
}

func (h *Handler) verifyUninstall(w http.ResponseWriter, r *http.Request) {
	h.verify(w, r, h.service.VerifyUninstall)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID int64, identifier, code string) (gate.ExecResult, error)) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	result, err := op(r.Context(), userID, chi.URLParam(r, "identifier"), req.Code)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pkg, err := h.service.Create(r.Context(), packageFromRequest(req))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pkg)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.service.repo.GetByIdentifier(r.Context(), chi.URLParam(r, "identifier"))
	if err != nil {
		h.fail(w, err)
		return
	}
	var req packageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	updated := packageFromRequest(req)
	updated.ID = existing.ID
	updated.Identifier = existing.Identifier
	pkg, err := h.service.Update(r.Context(), updated)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pkg)
}

func packageFromRequest(req packageRequest) Package {
	return Package{
		Identifier:           req.Identifier,
		Name:                 req.Name,
		Category:             req.Category,
		Description:          req.Description,
		InstallCommand:       req.InstallCommand,
		UninstallCommand:     req.UninstallCommand,
		RequiresVerification: req.RequiresVerification,
		IsSystemApp:          req.IsSystemApp,
		IsActive:             req.IsActive,
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, gate.ErrInvalidVerification), errors.Is(err, gate.ErrTooManyAttempts):
		httpx.RespondError(w, httpx.ErrInvalidVerification)
	case errors.Is(err, gate.ErrCodeExpired):
		httpx.RespondError(w, httpx.ErrExpired)
	case errors.Is(err, gate.ErrAlreadyRunning), errors.Is(err, gate.ErrNotClaimable):
		httpx.RespondError(w, httpx.ErrConflict)
	default:
		h.logger.Error("packages handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
