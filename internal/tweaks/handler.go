package tweaks

import (
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

// Handler wires HTTP endpoints for tweaks.
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

// MountRoutes registers tweak routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tweaks", h.list)
	r.Post("/tweaks/{slug}/execute", h.execute)
	r.Post("/tweaks/{slug}/verify", h.verify)

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSystemAction(rbac.ActionManageCatalog))
		r.Post("/tweaks", h.create)
		r.Put("/tweaks/{slug}", h.update)
	})
}

type verifyRequest struct {
	Code string `json:"code" validate:"required,len=8,numeric"`
}

type tweakRequest struct {
	Slug                 string `json:"slug" validate:"required,max=100"`
	Name                 string `json:"name" validate:"required,max=200"`
	Description          string `json:"description" validate:"max=1000"`
	Command              string `json:"command" validate:"required"`
	IsDangerous          bool   `json:"is_dangerous"`
	RequiresVerification bool   `json:"requires_verification"`
	IsActive             bool   `json:"is_active"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	tweaks, err := h.service.ListAccessible(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tweaks)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	result, err := h.service.Execute(r.Context(), userID, chi.URLParam(r, "slug"))
	if err != nil && !errors.Is(err, gate.ErrExecutionFailed) {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
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
	result, err := h.service.Verify(r.Context(), userID, chi.URLParam(r, "slug"), req.Code)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req tweakRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	tweak, err := h.service.Create(r.Context(), Tweak{
		Slug:                 req.Slug,
		Name:                 req.Name,
		Description:          req.Description,
		Command:              req.Command,
		IsDangerous:          req.IsDangerous,
		RequiresVerification: req.RequiresVerification,
		IsActive:             req.IsActive,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tweak)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	existing, err := h.service.repo.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, err)
		return
	}
	var req tweakRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	existing.Name = req.Name
	existing.Description = req.Description
	existing.Command = req.Command
	existing.IsDangerous = req.IsDangerous
	existing.RequiresVerification = req.RequiresVerification
	existing.IsActive = req.IsActive
	tweak, err := h.service.Update(r.Context(), existing)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tweak)
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
		h.logger.Error("tweaks handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
