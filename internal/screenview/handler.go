package screenview

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// Handler wires HTTP endpoints for screen view negotiation.
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

// MountRoutes registers screen view routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSystemAction(rbac.ActionScreenView))
		r.Post("/screen-views", h.request)
		r.Get("/screen-views", h.listForAdmin)
		r.Delete("/screen-views/{id}", h.cancel)
	})

	r.Get("/screen-views/pending", h.listPending)
	r.Post("/screen-views/{id}/respond", h.respond)
}

// Admin-initiated requests that omit a duration get a full hour. This is
// deliberately longer than the service fallback used elsewhere.
const requestDefaultDuration = 60 * time.Minute

type requestBody struct {
	UserID          int64  `json:"user_id" validate:"required"`
	Reason          string `json:"reason" validate:"max=500"`
	DurationMinutes int    `json:"duration_minutes" validate:"min=0,max=1440"`
}

type respondBody struct {
	Approve bool `json:"approve"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	adminID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req requestBody
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if req.DurationMinutes == 0 {
		duration = requestDefaultDuration
	}
	perm, err := h.service.Request(r.Context(), adminID, req.UserID, req.Reason, duration)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req respondBody
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	perm, err := h.service.Respond(r.Context(), userID, id, req.Approve)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	adminID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.Cancel(r.Context(), adminID, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listForAdmin(w http.ResponseWriter, r *http.Request) {
	adminID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	perms, err := h.service.ListForAdmin(r.Context(), adminID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	perms, err := h.service.ListPendingForUser(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrForbidden):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrQuotaExceeded), errors.Is(err, ErrDuplicatePending), errors.Is(err, ErrNotPending):
		httpx.RespondError(w, httpx.ErrConflict)
	case errors.Is(err, ErrExpired):
		httpx.RespondError(w, httpx.ErrExpired)
	case errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrReasonTooLong):
		httpx.RespondError(w, httpx.ErrValidation)
	default:
		h.logger.Error("screenview handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
