package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetdesk/fleetdesk/internal/platform/httpx"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// ReadPort exposes the log queries backing the HTTP surface.
type ReadPort interface {
	Get(ctx context.Context, id int64) (ActionLog, error)
	ListForActor(ctx context.Context, actorID int64, limit int) ([]ActionLog, error)
}

// Handler serves an actor's own action history. Verification codes never
// leave the server; logView carries everything else.
type Handler struct {
	logger *slog.Logger
	repo   ReadPort
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, repo ReadPort) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers action log routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/actions", h.list)
	r.Get("/actions/{id}", h.show)
}

type logView struct {
	ID          int64      `json:"id"`
	Kind        ActionKind `json:"kind"`
	ResourceID  string     `json:"resource_id"`
	Status      Status     `json:"status"`
	Attempts    int        `json:"attempts"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func viewOf(log ActionLog) logView {
	return logView{
		ID:          log.ID,
		Kind:        log.Kind,
		ResourceID:  log.ResourceID,
		Status:      log.Status,
		Attempts:    log.Attempts,
		Output:      log.Output,
		Error:       log.ErrorMessage,
		CreatedAt:   log.CreatedAt,
		CompletedAt: log.CompletedAt,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	logs, err := h.repo.ListForActor(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error("list action logs", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]logView, 0, len(logs))
	for _, log := range logs {
		views = append(views, viewOf(log))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	log, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("load action log", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if log.ActorID != userID {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, viewOf(log))
}
