package screenview

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/rbac"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

func newTestHandler(repo *memoryPermRepo) (*Handler, *Service) {
	svc := newTestService(repo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, svc, rbac.Middleware{}), svc
}

func doRequest(h *Handler, adminID int64, body string) *httptest.ResponseRecorder {
	sess := &shared.Session{}
	sess.SetUser(adminID)

	req := httptest.NewRequest(http.MethodPost, "/screen-views", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	rec := httptest.NewRecorder()
	h.request(rec, req)
	return rec
}

func TestRequestEndpointDefaultsToOneHour(t *testing.T) {
	repo := newMemoryPermRepo()
	h, _ := newTestHandler(repo)

	rec := doRequest(h, 1, `{"user_id": 2}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	perm, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(requestDefaultDuration), perm.ExpiresAt, 2*time.Second)

	// The service keeps its own shorter fallback for callers that pass a
	// zero duration directly, such as the worker bootstrap.
	_, svc := newTestHandler(newMemoryPermRepo())
	direct, err := svc.Request(context.Background(), 1, 2, "", 0)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), direct.ExpiresAt, 2*time.Second)
}

func TestRequestEndpointHonorsExplicitDuration(t *testing.T) {
	repo := newMemoryPermRepo()
	h, _ := newTestHandler(repo)

	rec := doRequest(h, 1, `{"user_id": 2, "duration_minutes": 15}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	perm, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), perm.ExpiresAt, 2*time.Second)
}

func TestRequestEndpointRejectsUnauthenticated(t *testing.T) {
	h, _ := newTestHandler(newMemoryPermRepo())

	req := httptest.NewRequest(http.MethodPost, "/screen-views", strings.NewReader(`{"user_id": 2}`))
	rec := httptest.NewRecorder()
	h.request(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
