package tweaks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/gate"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
)

type memoryTweakRepo struct {
	tweaks map[string]Tweak
	nextID int64
}

func newMemoryTweakRepo(tweaks ...Tweak) *memoryTweakRepo {
	repo := &memoryTweakRepo{tweaks: make(map[string]Tweak), nextID: 1}
	for _, t := range tweaks {
		t.ID = repo.nextID
		repo.nextID++
		repo.tweaks[t.Slug] = t
	}
	return repo
}

func (r *memoryTweakRepo) GetBySlug(_ context.Context, slug string) (Tweak, error) {
	t, ok := r.tweaks[slug]
	if !ok {
		return Tweak{}, ErrNotFound
	}
	return t, nil
}

func (r *memoryTweakRepo) ListActive(_ context.Context) ([]Tweak, error) {
	out := make([]Tweak, 0, len(r.tweaks))
	for _, t := range r.tweaks {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryTweakRepo) Create(_ context.Context, t Tweak) (Tweak, error) {
	t.ID = r.nextID
	r.nextID++
	r.tweaks[t.Slug] = t
	return t, nil
}

func (r *memoryTweakRepo) Update(_ context.Context, t Tweak) (Tweak, error) {
	r.tweaks[t.Slug] = t
	return t, nil
}

type stubAccess struct {
	resources rbac.ResourceSet
}

func (s stubAccess) HasResource(_ context.Context, _ int64, _ rbac.PermissionType, resourceID string) (bool, error) {
	return s.resources.Contains(resourceID), nil
}

func (s stubAccess) AccessibleResources(_ context.Context, _ int64, _ rbac.PermissionType) (rbac.ResourceSet, error) {
	return s.resources, nil
}

type recordingExecutor struct {
	begun    []gate.Action
	verified []string
	result   gate.BeginResult
	execOut  gate.ExecResult
}

func (e *recordingExecutor) Begin(_ context.Context, _ int64, act gate.Action) (gate.BeginResult, error) {
	e.begun = append(e.begun, act)
	return e.result, nil
}

func (e *recordingExecutor) VerifyAndRun(_ context.Context, _ int64, act gate.Action, code string) (gate.ExecResult, error) {
	e.begun = append(e.begun, act)
	e.verified = append(e.verified, code)
	return e.execOut, nil
}

func TestListAccessibleFiltersBySet(t *testing.T) {
	repo := newMemoryTweakRepo(
		Tweak{Slug: "clear-cache", Name: "Clear Cache", IsActive: true},
		Tweak{Slug: "reset-network", Name: "Reset Network", IsActive: true},
		Tweak{Slug: "old-tweak", Name: "Old", IsActive: false},
	)
	svc := NewService(repo, stubAccess{resources: rbac.ResourceSet{IDs: []string{"clear-cache"}}}, &recordingExecutor{})

	tweaks, err := svc.ListAccessible(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tweaks, 1)
	require.Equal(t, "clear-cache", tweaks[0].Slug)
}

func TestListAccessibleWildcardIncludesOnlyActive(t *testing.T) {
	repo := newMemoryTweakRepo(
		Tweak{Slug: "clear-cache", IsActive: true},
		Tweak{Slug: "old-tweak", IsActive: false},
	)
	svc := NewService(repo, stubAccess{resources: rbac.ResourceSet{All: true}}, &recordingExecutor{})

	tweaks, err := svc.ListAccessible(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, tweaks, 1)
	require.Equal(t, "clear-cache", tweaks[0].Slug)
}

func TestExecuteDeniedWithoutGrant(t *testing.T) {
	repo := newMemoryTweakRepo(Tweak{Slug: "clear-cache", IsActive: true})
	svc := NewService(repo, stubAccess{}, &recordingExecutor{})

	_, err := svc.Execute(context.Background(), 7, "clear-cache")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestExecuteInactiveLooksMissing(t *testing.T) {
	repo := newMemoryTweakRepo(Tweak{Slug: "clear-cache", IsActive: false})
	svc := NewService(repo, stubAccess{resources: rbac.ResourceSet{All: true}}, &recordingExecutor{})

	_, err := svc.Execute(context.Background(), 7, "clear-cache")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExecutePassesGatedAction(t *testing.T) {
	repo := newMemoryTweakRepo(Tweak{Slug: "wipe-logs", Name: "Wipe Logs", Command: "rm -f /var/log/app.log", IsDangerous: true, IsActive: true})
	exec := &recordingExecutor{result: gate.BeginResult{RequiresVerification: true, LogID: 42}}
	svc := NewService(repo, stubAccess{resources: rbac.ResourceSet{All: true}}, exec)

	res, err := svc.Execute(context.Background(), 7, "wipe-logs")
	require.NoError(t, err)
	require.True(t, res.RequiresVerification)
	require.Len(t, exec.begun, 1)
	require.Equal(t, gate.KindTweakExecute, exec.begun[0].Kind())
	require.Equal(t, "wipe-logs", exec.begun[0].ResourceID())
	require.True(t, exec.begun[0].Gated())
}

func TestVerifyForwardsCode(t *testing.T) {
	repo := newMemoryTweakRepo(Tweak{Slug: "wipe-logs", IsDangerous: true, IsActive: true})
	exec := &recordingExecutor{execOut: gate.ExecResult{Success: true}}
	svc := NewService(repo, stubAccess{resources: rbac.ResourceSet{All: true}}, exec)

	res, err := svc.Verify(context.Background(), 7, "wipe-logs", "12345678")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{"12345678"}, exec.verified)
}
