package tweaks

import (
	"context"

	"github.com/fleetdesk/fleetdesk/internal/gate"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	GetBySlug(ctx context.Context, slug string) (Tweak, error)
	ListActive(ctx context.Context) ([]Tweak, error)
	Create(ctx context.Context, t Tweak) (Tweak, error)
	Update(ctx context.Context, t Tweak) (Tweak, error)
}

// AccessPort answers permission questions.
type AccessPort interface {
	HasResource(ctx context.Context, userID int64, ptype rbac.PermissionType, resourceID string) (bool, error)
	AccessibleResources(ctx context.Context, userID int64, ptype rbac.PermissionType) (rbac.ResourceSet, error)
}

// ExecutorPort drives the gated workflow.
type ExecutorPort interface {
	Begin(ctx context.Context, actorID int64, act gate.Action) (gate.BeginResult, error)
	VerifyAndRun(ctx context.Context, actorID int64, act gate.Action, code string) (gate.ExecResult, error)
}

// Service orchestrates tweak catalog access and execution.
type Service struct {
	repo     RepositoryPort
	access   AccessPort
	executor ExecutorPort
}

// NewService constructs the tweak service.
func NewService(repo RepositoryPort, access AccessPort, executor ExecutorPort) *Service {
	return &Service{repo: repo, access: access, executor: executor}
}

// ListAccessible returns the active tweaks the user may execute.
func (s *Service) ListAccessible(ctx context.Context, userID int64) ([]Tweak, error) {
	set, err := s.access.AccessibleResources(ctx, userID, rbac.PermissionTweak)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if set.All {
		return all, nil
	}
	accessible := make([]Tweak, 0, len(all))
	for _, t := range all {
		if set.Contains(t.Slug) {
			accessible = append(accessible, t)
		}
	}
	return accessible, nil
}

// Execute begins the gated execution of a tweak.
func (s *Service) Execute(ctx context.Context, actorID int64, slug string) (gate.BeginResult, error) {
	tweak, err := s.authorized(ctx, actorID, slug)
	if err != nil {
		return gate.BeginResult{}, err
	}
	return s.executor.Begin(ctx, actorID, action{tweak: tweak})
}

// Verify consumes a verification code and runs the pending tweak.
func (s *Service) Verify(ctx context.Context, actorID int64, slug, code string) (gate.ExecResult, error) {
	tweak, err := s.authorized(ctx, actorID, slug)
	if err != nil {
		return gate.ExecResult{}, err
	}
	return s.executor.VerifyAndRun(ctx, actorID, action{tweak: tweak}, code)
}

// Create adds a tweak to the catalog.
func (s *Service) Create(ctx context.Context, t Tweak) (Tweak, error) {
	return s.repo.Create(ctx, t)
}

// Update modifies a catalog entry.
func (s *Service) Update(ctx context.Context, t Tweak) (Tweak, error) {
	return s.repo.Update(ctx, t)
}

func (s *Service) authorized(ctx context.Context, actorID int64, slug string) (Tweak, error) {
	tweak, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return Tweak{}, err
	}
	if !tweak.IsActive {
		return Tweak{}, ErrNotFound
	}
	allowed, err := s.access.HasResource(ctx, actorID, rbac.PermissionTweak, tweak.Slug)
	if err != nil {
		return Tweak{}, err
	}
	if !allowed {
		return Tweak{}, ErrForbidden
	}
	return tweak, nil
}
