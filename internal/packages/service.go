package packages

import (
	"context"

	"github.com/fleetdesk/fleetdesk/internal/gate"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
)

// RepositoryPort describes catalog operations used by Service.
type RepositoryPort interface {
	GetByIdentifier(ctx context.Context, identifier string) (Package, error)
	ListActive(ctx context.Context) ([]Package, error)
	Create(ctx context.Context, p Package) (Package, error)
	Update(ctx context.Context, p Package) (Package, error)
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

// Service orchestrates catalog access, installs and uninstalls.
type Service struct {
	repo     RepositoryPort
	ledger   InstalledAppsPort
	access   AccessPort
	executor ExecutorPort
}

// NewService constructs the package service.
func NewService(repo RepositoryPort, ledger InstalledAppsPort, access AccessPort, executor ExecutorPort) *Service {
	return &Service{repo: repo, ledger: ledger, access: access, executor: executor}
}

// ListAccessible returns the active packages the user may install. A package
// is accessible through a grant on the package itself or on its category.
func (s *Service) ListAccessible(ctx context.Context, userID int64) ([]Package, error) {
	pkgSet, err := s.access.AccessibleResources(ctx, userID, rbac.PermissionPackage)
	if err != nil {
		return nil, err
	}
	catSet, err := s.access.AccessibleResources(ctx, userID, rbac.PermissionPackageCategory)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if pkgSet.All || catSet.All {
		return all, nil
	}
	accessible := make([]Package, 0, len(all))
	for _, p := range all {
		if pkgSet.Contains(p.Identifier) || catSet.Contains(p.Category) {
			accessible = append(accessible, p)
		}
	}
	return accessible, nil
}

// ListInstalled returns the user's installed applications.
func (s *Service) ListInstalled(ctx context.Context, userID int64) ([]InstalledApp, error) {
	return s.ledger.ListForUser(ctx, userID)
}

// Install begins installation of a package.
func (s *Service) Install(ctx context.Context, actorID int64, identifier string) (gate.BeginResult, error) {
	pkg, err := s.authorized(ctx, actorID, identifier)
	if err != nil {
		return gate.BeginResult{}, err
	}
	return s.executor.Begin(ctx, actorID, installAction{pkg: pkg, userID: actorID, ledger: s.ledger})
}

// VerifyInstall consumes a verification code and runs the pending install.
func (s *Service) VerifyInstall(ctx context.Context, actorID int64, identifier, code string) (gate.ExecResult, error) {
	pkg, err := s.authorized(ctx, actorID, identifier)
	if err != nil {
		return gate.ExecResult{}, err
	}
	return s.executor.VerifyAndRun(ctx, actorID, installAction{pkg: pkg, userID: actorID, ledger: s.ledger}, code)
}

// Uninstall begins removal of a package.
func (s *Service) Uninstall(ctx context.Context, actorID int64, identifier string) (gate.BeginResult, error) {
	pkg, err := s.authorized(ctx, actorID, identifier)
	if err != nil {
		return gate.BeginResult{}, err
	}
	return s.executor.Begin(ctx, actorID, uninstallAction{pkg: pkg, userID: actorID, ledger: s.ledger})
}

// VerifyUninstall consumes a verification code and runs the pending uninstall.
func (s *Service) VerifyUninstall(ctx context.Context, actorID int64, identifier, code string) (gate.ExecResult, error) {
	pkg, err := s.authorized(ctx, actorID, identifier)
	if err != nil {
		return gate.ExecResult{}, err
	}
	return s.executor.VerifyAndRun(ctx, actorID, uninstallAction{pkg: pkg, userID: actorID, ledger: s.ledger}, code)
}

// Create adds a package to the catalog.
func (s *Service) Create(ctx context.Context, p Package) (Package, error) {
	return s.repo.Create(ctx, p)
}

// Update modifies a catalog entry.
func (s *Service) Update(ctx context.Context, p Package) (Package, error) {
	return s.repo.Update(ctx, p)
}

func (s *Service) authorized(ctx context.Context, actorID int64, identifier string) (Package, error) {
	pkg, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil {
		return Package{}, err
	}
	if !pkg.IsActive {
		return Package{}, ErrNotFound
	}
	allowed, err := s.access.HasResource(ctx, actorID, rbac.PermissionPackage, pkg.Identifier)
	if err != nil {
		return Package{}, err
	}
	if !allowed {
		allowed, err = s.access.HasResource(ctx, actorID, rbac.PermissionPackageCategory, pkg.Category)
		if err != nil {
			return Package{}, err
		}
	}
	if !allowed {
		return Package{}, ErrForbidden
	}
	return pkg, nil
}
