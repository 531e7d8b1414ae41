package roles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetdesk/fleetdesk/internal/rbac"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id int64) (Role, error)
	Create(ctx context.Context, name, description string) (Role, error)
	Update(ctx context.Context, id int64, name, description string) (Role, error)
	Delete(ctx context.Context, id int64) error
	CountAssignments(ctx context.Context, roleID int64) (int, error)
	ListGrants(ctx context.Context, roleID int64) ([]rbac.Grant, error)
	ReplaceGrants(ctx context.Context, roleID int64, grants []rbac.Grant) error
	Assign(ctx context.Context, a Assignment) error
	Unassign(ctx context.Context, userID, roleID int64) error
	ListAssignments(ctx context.Context, roleID int64) ([]Assignment, error)
}

// GrantInput describes one permission row supplied by an administrator.
type GrantInput struct {
	Type       string
	ResourceID *string
	Allowed    bool
}

// Service orchestrates role management.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
}

// NewService constructs the role service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit}
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// Get returns a role and its permission rows.
func (s *Service) Get(ctx context.Context, id int64) (Role, []rbac.Grant, error) {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	grants, err := s.repo.ListGrants(ctx, id)
	if err != nil {
		return Role{}, nil, err
	}
	return role, grants, nil
}

// Create inserts a new administrator-defined role.
func (s *Service) Create(ctx context.Context, actorID int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: name required")
	}
	role, err := s.repo.Create(ctx, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_CREATE", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// Update renames a role. System roles are protected.
func (s *Service) Update(ctx context.Context, actorID, id int64, name, description string) (Role, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if existing.IsSystemRole {
		return Role{}, ErrSystemRole
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("roles: name required")
	}
	role, err := s.repo.Update(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actorID, "ROLE_UPDATE", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// Delete removes a role unless it is a system role or still assigned.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}
	count, err := s.repo.CountAssignments(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrRoleInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_DELETE", id, map[string]any{"name": role.Name})
	return nil
}

// SetGrants replaces the permission rows of a role.
func (s *Service) SetGrants(ctx context.Context, actorID, roleID int64, inputs []GrantInput) error {
	if _, err := s.repo.Get(ctx, roleID); err != nil {
		return err
	}
	grants := make([]rbac.Grant, 0, len(inputs))
	for _, in := range inputs {
		ptype := rbac.PermissionType(strings.TrimSpace(in.Type))
		if !ptype.Valid() {
			return fmt.Errorf("roles: unknown permission type %q", in.Type)
		}
		resource := in.ResourceID
		if resource != nil {
			trimmed := strings.TrimSpace(*resource)
			if trimmed == "" {
				resource = nil
			} else {
				resource = &trimmed
			}
		}
		grants = append(grants, rbac.Grant{RoleID: roleID, Type: ptype, ResourceID: resource, Allowed: in.Allowed})
	}
	if err := s.repo.ReplaceGrants(ctx, roleID, grants); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_SET_PERMISSIONS", roleID, map[string]any{"count": len(grants)})
	return nil
}

// Assign grants a role to a user. Duplicate assignments conflict.
func (s *Service) Assign(ctx context.Context, actorID, userID, roleID int64) error {
	if _, err := s.repo.Get(ctx, roleID); err != nil {
		return err
	}
	err := s.repo.Assign(ctx, Assignment{UserID: userID, RoleID: roleID, AssignedBy: actorID})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_ASSIGN", roleID, map[string]any{"user_id": userID})
	return nil
}

// Unassign removes a role from a user.
func (s *Service) Unassign(ctx context.Context, actorID, userID, roleID int64) error {
	if err := s.repo.Unassign(ctx, userID, roleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ROLE_UNASSIGN", roleID, map[string]any{"user_id": userID})
	return nil
}

// Assignments lists the users holding a role.
func (s *Service) Assignments(ctx context.Context, roleID int64) ([]Assignment, error) {
	if _, err := s.repo.Get(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, roleID)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	})
}
