package roles

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/rbac"
)

type memoryRoleRepo struct {
	roles       map[int64]Role
	grants      map[int64][]rbac.Grant
	assignments map[[2]int64]Assignment
	nextID      int64
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		roles:       make(map[int64]Role),
		grants:      make(map[int64][]rbac.Grant),
		assignments: make(map[[2]int64]Assignment),
	}
}

func (r *memoryRoleRepo) List(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryRoleRepo) Get(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) Create(ctx context.Context, name, description string) (Role, error) {
	r.nextID++
	role := Role{ID: r.nextID, Name: name, Description: description, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) Update(ctx context.Context, id int64, name, description string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.Name, role.Description = name, description
	r.roles[id] = role
	return role, nil
}

func (r *memoryRoleRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return ErrNotFound
	}
	delete(r.roles, id)
	return nil
}

func (r *memoryRoleRepo) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	count := 0
	for key := range r.assignments {
		if key[1] == roleID {
			count++
		}
	}
	return count, nil
}

func (r *memoryRoleRepo) ListGrants(ctx context.Context, roleID int64) ([]rbac.Grant, error) {
	return append([]rbac.Grant(nil), r.grants[roleID]...), nil
}

func (r *memoryRoleRepo) ReplaceGrants(ctx context.Context, roleID int64, grants []rbac.Grant) error {
	r.grants[roleID] = append([]rbac.Grant(nil), grants...)
	return nil
}

func (r *memoryRoleRepo) Assign(ctx context.Context, a Assignment) error {
	key := [2]int64{a.UserID, a.RoleID}
	if _, ok := r.assignments[key]; ok {
		return ErrAlreadyAssigned
	}
	a.AssignedAt = time.Now()
	r.assignments[key] = a
	return nil
}

func (r *memoryRoleRepo) Unassign(ctx context.Context, userID, roleID int64) error {
	key := [2]int64{userID, roleID}
	if _, ok := r.assignments[key]; !ok {
		return ErrNotFound
	}
	delete(r.assignments, key)
	return nil
}

func (r *memoryRoleRepo) ListAssignments(ctx context.Context, roleID int64) ([]Assignment, error) {
	var out []Assignment
	for key, a := range r.assignments {
		if key[1] == roleID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryRoleRepo) seedSystemRole(name string) Role {
	r.nextID++
	role := Role{ID: r.nextID, Name: name, IsSystemRole: true}
	r.roles[role.ID] = role
	return role
}

func TestDeleteSystemRoleBlocked(t *testing.T) {
	repo := newMemoryRoleRepo()
	admin := repo.seedSystemRole("admin")
	svc := NewService(repo, nil)

	err := svc.Delete(context.Background(), 1, admin.ID)
	require.ErrorIs(t, err, ErrSystemRole)
	_, getErr := repo.Get(context.Background(), admin.ID)
	require.NoError(t, getErr)
}

func TestDeleteAssignedRoleBlocked(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := NewService(repo, nil)

	role, err := svc.Create(context.Background(), 1, "operators", "")
	require.NoError(t, err)
	require.NoError(t, svc.Assign(context.Background(), 1, 99, role.ID))

	err = svc.Delete(context.Background(), 1, role.ID)
	require.ErrorIs(t, err, ErrRoleInUse)

	require.NoError(t, svc.Unassign(context.Background(), 1, 99, role.ID))
	require.NoError(t, svc.Delete(context.Background(), 1, role.ID))
}

func TestUpdateSystemRoleBlocked(t *testing.T) {
	repo := newMemoryRoleRepo()
	admin := repo.seedSystemRole("superadmin")
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), 1, admin.ID, "renamed", "")
	require.ErrorIs(t, err, ErrSystemRole)
}

func TestDuplicateAssignmentConflicts(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := NewService(repo, nil)

	role, err := svc.Create(context.Background(), 1, "viewers", "")
	require.NoError(t, err)

	require.NoError(t, svc.Assign(context.Background(), 1, 42, role.ID))
	err = svc.Assign(context.Background(), 1, 42, role.ID)
	require.ErrorIs(t, err, ErrAlreadyAssigned)
}

func TestSetGrantsValidatesTypeAndNormalisesWildcard(t *testing.T) {
	repo := newMemoryRoleRepo()
	svc := NewService(repo, nil)

	role, err := svc.Create(context.Background(), 1, "tweakers", "")
	require.NoError(t, err)

	err = svc.SetGrants(context.Background(), 1, role.ID, []GrantInput{{Type: "bogus", Allowed: true}})
	require.Error(t, err)

	blank := "   "
	err = svc.SetGrants(context.Background(), 1, role.ID, []GrantInput{
		{Type: "tweak", ResourceID: &blank, Allowed: true},
	})
	require.NoError(t, err)

	grants, err := repo.ListGrants(context.Background(), role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Nil(t, grants[0].ResourceID, "blank resource becomes a wildcard")
}
