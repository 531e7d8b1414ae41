package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetdesk/fleetdesk/internal/platform/db"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all roles ordered by id.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_system_role, created_at, updated_at
FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Get fetches a single role.
func (r *Repository) Get(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, is_system_role, created_at, updated_at
FROM roles WHERE id = $1`, id).Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (name, description, is_system_role)
VALUES ($1, $2, FALSE)
RETURNING id, name, description, is_system_role, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// Update modifies name and description of a role.
func (r *Repository) Update(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW()
WHERE id = $1
RETURNING id, name, description, is_system_role, created_at, updated_at`, id, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// Delete removes a role. Returns ErrNotFound when nothing was deleted.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAssignments returns the number of users holding the role.
func (r *Repository) CountAssignments(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_role_assignments WHERE role_id = $1`, roleID).Scan(&count)
	return count, err
}

// ListGrants returns the permission rows of a role.
func (r *Repository) ListGrants(ctx context.Context, roleID int64) ([]rbac.Grant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, permission_type, resource_id, is_allowed
FROM role_permissions WHERE role_id = $1 ORDER BY permission_type, resource_id NULLS FIRST`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []rbac.Grant
	for rows.Next() {
		var g rbac.Grant
		if err := rows.Scan(&g.RoleID, &g.Type, &g.ResourceID, &g.Allowed); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ReplaceGrants swaps the permission rows of a role atomically.
func (r *Repository) ReplaceGrants(ctx context.Context, roleID int64, grants []rbac.Grant) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, g := range grants {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_type, resource_id, is_allowed)
VALUES ($1, $2, $3, $4)`, roleID, g.Type, g.ResourceID, g.Allowed); err != nil {
				return err
			}
		}
		return nil
	})
}

// Assign links a user to a role. Duplicates surface as ErrAlreadyAssigned.
func (r *Repository) Assign(ctx context.Context, a Assignment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_role_assignments (user_id, role_id, assigned_by, assigned_at)
VALUES ($1, $2, $3, NOW())`, a.UserID, a.RoleID, a.AssignedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyAssigned
		}
		return err
	}
	return nil
}

// Unassign removes a role from a user.
func (r *Repository) Unassign(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_role_assignments WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAssignments returns assignments for a role.
func (r *Repository) ListAssignments(ctx context.Context, roleID int64) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, role_id, assigned_by, assigned_at
FROM user_role_assignments WHERE role_id = $1 ORDER BY assigned_at`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.AssignedBy, &a.AssignedAt); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}
