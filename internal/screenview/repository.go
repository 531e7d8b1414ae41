package screenview

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permissionColumns = `id, admin_id, user_id, status, reason, created_at, expires_at, responded_at`

// Create inserts a pending permission.
func (r *Repository) Create(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO screen_view_permissions
(admin_id, user_id, status, reason, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+permissionColumns,
		p.AdminID, p.UserID, StatusPending, p.Reason, p.ExpiresAt)
	return scanPermission(row)
}

// Get fetches a permission by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM screen_view_permissions WHERE id = $1`, id)
	return scanPermission(row)
}

// CountPending returns how many pending requests target the user, regardless
// of which admin opened them.
func (r *Repository) CountPending(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM screen_view_permissions WHERE user_id = $1 AND status = $2`,
		userID, StatusPending).Scan(&n)
	return n, err
}

// HasPending reports whether a pending request exists for the pair.
func (r *Repository) HasPending(ctx context.Context, adminID, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM screen_view_permissions WHERE admin_id = $1 AND user_id = $2 AND status = $3)`,
		adminID, userID, StatusPending).Scan(&exists)
	return exists, err
}

// Resolve moves a pending permission to a terminal status. Only pending rows
// transition, so a stale caller finds RowsAffected zero.
func (r *Repository) Resolve(ctx context.Context, id int64, status Status, respondedAt time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE screen_view_permissions SET status = $2, responded_at = $3 WHERE id = $1 AND status = $4`,
		id, status, respondedAt, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// ListForAdmin returns an admin's requests, newest first.
func (r *Repository) ListForAdmin(ctx context.Context, adminID int64) ([]Permission, error) {
	return r.list(ctx, `SELECT `+permissionColumns+` FROM screen_view_permissions WHERE admin_id = $1 ORDER BY created_at DESC`, adminID)
}

// ListPendingForUser returns the user's open requests, oldest first.
func (r *Repository) ListPendingForUser(ctx context.Context, userID int64) ([]Permission, error) {
	return r.list(ctx, `SELECT `+permissionColumns+` FROM screen_view_permissions WHERE user_id = $1 AND status = 'PENDING' ORDER BY created_at`, userID)
}

// SweepExpired marks pending rows past their expiry as expired and returns
// how many changed.
func (r *Repository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE screen_view_permissions SET status = $1, responded_at = $2 WHERE status = $3 AND expires_at <= $2`,
		StatusExpired, now, StatusPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.AdminID, &p.UserID, &p.Status, &p.Reason, &p.CreatedAt, &p.ExpiresAt, &p.RespondedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}
