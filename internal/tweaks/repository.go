package tweaks

import (
	"context"
	"errors"

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

const tweakColumns = `id, slug, name, description, command, is_dangerous, requires_verification, is_active, created_at, updated_at`

// GetBySlug fetches a tweak by its slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (Tweak, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tweakColumns+` FROM tweaks WHERE slug = $1`, slug)
	return scanTweak(row)
}

// ListActive returns all active tweaks ordered by name.
func (r *Repository) ListActive(ctx context.Context) ([]Tweak, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tweakColumns+` FROM tweaks WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tweaks []Tweak
	for rows.Next() {
		t, err := scanTweak(rows)
		if err != nil {
			return nil, err
		}
		tweaks = append(tweaks, t)
	}
	return tweaks, rows.Err()
}

// Create inserts a tweak.
func (r *Repository) Create(ctx context.Context, t Tweak) (Tweak, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO tweaks
(slug, name, description, command, is_dangerous, requires_verification, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING `+tweakColumns,
		t.Slug, t.Name, t.Description, t.Command, t.IsDangerous, t.RequiresVerification, t.IsActive)
	return scanTweak(row)
}

// Update modifies a tweak by ID.
func (r *Repository) Update(ctx context.Context, t Tweak) (Tweak, error) {
	row := r.pool.QueryRow(ctx, `UPDATE tweaks
SET name = $2, description = $3, command = $4, is_dangerous = $5, requires_verification = $6, is_active = $7, updated_at = NOW()
WHERE id = $1
RETURNING `+tweakColumns,
		t.ID, t.Name, t.Description, t.Command, t.IsDangerous, t.RequiresVerification, t.IsActive)
	return scanTweak(row)
}

func scanTweak(row pgx.Row) (Tweak, error) {
	var t Tweak
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.Description, &t.Command,
		&t.IsDangerous, &t.RequiresVerification, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tweak{}, ErrNotFound
		}
		return Tweak{}, err
	}
	return t, nil
}
