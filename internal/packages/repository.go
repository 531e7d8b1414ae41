package packages

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const packageColumns = `id, identifier, name, category, description, install_command, uninstall_command, requires_verification, is_system_app, is_active, created_at, updated_at`

// GetByIdentifier fetches a package by its identifier.
func (r *Repository) GetByIdentifier(ctx context.Context, identifier string) (Package, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE identifier = $1`, identifier)
	return scanPackage(row)
}

// ListActive returns all active packages ordered by category then name.
func (r *Repository) ListActive(ctx context.Context) ([]Package, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+packageColumns+` FROM packages WHERE is_active ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pkgs []Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// Create inserts a catalog entry.
func (r *Repository) Create(ctx context.Context, p Package) (Package, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO packages
(identifier, name, category, description, install_command, uninstall_command, requires_verification, is_system_app, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+packageColumns,
		p.Identifier, p.Name, p.Category, p.Description, p.InstallCommand, p.UninstallCommand,
		p.RequiresVerification, p.IsSystemApp, p.IsActive)
	return scanPackage(row)
}

// Update modifies a catalog entry by ID.
func (r *Repository) Update(ctx context.Context, p Package) (Package, error) {
	row := r.pool.QueryRow(ctx, `UPDATE packages
SET name = $2, category = $3, description = $4, install_command = $5, uninstall_command = $6,
    requires_verification = $7, is_system_app = $8, is_active = $9, updated_at = NOW()
WHERE id = $1
RETURNING `+packageColumns,
		p.ID, p.Name, p.Category, p.Description, p.InstallCommand, p.UninstallCommand,
		p.RequiresVerification, p.IsSystemApp, p.IsActive)
	return scanPackage(row)
}

func scanPackage(row pgx.Row) (Package, error) {
	var p Package
	err := row.Scan(&p.ID, &p.Identifier, &p.Name, &p.Category, &p.Description,
		&p.InstallCommand, &p.UninstallCommand, &p.RequiresVerification,
		&p.IsSystemApp, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Package{}, ErrNotFound
		}
		return Package{}, err
	}
	return p, nil
}

// InstalledAppsRepository persists the installed-application ledger.
type InstalledAppsRepository struct {
	pool *pgxpool.Pool
}

// NewInstalledAppsRepository constructs the ledger repository.
func NewInstalledAppsRepository(pool *pgxpool.Pool) *InstalledAppsRepository {
	return &InstalledAppsRepository{pool: pool}
}

// RecordTx inserts an install record, reusing tx when one is in flight.
func (r *InstalledAppsRepository) RecordTx(ctx context.Context, tx pgx.Tx, userID int64, pkg Package) error {
	const q = `INSERT INTO installed_applications (user_id, package_id, identifier)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, package_id) DO UPDATE SET installed_at = NOW()`
	if tx != nil {
		_, err := tx.Exec(ctx, q, userID, pkg.ID, pkg.Identifier)
		return err
	}
	_, err := r.pool.Exec(ctx, q, userID, pkg.ID, pkg.Identifier)
	return err
}

// RemoveTx deletes an install record, reusing tx when one is in flight.
func (r *InstalledAppsRepository) RemoveTx(ctx context.Context, tx pgx.Tx, userID int64, packageID int64) error {
	const q = `DELETE FROM installed_applications WHERE user_id = $1 AND package_id = $2`
	if tx != nil {
		_, err := tx.Exec(ctx, q, userID, packageID)
		return err
	}
	_, err := r.pool.Exec(ctx, q, userID, packageID)
	return err
}

// ListForUser returns the user's installed applications, newest first.
func (r *InstalledAppsRepository) ListForUser(ctx context.Context, userID int64) ([]InstalledApp, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, user_id, package_id, identifier, installed_at
FROM installed_applications WHERE user_id = $1 ORDER BY installed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var apps []InstalledApp
	for rows.Next() {
		var a InstalledApp
		if err := rows.Scan(&a.ID, &a.UserID, &a.PackageID, &a.Identifier, &a.InstalledAt); err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}
