package packages

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fleetdesk/fleetdesk/internal/gate"
)

// Package is a catalog entry for installable software.
type Package struct {
	ID                   int64     `json:"id"`
	Identifier           string    `json:"identifier"`
	Name                 string    `json:"name"`
	Category             string    `json:"category"`
	Description          string    `json:"description"`
	InstallCommand       string    `json:"-"`
	UninstallCommand     string    `json:"-"`
	RequiresVerification bool      `json:"requires_verification"`
	IsSystemApp          bool      `json:"is_system_app"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// InstallGated reports whether installs need out-of-band verification.
func (p Package) InstallGated() bool {
	return p.RequiresVerification
}

// UninstallGated reports whether uninstalls need out-of-band verification.
// Removing system applications always requires it.
func (p Package) UninstallGated() bool {
	return p.IsSystemApp || p.RequiresVerification
}

// InstalledApp records a completed install for an actor.
type InstalledApp struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	PackageID   int64     `json:"package_id"`
	Identifier  string    `json:"identifier"`
	InstalledAt time.Time `json:"installed_at"`
}

var (
	// ErrNotFound indicates the package does not exist or is inactive.
	ErrNotFound = errors.New("packages: not found")
	// ErrForbidden indicates the actor lacks permission for the package.
	ErrForbidden = errors.New("packages: forbidden")
)

// InstalledAppsPort maintains the installed-application ledger. The Tx
// variants run inside the action log's finishing transaction so the record
// and the log land together.
type InstalledAppsPort interface {
	RecordTx(ctx context.Context, tx pgx.Tx, userID int64, pkg Package) error
	RemoveTx(ctx context.Context, tx pgx.Tx, userID int64, packageID int64) error
	ListForUser(ctx context.Context, userID int64) ([]InstalledApp, error)
}

type installAction struct {
	pkg    Package
	userID int64
	ledger InstalledAppsPort
}

func (a installAction) Kind() gate.ActionKind { return gate.KindPackageInstall }
func (a installAction) ResourceID() string    { return a.pkg.Identifier }
func (a installAction) Label() string         { return "install " + a.pkg.Name }
func (a installAction) Command() string       { return a.pkg.InstallCommand }
func (a installAction) Gated() bool           { return a.pkg.InstallGated() }

func (a installAction) OnSuccess(ctx context.Context, tx pgx.Tx) error {
	return a.ledger.RecordTx(ctx, tx, a.userID, a.pkg)
}

type uninstallAction struct {
	pkg    Package
	userID int64
	ledger InstalledAppsPort
}

func (a uninstallAction) Kind() gate.ActionKind { return gate.KindPackageUninstall }
func (a uninstallAction) ResourceID() string    { return a.pkg.Identifier }
func (a uninstallAction) Label() string         { return "uninstall " + a.pkg.Name }
func (a uninstallAction) Command() string       { return a.pkg.UninstallCommand }
func (a uninstallAction) Gated() bool           { return a.pkg.UninstallGated() }

func (a uninstallAction) OnSuccess(ctx context.Context, tx pgx.Tx) error {
	return a.ledger.RemoveTx(ctx, tx, a.userID, a.pkg.ID)
}
