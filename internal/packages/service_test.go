package packages

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/gate"
	"github.com/fleetdesk/fleetdesk/internal/rbac"
)

type memoryCatalog struct {
	pkgs   map[string]Package
	nextID int64
}

func newMemoryCatalog(pkgs ...Package) *memoryCatalog {
	c := &memoryCatalog{pkgs: make(map[string]Package), nextID: 1}
	for _, p := range pkgs {
		p.ID = c.nextID
		c.nextID++
		c.pkgs[p.Identifier] = p
	}
	return c
}

func (c *memoryCatalog) GetByIdentifier(_ context.Context, identifier string) (Package, error) {
	p, ok := c.pkgs[identifier]
	if !ok {
		return Package{}, ErrNotFound
	}
	return p, nil
}

func (c *memoryCatalog) ListActive(_ context.Context) ([]Package, error) {
	out := make([]Package, 0, len(c.pkgs))
	for _, p := range c.pkgs {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *memoryCatalog) Create(_ context.Context, p Package) (Package, error) {
	p.ID = c.nextID
	c.nextID++
	c.pkgs[p.Identifier] = p
	return p, nil
}

func (c *memoryCatalog) Update(_ context.Context, p Package) (Package, error) {
	c.pkgs[p.Identifier] = p
	return p, nil
}

type memoryLedger struct {
	installed map[int64]map[int64]string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{installed: make(map[int64]map[int64]string)}
}

func (l *memoryLedger) RecordTx(_ context.Context, _ pgx.Tx, userID int64, pkg Package) error {
	if l.installed[userID] == nil {
		l.installed[userID] = make(map[int64]string)
	}
	l.installed[userID][pkg.ID] = pkg.Identifier
	return nil
}

func (l *memoryLedger) RemoveTx(_ context.Context, _ pgx.Tx, userID int64, packageID int64) error {
	delete(l.installed[userID], packageID)
	return nil
}

func (l *memoryLedger) ListForUser(_ context.Context, userID int64) ([]InstalledApp, error) {
	var apps []InstalledApp
	for pkgID, ident := range l.installed[userID] {
		apps = append(apps, InstalledApp{UserID: userID, PackageID: pkgID, Identifier: ident})
	}
	return apps, nil
}

type grantAccess struct {
	pkgs rbac.ResourceSet
	cats rbac.ResourceSet
}

func (a grantAccess) HasResource(_ context.Context, _ int64, ptype rbac.PermissionType, resourceID string) (bool, error) {
	switch ptype {
	case rbac.PermissionPackage:
		return a.pkgs.Contains(resourceID), nil
	case rbac.PermissionPackageCategory:
		return a.cats.Contains(resourceID), nil
	}
	return false, nil
}

func (a grantAccess) AccessibleResources(_ context.Context, _ int64, ptype rbac.PermissionType) (rbac.ResourceSet, error) {
	switch ptype {
	case rbac.PermissionPackage:
		return a.pkgs, nil
	case rbac.PermissionPackageCategory:
		return a.cats, nil
	}
	return rbac.ResourceSet{}, nil
}

type memoryLogRepo struct {
	logs   map[int64]*gate.ActionLog
	nextID int64
}

func newMemoryLogRepo() *memoryLogRepo {
	return &memoryLogRepo{logs: make(map[int64]*gate.ActionLog)}
}

func (r *memoryLogRepo) Create(_ context.Context, log gate.ActionLog) (int64, error) {
	r.nextID++
	log.ID = r.nextID
	log.CreatedAt = time.Now()
	r.logs[log.ID] = &log
	return log.ID, nil
}

func (r *memoryLogRepo) Get(_ context.Context, id int64) (gate.ActionLog, error) {
	log, ok := r.logs[id]
	if !ok {
		return gate.ActionLog{}, gate.ErrNotFound
	}
	return *log, nil
}

func (r *memoryLogRepo) FindPending(_ context.Context, actorID int64, kind gate.ActionKind, resourceID string) (gate.ActionLog, error) {
	var found *gate.ActionLog
	for _, log := range r.logs {
		if log.ActorID == actorID && log.Kind == kind && log.ResourceID == resourceID && log.Status == gate.StatusPending {
			if found == nil || log.CreatedAt.After(found.CreatedAt) {
				found = log
			}
		}
	}
	if found == nil {
		return gate.ActionLog{}, gate.ErrNotFound
	}
	return *found, nil
}

func (r *memoryLogRepo) IncrementAttempts(_ context.Context, id int64) (int, error) {
	log, ok := r.logs[id]
	if !ok {
		return 0, gate.ErrNotFound
	}
	log.Attempts++
	return log.Attempts, nil
}

func (r *memoryLogRepo) MarkVerificationUsed(_ context.Context, id int64) error {
	log, ok := r.logs[id]
	if !ok {
		return gate.ErrNotFound
	}
	log.VerificationUsed = true
	return nil
}

func (r *memoryLogRepo) Claim(_ context.Context, id int64) error {
	log, ok := r.logs[id]
	if !ok || log.Status != gate.StatusPending {
		return gate.ErrNotClaimable
	}
	log.Status = gate.StatusRunning
	return nil
}

func (r *memoryLogRepo) Finish(ctx context.Context, id int64, status gate.Status, output, errMsg string, onSuccess func(context.Context, pgx.Tx) error) error {
	log, ok := r.logs[id]
	if !ok || (log.Status != gate.StatusPending && log.Status != gate.StatusRunning) {
		return gate.ErrNotClaimable
	}
	log.Status = status
	log.Output = output
	log.ErrorMessage = errMsg
	now := time.Now()
	log.CompletedAt = &now
	if status == gate.StatusSuccess && onSuccess != nil {
		return onSuccess(ctx, nil)
	}
	return nil
}

type okRunner struct{}

func (okRunner) Execute(_ context.Context, _ string) (gate.RunResult, error) {
	return gate.RunResult{Stdout: "ok"}, nil
}

type mailbox struct {
	code string
}

func (m *mailbox) SendVerificationCode(_ context.Context, _, code, _ string) error {
	m.code = code
	return nil
}

type testDirectory struct{}

func (testDirectory) Email(_ context.Context, _ int64) (string, error) {
	return "user@fleetdesk.local", nil
}

func newTestService(catalog *memoryCatalog, ledger *memoryLedger, access grantAccess, box *mailbox) (*Service, *memoryLogRepo) {
	logRepo := newMemoryLogRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := gate.NewExecutor(logRepo, okRunner{}, box, testDirectory{}, nil, nil, logger, gate.Config{})
	return NewService(catalog, ledger, access, exec), logRepo
}

func TestListAccessibleWithoutGrants(t *testing.T) {
	catalog := newMemoryCatalog(Package{Identifier: "org.editor", Category: "productivity", IsActive: true})
	svc, _ := newTestService(catalog, newMemoryLedger(), grantAccess{}, &mailbox{})

	pkgs, err := svc.ListAccessible(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, pkgs)

	_, err = svc.Install(context.Background(), 5, "org.editor")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCategoryWildcardCoversCatalog(t *testing.T) {
	catalog := newMemoryCatalog(
		Package{Identifier: "org.editor", Category: "productivity", IsActive: true},
		Package{Identifier: "org.browser", Category: "internet", IsActive: true},
		Package{Identifier: "org.retired", Category: "internet", IsActive: false},
	)
	access := grantAccess{cats: rbac.ResourceSet{All: true}}
	svc, _ := newTestService(catalog, newMemoryLedger(), access, &mailbox{})

	pkgs, err := svc.ListAccessible(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
}

func TestCategoryGrantAuthorizesMemberPackages(t *testing.T) {
	catalog := newMemoryCatalog(
		Package{Identifier: "org.editor", Category: "productivity", InstallCommand: "pkg add org.editor", IsActive: true},
		Package{Identifier: "org.browser", Category: "internet", IsActive: true},
	)
	access := grantAccess{cats: rbac.ResourceSet{IDs: []string{"productivity"}}}
	svc, _ := newTestService(catalog, newMemoryLedger(), access, &mailbox{})

	res, err := svc.Install(context.Background(), 5, "org.editor")
	require.NoError(t, err)
	require.False(t, res.RequiresVerification)

	_, err = svc.Install(context.Background(), 5, "org.browser")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestUngatedInstallRecordsLedger(t *testing.T) {
	catalog := newMemoryCatalog(Package{Identifier: "org.editor", Category: "productivity", InstallCommand: "pkg add org.editor", IsActive: true})
	ledger := newMemoryLedger()
	svc, logRepo := newTestService(catalog, ledger, grantAccess{pkgs: rbac.ResourceSet{All: true}}, &mailbox{})

	res, err := svc.Install(context.Background(), 5, "org.editor")
	require.NoError(t, err)
	require.False(t, res.RequiresVerification)
	require.NotNil(t, res.Execution)
	require.True(t, res.Execution.Success)

	apps, err := ledger.ListForUser(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, "org.editor", apps[0].Identifier)

	log, err := logRepo.Get(context.Background(), res.LogID)
	require.NoError(t, err)
	require.Equal(t, gate.StatusSuccess, log.Status)
}

func TestGatedInstallVerifyFlow(t *testing.T) {
	catalog := newMemoryCatalog(Package{
		Identifier:           "org.vault",
		Category:             "security",
		InstallCommand:       "pkg add org.vault",
		RequiresVerification: true,
		IsActive:             true,
	})
	ledger := newMemoryLedger()
	box := &mailbox{}
	svc, logRepo := newTestService(catalog, ledger, grantAccess{pkgs: rbac.ResourceSet{All: true}}, box)

	res, err := svc.Install(context.Background(), 5, "org.vault")
	require.NoError(t, err)
	require.True(t, res.RequiresVerification)
	require.Len(t, box.code, 8)

	apps, err := ledger.ListForUser(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, apps)

	out, err := svc.VerifyInstall(context.Background(), 5, "org.vault", box.code)
	require.NoError(t, err)
	require.True(t, out.Success)

	apps, err = ledger.ListForUser(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, apps, 1)

	log, err := logRepo.Get(context.Background(), res.LogID)
	require.NoError(t, err)
	require.Equal(t, gate.StatusSuccess, log.Status)
}

func TestSystemAppUninstallIsGated(t *testing.T) {
	catalog := newMemoryCatalog(Package{
		Identifier:       "org.core",
		Category:         "system",
		InstallCommand:   "pkg add org.core",
		UninstallCommand: "pkg del org.core",
		IsSystemApp:      true,
		IsActive:         true,
	})
	ledger := newMemoryLedger()
	box := &mailbox{}
	svc, _ := newTestService(catalog, ledger, grantAccess{pkgs: rbac.ResourceSet{All: true}}, box)

	// Install is ungated for system apps without the verification flag.
	res, err := svc.Install(context.Background(), 5, "org.core")
	require.NoError(t, err)
	require.False(t, res.RequiresVerification)

	res, err = svc.Uninstall(context.Background(), 5, "org.core")
	require.NoError(t, err)
	require.True(t, res.RequiresVerification)

	out, err := svc.VerifyUninstall(context.Background(), 5, "org.core", box.code)
	require.NoError(t, err)
	require.True(t, out.Success)

	apps, err := ledger.ListForUser(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, apps)
}
