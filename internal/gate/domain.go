// Package gate implements the two-phase workflow wrapping dangerous
// operations: a pending log is created, optionally held behind an out-of-band
// verification code, then claimed and executed exactly once.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ActionKind tags the operation family recorded in an action log.
type ActionKind string

const (
	// KindTweakExecute runs a system tweak command.
	KindTweakExecute ActionKind = "TWEAK_EXECUTE"
	// KindPackageInstall installs a package.
	KindPackageInstall ActionKind = "PACKAGE_INSTALL"
	// KindPackageUninstall removes a package.
	KindPackageUninstall ActionKind = "PACKAGE_UNINSTALL"
)

// Status is the lifecycle state of an action log.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// ActionLog is one auditable execution attempt of a gated action.
type ActionLog struct {
	ID               int64
	ActorID          int64
	Kind             ActionKind
	ResourceID       string
	Status           Status
	VerificationCode *string
	VerificationUsed bool
	CodeExpiresAt    *time.Time
	Attempts         int
	Output           string
	ErrorMessage     string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// Action describes the dangerous operation being wrapped. OnSuccess runs in
// the same transaction as the terminal log update; implementations that need
// no side effect may return nil without touching tx.
type Action interface {
	Kind() ActionKind
	ResourceID() string
	Label() string
	Command() string
	Gated() bool
	OnSuccess(ctx context.Context, tx pgx.Tx) error
}

// BeginResult is returned from the first phase.
type BeginResult struct {
	RequiresVerification bool        `json:"requires_verification"`
	LogID                int64       `json:"log_id"`
	Message              string      `json:"message"`
	Execution            *ExecResult `json:"execution,omitempty"`
}

// ExecResult is returned once the underlying command has run.
type ExecResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
}

var (
	// ErrInvalidVerification indicates no pending log matches the code.
	ErrInvalidVerification = errors.New("gate: invalid verification code")
	// ErrCodeExpired indicates the verification window has passed.
	ErrCodeExpired = errors.New("gate: verification code expired")
	// ErrTooManyAttempts indicates the attempt budget is exhausted.
	ErrTooManyAttempts = errors.New("gate: verification attempts exhausted")
	// ErrAlreadyRunning indicates an in-flight action for the same actor and resource.
	ErrAlreadyRunning = errors.New("gate: action already in flight")
	// ErrNotClaimable indicates the log left the PENDING state concurrently.
	ErrNotClaimable = errors.New("gate: log not claimable")
	// ErrExecutionFailed indicates the runner reported a failure on the ungated path.
	ErrExecutionFailed = errors.New("gate: execution failed")
	// ErrNotFound indicates the log does not exist.
	ErrNotFound = errors.New("gate: log not found")
)
