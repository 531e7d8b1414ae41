package gate

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// RepositoryPort describes repository operations used by the executor.
type RepositoryPort interface {
	Create(ctx context.Context, log ActionLog) (int64, error)
	Get(ctx context.Context, id int64) (ActionLog, error)
	FindPending(ctx context.Context, actorID int64, kind ActionKind, resourceID string) (ActionLog, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkVerificationUsed(ctx context.Context, id int64) error
	Claim(ctx context.Context, id int64) error
	Finish(ctx context.Context, id int64, status Status, output, errMsg string, onSuccess func(context.Context, pgx.Tx) error) error
}

// Notifier delivers verification codes out of band.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code, contextLabel string) error
}

// DirectoryPort resolves an actor's notification address.
type DirectoryPort interface {
	Email(ctx context.Context, userID int64) (string, error)
}

// Config carries the executor tunables, fixed at construction.
type Config struct {
	CodeTTL     time.Duration
	MaxAttempts int
	LockTTL     time.Duration
}

// Executor drives the pending → (verify) → running → terminal state machine.
type Executor struct {
	repo      RepositoryPort
	runner    Runner
	notifier  Notifier
	directory DirectoryPort
	locks     Locker
	audit     shared.AuditRecorder
	logger    *slog.Logger
	cfg       Config
}

// NewExecutor constructs an Executor.
func NewExecutor(repo RepositoryPort, runner Runner, notifier Notifier, directory DirectoryPort, locks Locker, audit shared.AuditRecorder, logger *slog.Logger, cfg Config) *Executor {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 3 * time.Minute
	}
	return &Executor{repo: repo, runner: runner, notifier: notifier, directory: directory, locks: locks, audit: audit, logger: logger, cfg: cfg}
}

// Begin opens a new action log. Gated actions get a verification code sent to
// the actor and stay pending; ungated actions run immediately. A runner
// failure on the ungated path is returned to the caller as ErrExecutionFailed
// after being captured on the log.
func (e *Executor) Begin(ctx context.Context, actorID int64, act Action) (BeginResult, error) {
	log := ActionLog{
		ActorID:    actorID,
		Kind:       act.Kind(),
		ResourceID: act.ResourceID(),
		Status:     StatusPending,
	}

	if act.Gated() {
		code, err := NewVerificationCode()
		if err != nil {
			return BeginResult{}, err
		}
		expires := time.Now().Add(e.cfg.CodeTTL)
		log.VerificationCode = &code
		log.CodeExpiresAt = &expires

		id, err := e.repo.Create(ctx, log)
		if err != nil {
			return BeginResult{}, err
		}
		e.recordAudit(ctx, actorID, "ACTION_BEGIN", id, act, map[string]any{"gated": true})

		email, err := e.directory.Email(ctx, actorID)
		if err == nil {
			err = e.notifier.SendVerificationCode(ctx, email, code, act.Label())
		}
		if err != nil {
			// Without delivery the code can never be entered, so the log is
			// closed out instead of dangling pending forever.
			if finishErr := e.repo.Finish(ctx, id, StatusFailed, "", "verification code delivery failed", nil); finishErr != nil {
				e.logger.Error("close undeliverable log", slog.Int64("log_id", id), slog.Any("error", finishErr))
			}
			e.recordAudit(ctx, actorID, "ACTION_NOTIFY_FAILED", id, act, map[string]any{"error": err.Error()})
			return BeginResult{}, fmt.Errorf("gate: deliver verification code: %w", err)
		}

		return BeginResult{
			RequiresVerification: true,
			LogID:                id,
			Message:              "verification code sent",
		}, nil
	}

	id, err := e.repo.Create(ctx, log)
	if err != nil {
		return BeginResult{}, err
	}
	e.recordAudit(ctx, actorID, "ACTION_BEGIN", id, act, map[string]any{"gated": false})

	res, err := e.run(ctx, id, actorID, act)
	if err != nil {
		return BeginResult{LogID: id}, err
	}
	result := BeginResult{LogID: id, Message: res.Message, Execution: &res}
	if !res.Success {
		return result, fmt.Errorf("%w: %s", ErrExecutionFailed, res.Message)
	}
	return result, nil
}

// VerifyAndRun consumes a verification code and executes the pending action.
// A wrong code leaves the log pending, burns one attempt, and locks the log
// out once the attempt budget is spent. Runner failures are captured on the
// log and reported through the result, not the error.
func (e *Executor) VerifyAndRun(ctx context.Context, actorID int64, act Action, code string) (ExecResult, error) {
	log, err := e.repo.FindPending(ctx, actorID, act.Kind(), act.ResourceID())
	if err != nil {
		// Only a missing pending log means the code cannot match anything.
		// Infrastructure errors surface as themselves.
		if errors.Is(err, ErrNotFound) {
			return ExecResult{}, ErrInvalidVerification
		}
		return ExecResult{}, err
	}

	if log.CodeExpiresAt != nil && time.Now().After(*log.CodeExpiresAt) {
		if err := e.repo.Finish(ctx, log.ID, StatusFailed, "", "verification code expired", nil); err != nil {
			return ExecResult{}, err
		}
		e.recordAudit(ctx, actorID, "ACTION_CODE_EXPIRED", log.ID, act, nil)
		return ExecResult{}, ErrCodeExpired
	}

	if log.VerificationCode == nil || !hmac.Equal([]byte(*log.VerificationCode), []byte(code)) {
		attempts, err := e.repo.IncrementAttempts(ctx, log.ID)
		if err != nil {
			return ExecResult{}, err
		}
		if attempts >= e.cfg.MaxAttempts {
			if err := e.repo.Finish(ctx, log.ID, StatusFailed, "", "verification attempts exhausted", nil); err != nil {
				return ExecResult{}, err
			}
			e.recordAudit(ctx, actorID, "ACTION_LOCKED_OUT", log.ID, act, map[string]any{"attempts": attempts})
			return ExecResult{}, ErrTooManyAttempts
		}
		return ExecResult{}, ErrInvalidVerification
	}

	if err := e.repo.MarkVerificationUsed(ctx, log.ID); err != nil {
		return ExecResult{}, err
	}
	return e.run(ctx, log.ID, actorID, act)
}

// Log returns a single action log for inspection.
func (e *Executor) Log(ctx context.Context, id int64) (ActionLog, error) {
	return e.repo.Get(ctx, id)
}

func (e *Executor) run(ctx context.Context, logID, actorID int64, act Action) (ExecResult, error) {
	if e.locks != nil {
		key := InflightKey(actorID, act.Kind(), act.ResourceID())
		acquired, err := e.locks.TryAcquire(ctx, key, e.cfg.LockTTL)
		if err != nil {
			return ExecResult{}, fmt.Errorf("gate: acquire inflight lock: %w", err)
		}
		if !acquired {
			return ExecResult{}, ErrAlreadyRunning
		}
		defer func() {
			if err := e.locks.Release(context.WithoutCancel(ctx), key); err != nil {
				e.logger.Warn("release inflight lock", slog.String("key", key), slog.Any("error", err))
			}
		}()
	}

	if err := e.repo.Claim(ctx, logID); err != nil {
		return ExecResult{}, err
	}

	res, runErr := e.runner.Execute(ctx, act.Command())
	if runErr == nil && res.ExitCode == 0 {
		output := res.Combined()
		if err := e.repo.Finish(ctx, logID, StatusSuccess, output, "", act.OnSuccess); err != nil {
			return ExecResult{}, err
		}
		e.recordAudit(ctx, actorID, "ACTION_SUCCESS", logID, act, nil)
		return ExecResult{Success: true, Message: act.Label() + " completed", Output: output}, nil
	}

	errMsg := fmt.Sprintf("exit code %d", res.ExitCode)
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := e.repo.Finish(ctx, logID, StatusFailed, res.Combined(), errMsg, nil); err != nil {
		return ExecResult{}, err
	}
	e.recordAudit(ctx, actorID, "ACTION_FAILED", logID, act, map[string]any{"error": errMsg})
	return ExecResult{Success: false, Message: errMsg, Output: res.Combined()}, nil
}

func (e *Executor) recordAudit(ctx context.Context, actorID int64, action string, logID int64, act Action, meta map[string]any) {
	if e.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["kind"] = string(act.Kind())
	meta["resource_id"] = act.ResourceID()
	if err := e.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "action_log",
		EntityID: strconv.FormatInt(logID, 10),
		Meta:     meta,
	}); err != nil && e.logger != nil {
		e.logger.Warn("record audit", slog.Any("error", err))
	}
}
