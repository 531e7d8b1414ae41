package gate

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetdesk/fleetdesk/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for action logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const logColumns = `id, actor_user_id, action_kind, resource_id, status, verification_code,
verification_used, code_expires_at, attempts, output, error_message, created_at, completed_at`

// Create inserts a new action log and returns its ID.
func (r *Repository) Create(ctx context.Context, log ActionLog) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO action_logs
(actor_user_id, action_kind, resource_id, status, verification_code, code_expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		log.ActorID, log.Kind, log.ResourceID, log.Status, log.VerificationCode, log.CodeExpiresAt).Scan(&id)
	return id, err
}

// Get fetches a single log row.
func (r *Repository) Get(ctx context.Context, id int64) (ActionLog, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM action_logs WHERE id = $1`, id)
	return scanLog(row)
}

// FindPending returns the newest PENDING log for the actor/kind/resource
// triple. Terminal logs never match, which is what makes a consumed
// verification code unusable.
func (r *Repository) FindPending(ctx context.Context, actorID int64, kind ActionKind, resourceID string) (ActionLog, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM action_logs
WHERE actor_user_id = $1 AND action_kind = $2 AND resource_id = $3 AND status = 'PENDING'
ORDER BY created_at DESC LIMIT 1`, actorID, kind, resourceID)
	return scanLog(row)
}

// IncrementAttempts bumps the failed-verification counter and returns it.
func (r *Repository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := r.pool.QueryRow(ctx, `UPDATE action_logs SET attempts = attempts + 1
WHERE id = $1 RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// MarkVerificationUsed flags the code as consumed.
func (r *Repository) MarkVerificationUsed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE action_logs SET verification_used = TRUE WHERE id = $1`, id)
	return err
}

// Claim transitions PENDING to RUNNING. The single-row guard is what prevents
// two concurrent verifications from both invoking the runner.
func (r *Repository) Claim(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE action_logs SET status = 'RUNNING'
WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotClaimable
	}
	return nil
}

// Finish moves a log to a terminal state. The optional onSuccess callback runs
// in the same transaction so follow-up bookkeeping cannot be half applied.
func (r *Repository) Finish(ctx context.Context, id int64, status Status, output, errMsg string, onSuccess func(context.Context, pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE action_logs
SET status = $2, output = $3, error_message = $4, completed_at = NOW()
WHERE id = $1 AND status IN ('PENDING', 'RUNNING')`, id, status, output, errMsg)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotClaimable
		}
		if status == StatusSuccess && onSuccess != nil {
			return onSuccess(ctx, tx)
		}
		return nil
	})
}

// ListForActor returns recent logs for an actor, newest first.
func (r *Repository) ListForActor(ctx context.Context, actorID int64, limit int) ([]ActionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+logColumns+` FROM action_logs
WHERE actor_user_id = $1 ORDER BY created_at DESC LIMIT $2`, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ActionLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func scanLog(row pgx.Row) (ActionLog, error) {
	var log ActionLog
	err := row.Scan(&log.ID, &log.ActorID, &log.Kind, &log.ResourceID, &log.Status,
		&log.VerificationCode, &log.VerificationUsed, &log.CodeExpiresAt, &log.Attempts,
		&log.Output, &log.ErrorMessage, &log.CreatedAt, &log.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ActionLog{}, ErrNotFound
		}
		return ActionLog{}, err
	}
	return log, nil
}
