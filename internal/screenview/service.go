package screenview

import (
	"context"
	"strconv"
	"time"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

const (
	maxReasonLength = 500
	minDuration     = time.Minute
	maxDuration     = 24 * time.Hour
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, p Permission) (Permission, error)
	Get(ctx context.Context, id int64) (Permission, error)
	CountPending(ctx context.Context, userID int64) (int, error)
	HasPending(ctx context.Context, adminID, userID int64) (bool, error)
	Resolve(ctx context.Context, id int64, status Status, respondedAt time.Time) error
	ListForAdmin(ctx context.Context, adminID int64) ([]Permission, error)
	ListPendingForUser(ctx context.Context, userID int64) ([]Permission, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Config carries the negotiation tunables, fixed at construction.
type Config struct {
	MaxPending      int
	DefaultDuration time.Duration
}

// Service negotiates screen view consent between admins and users.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditRecorder
	cfg   Config
	now   func() time.Time
}

// NewService constructs the screen view service.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, cfg Config) *Service {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 3
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 10 * time.Minute
	}
	return &Service{repo: repo, audit: audit, cfg: cfg, now: time.Now}
}

// Request opens a pending permission from admin to user. A zero duration
// falls back to the configured default.
func (s *Service) Request(ctx context.Context, adminID, userID int64, reason string, duration time.Duration) (Permission, error) {
	if len(reason) > maxReasonLength {
		return Permission{}, ErrReasonTooLong
	}
	if duration == 0 {
		duration = s.cfg.DefaultDuration
	}
	if duration < minDuration || duration > maxDuration {
		return Permission{}, ErrInvalidDuration
	}

	// The quota caps how many admins can simultaneously wait on one user.
	pending, err := s.repo.CountPending(ctx, userID)
	if err != nil {
		return Permission{}, err
	}
	if pending >= s.cfg.MaxPending {
		return Permission{}, ErrQuotaExceeded
	}
	exists, err := s.repo.HasPending(ctx, adminID, userID)
	if err != nil {
		return Permission{}, err
	}
	if exists {
		return Permission{}, ErrDuplicatePending
	}

	perm, err := s.repo.Create(ctx, Permission{
		AdminID:   adminID,
		UserID:    userID,
		Status:    StatusPending,
		Reason:    reason,
		ExpiresAt: s.now().Add(duration),
	})
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, adminID, "SCREEN_VIEW_REQUESTED", perm.ID, map[string]any{"user_id": userID})
	return perm, nil
}

// Respond resolves a pending permission on behalf of its target user. A
// response after expiry marks the row expired instead of applying it.
func (s *Service) Respond(ctx context.Context, userID, permissionID int64, approve bool) (Permission, error) {
	perm, err := s.repo.Get(ctx, permissionID)
	if err != nil {
		return Permission{}, err
	}
	if perm.UserID != userID {
		return Permission{}, ErrForbidden
	}
	if perm.Status != StatusPending {
		return Permission{}, ErrNotPending
	}

	now := s.now()
	if now.After(perm.ExpiresAt) {
		if err := s.repo.Resolve(ctx, perm.ID, StatusExpired, now); err != nil {
			return Permission{}, err
		}
		return Permission{}, ErrExpired
	}

	status := StatusDenied
	if approve {
		status = StatusApproved
	}
	if err := s.repo.Resolve(ctx, perm.ID, status, now); err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, userID, "SCREEN_VIEW_"+string(status), perm.ID, map[string]any{"admin_id": perm.AdminID})

	perm.Status = status
	perm.RespondedAt = &now
	return perm, nil
}

// Cancel withdraws a pending permission. Only the requesting admin may do it.
func (s *Service) Cancel(ctx context.Context, adminID, permissionID int64) error {
	perm, err := s.repo.Get(ctx, permissionID)
	if err != nil {
		return err
	}
	if perm.AdminID != adminID {
		return ErrForbidden
	}
	if perm.Status != StatusPending {
		return ErrNotPending
	}
	if err := s.repo.Resolve(ctx, perm.ID, StatusExpired, s.now()); err != nil {
		return err
	}
	s.recordAudit(ctx, adminID, "SCREEN_VIEW_CANCELLED", perm.ID, map[string]any{"user_id": perm.UserID})
	return nil
}

// ListForAdmin returns the admin's requests, newest first.
func (s *Service) ListForAdmin(ctx context.Context, adminID int64) ([]Permission, error) {
	return s.repo.ListForAdmin(ctx, adminID)
}

// ListPendingForUser returns the requests awaiting the user's response.
func (s *Service) ListPendingForUser(ctx context.Context, userID int64) ([]Permission, error) {
	return s.repo.ListPendingForUser(ctx, userID)
}

// SweepExpired retires pending requests past their expiry. Safe to run
// repeatedly; an already swept row no longer matches.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.SweepExpired(ctx, s.now())
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, permissionID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "screen_view_permission",
		EntityID: strconv.FormatInt(permissionID, 10),
		Meta:     meta,
	})
}
