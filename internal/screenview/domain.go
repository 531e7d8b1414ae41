package screenview

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a screen view permission.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusExpired  Status = "EXPIRED"
)

// Permission is an administrator's request to view a user's screen. It stays
// pending until the user responds or the request outlives its expiry.
type Permission struct {
	ID          int64      `json:"id"`
	AdminID     int64      `json:"admin_id"`
	UserID      int64      `json:"user_id"`
	Status      Status     `json:"status"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

var (
	// ErrNotFound indicates the permission does not exist.
	ErrNotFound = errors.New("screenview: not found")
	// ErrForbidden indicates the caller is not the request's target or owner.
	ErrForbidden = errors.New("screenview: forbidden")
	// ErrQuotaExceeded indicates the admin has too many pending requests.
	ErrQuotaExceeded = errors.New("screenview: pending request quota exceeded")
	// ErrDuplicatePending indicates a pending request for the pair exists.
	ErrDuplicatePending = errors.New("screenview: pending request already exists")
	// ErrNotPending indicates the permission was already resolved.
	ErrNotPending = errors.New("screenview: request is not pending")
	// ErrExpired indicates the request outlived its expiry before a response.
	ErrExpired = errors.New("screenview: request expired")
	// ErrInvalidDuration indicates the requested duration is out of range.
	ErrInvalidDuration = errors.New("screenview: duration out of range")
	// ErrReasonTooLong indicates the reason exceeds the allowed length.
	ErrReasonTooLong = errors.New("screenview: reason too long")
)
