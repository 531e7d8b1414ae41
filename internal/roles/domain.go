package roles

import (
	"errors"
	"time"
)

// Role represents a grouping of permission rows assignable to users.
type Role struct {
	ID           int64
	Name         string
	Description  string
	IsSystemRole bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignment links a user to a role.
type Assignment struct {
	UserID     int64
	RoleID     int64
	AssignedBy int64
	AssignedAt time.Time
}

var (
	// ErrNotFound indicates the role does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrSystemRole indicates a mutation attempt on a protected system role.
	ErrSystemRole = errors.New("roles: system role is protected")
	// ErrRoleInUse indicates the role still has user assignments.
	ErrRoleInUse = errors.New("roles: role has active assignments")
	// ErrAlreadyAssigned indicates a duplicate (user, role) assignment.
	ErrAlreadyAssigned = errors.New("roles: role already assigned")
)
