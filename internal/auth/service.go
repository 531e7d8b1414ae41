package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/users"
)

// UserPort exposes the user lookups required for authentication.
type UserPort interface {
	GetByEmail(ctx context.Context, email string) (users.User, error)
}

// Service verifies credentials.
type Service struct {
	users UserPort
}

// NewService constructs the auth service.
func NewService(userPort UserPort) *Service {
	return &Service{users: userPort}
}

// Login checks the email/password pair and returns the matching user.
func (s *Service) Login(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if !user.IsActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}
