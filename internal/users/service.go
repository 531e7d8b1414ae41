package users

import (
	"context"
	"fmt"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
}

// Service exposes user lookups to the rest of the application.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a user service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns the user with the given ID.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// GetByEmail returns the user with the given email.
func (s *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// Email resolves the notification address for a user.
func (s *Service) Email(ctx context.Context, id int64) (string, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("users: resolve email: %w", err)
	}
	return user.Email, nil
}
