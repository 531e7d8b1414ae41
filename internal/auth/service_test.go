package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetdesk/fleetdesk/internal/shared"
	"github.com/fleetdesk/fleetdesk/internal/users"
)

type stubUserPort struct {
	users map[string]users.User
}

func (s stubUserPort) GetByEmail(_ context.Context, email string) (users.User, error) {
	u, ok := s.users[email]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccess(t *testing.T) {
	svc := NewService(stubUserPort{users: map[string]users.User{
		"ops@fleetdesk.local": {ID: 3, Email: "ops@fleetdesk.local", PasswordHash: hashOf(t, "correct horse"), IsActive: true},
	}})

	user, err := svc.Login(context.Background(), "ops@fleetdesk.local", "correct horse")
	require.NoError(t, err)
	require.EqualValues(t, 3, user.ID)
}

func TestLoginWrongPassword(t *testing.T) {
	svc := NewService(stubUserPort{users: map[string]users.User{
		"ops@fleetdesk.local": {Email: "ops@fleetdesk.local", PasswordHash: hashOf(t, "correct horse"), IsActive: true},
	}})

	_, err := svc.Login(context.Background(), "ops@fleetdesk.local", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc := NewService(stubUserPort{users: map[string]users.User{}})

	_, err := svc.Login(context.Background(), "ghost@fleetdesk.local", "whatever")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginInactiveUser(t *testing.T) {
	svc := NewService(stubUserPort{users: map[string]users.User{
		"gone@fleetdesk.local": {Email: "gone@fleetdesk.local", PasswordHash: hashOf(t, "correct horse"), IsActive: false},
	}})

	_, err := svc.Login(context.Background(), "gone@fleetdesk.local", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
