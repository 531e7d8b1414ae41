package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubGrantRepo struct {
	grants map[int64][]Grant
	calls  int
}

func (s *stubGrantRepo) ListUserGrants(ctx context.Context, userID int64) ([]Grant, error) {
	s.calls++
	return s.grants[userID], nil
}

func strptr(v string) *string { return &v }

func TestHasPermissionWildcard(t *testing.T) {
	repo := &stubGrantRepo{grants: map[int64][]Grant{
		7: {{RoleID: 1, Type: PermissionTweak, ResourceID: nil, Allowed: true}},
	}}
	resolver := NewResolver(repo)

	ok, err := resolver.HasResource(context.Background(), 7, PermissionTweak, "disable-telemetry")
	require.NoError(t, err)
	require.True(t, ok)

	// Wildcard rows also satisfy a lookup with no resource given.
	ok, err = resolver.HasPermission(context.Background(), 7, PermissionTweak, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHasPermissionExplicitResource(t *testing.T) {
	repo := &stubGrantRepo{grants: map[int64][]Grant{
		7: {{RoleID: 1, Type: PermissionPackage, ResourceID: strptr("org.fleetdesk.agent"), Allowed: true}},
	}}
	resolver := NewResolver(repo)

	ok, err := resolver.HasResource(context.Background(), 7, PermissionPackage, "org.fleetdesk.agent")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = resolver.HasResource(context.Background(), 7, PermissionPackage, "org.other.app")
	require.NoError(t, err)
	require.False(t, ok)

	// An explicit row never satisfies an omitted-resource lookup.
	ok, err = resolver.HasPermission(context.Background(), 7, PermissionPackage, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

// A deny row held by one role does not override a wildcard allow from another.
// This documents the current union semantics; changing it to deny-precedence
// must break this test on purpose.
func TestHasPermissionDenyRowDoesNotOverrideAllow(t *testing.T) {
	repo := &stubGrantRepo{grants: map[int64][]Grant{
		7: {
			{RoleID: 1, Type: PermissionTweak, ResourceID: nil, Allowed: true},
			{RoleID: 2, Type: PermissionTweak, ResourceID: strptr("5"), Allowed: false},
		},
	}}
	resolver := NewResolver(repo)

	ok, err := resolver.HasResource(context.Background(), 7, PermissionTweak, "5")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHasPermissionNoRoles(t *testing.T) {
	resolver := NewResolver(&stubGrantRepo{grants: map[int64][]Grant{}})

	ok, err := resolver.HasResource(context.Background(), 42, PermissionTweak, "anything")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasPermissionTypeMismatch(t *testing.T) {
	repo := &stubGrantRepo{grants: map[int64][]Grant{
		7: {{RoleID: 1, Type: PermissionPackage, ResourceID: nil, Allowed: true}},
	}}
	resolver := NewResolver(repo)

	ok, err := resolver.HasResource(context.Background(), 7, PermissionTweak, "x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAccessibleResources(t *testing.T) {
	repo := &stubGrantRepo{grants: map[int64][]Grant{
		1: {
			{RoleID: 1, Type: PermissionPackage, ResourceID: strptr("a"), Allowed: true},
			{RoleID: 2, Type: PermissionPackage, ResourceID: strptr("b"), Allowed: true},
			{RoleID: 2, Type: PermissionPackage, ResourceID: strptr("a"), Allowed: true},
			{RoleID: 2, Type: PermissionPackage, ResourceID: strptr("c"), Allowed: false},
		},
		2: {{RoleID: 3, Type: PermissionPackage, ResourceID: nil, Allowed: true}},
	}}
	resolver := NewResolver(repo)

	set, err := resolver.AccessibleResources(context.Background(), 1, PermissionPackage)
	require.NoError(t, err)
	require.False(t, set.All)
	require.ElementsMatch(t, []string{"a", "b"}, set.IDs)
	require.True(t, set.Contains("a"))
	require.False(t, set.Contains("c"))

	set, err = resolver.AccessibleResources(context.Background(), 2, PermissionPackage)
	require.NoError(t, err)
	require.True(t, set.All)
	require.True(t, set.Contains("anything"))
}
