package rbac

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// RepositoryPort describes repository operations used by the resolver.
type RepositoryPort interface {
	ListUserGrants(ctx context.Context, userID int64) ([]Grant, error)
}

// Resolver answers permission questions from role assignments and permission
// rows. Decisions are a pure OR across all of a user's rows: an explicit
// is_allowed=false row never overrides an allow granted elsewhere.
type Resolver struct {
	repo  RepositoryPort
	group singleflight.Group
}

// NewResolver constructs a Resolver.
func NewResolver(repo RepositoryPort) *Resolver {
	return &Resolver{repo: repo}
}

// HasPermission reports whether the user holds an allow for the permission
// type and resource. A nil resourceID matches only wildcard rows. Users
// without roles simply resolve to false; store errors propagate.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, ptype PermissionType, resourceID *string) (bool, error) {
	grants, err := r.userGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, g := range grants {
		if g.Type != ptype || !g.Allowed {
			continue
		}
		if g.ResourceID == nil {
			return true, nil
		}
		if resourceID != nil && *g.ResourceID == *resourceID {
			return true, nil
		}
	}
	return false, nil
}

// HasResource is a convenience wrapper for a concrete resource identifier.
func (r *Resolver) HasResource(ctx context.Context, userID int64, ptype PermissionType, resourceID string) (bool, error) {
	return r.HasPermission(ctx, userID, ptype, &resourceID)
}

// AccessibleResources returns the union of explicit resource identifiers the
// user may act on for the type, or a wildcard set when any role grants one.
func (r *Resolver) AccessibleResources(ctx context.Context, userID int64, ptype PermissionType) (ResourceSet, error) {
	grants, err := r.userGrants(ctx, userID)
	if err != nil {
		return ResourceSet{}, err
	}
	seen := make(map[string]struct{})
	var set ResourceSet
	for _, g := range grants {
		if g.Type != ptype || !g.Allowed {
			continue
		}
		if g.ResourceID == nil {
			return ResourceSet{All: true}, nil
		}
		if _, ok := seen[*g.ResourceID]; ok {
			continue
		}
		seen[*g.ResourceID] = struct{}{}
		set.IDs = append(set.IDs, *g.ResourceID)
	}
	return set, nil
}

// Grants returns the raw permission rows held by the user.
func (r *Resolver) Grants(ctx context.Context, userID int64) ([]Grant, error) {
	return r.userGrants(ctx, userID)
}

// userGrants collapses concurrent identical fetches into one store round trip.
func (r *Resolver) userGrants(ctx context.Context, userID int64) ([]Grant, error) {
	v, err, _ := r.group.Do(fmt.Sprintf("grants:%d", userID), func() (any, error) {
		return r.repo.ListUserGrants(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	grants, _ := v.([]Grant)
	return grants, nil
}
