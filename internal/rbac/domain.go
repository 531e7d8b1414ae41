package rbac

// PermissionType classifies the resource family a grant applies to.
type PermissionType string

const (
	// PermissionTweak scopes a grant to system tweaks.
	PermissionTweak PermissionType = "tweak"
	// PermissionPackageCategory scopes a grant to a package category.
	PermissionPackageCategory PermissionType = "package_category"
	// PermissionPackage scopes a grant to an individual package.
	PermissionPackage PermissionType = "package"
	// PermissionSystemAction scopes a grant to a named platform action.
	PermissionSystemAction PermissionType = "system_action"
)

// Valid reports whether the type is one of the known wire values.
func (t PermissionType) Valid() bool {
	switch t {
	case PermissionTweak, PermissionPackageCategory, PermissionPackage, PermissionSystemAction:
		return true
	}
	return false
}

// System action resource names used across the platform.
const (
	ActionManageRoles   = "manage_roles"
	ActionManageCatalog = "manage_catalog"
	ActionScreenView    = "screen_view"
)

// Grant is a single permission row held by a role. A nil ResourceID is a
// wildcard covering every resource of the type.
type Grant struct {
	RoleID     int64
	Type       PermissionType
	ResourceID *string
	Allowed    bool
}

// ResourceSet is the outcome of an accessible-resources query. When All is
// true the user holds a wildcard allow and IDs is not populated.
type ResourceSet struct {
	All bool
	IDs []string
}

// Contains reports whether the set covers the given resource.
func (s ResourceSet) Contains(id string) bool {
	if s.All {
		return true
	}
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}
