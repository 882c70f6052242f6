package auth

// Requirement is an authorisation predicate over the request identity.
// It returns nil to allow, ErrUnauthorized when no identity is present and
// ErrForbidden when the identity lacks the required role.
type Requirement func(id *Identity) error

// RequireAuth admits any resolved identity.
func RequireAuth(id *Identity) error {
	if id == nil {
		return ErrUnauthorized
	}
	return nil
}

// RequireRole admits identities with exactly the given role.
func RequireRole(role Role) Requirement {
	return RequireAnyRole(role)
}

// RequireAnyRole admits identities holding any of the given roles.
func RequireAnyRole(roles ...Role) Requirement {
	allowed := append([]Role(nil), roles...)
	return func(id *Identity) error {
		if id == nil {
			return ErrUnauthorized
		}
		for _, r := range allowed {
			if id.Role == r {
				return nil
			}
		}
		return ErrForbidden
	}
}

var (
	// RequireAdmin admits admins only.
	RequireAdmin = RequireRole(RoleAdmin)

	// RequireStaff admits staff and admins.
	RequireStaff = RequireAnyRole(RoleStaff, RoleAdmin)
)
