package authz

// Actor is the authenticated account performing an action.
type Actor struct {
	ID   string
	Role Role
}

// Target is the account an action is performed on.
type Target struct {
	ID   string
	Role Role
}

// self reports whether the actor is acting on its own account. Missing ids
// count as self so that an unidentified actor never passes the self checks.
func self(a Actor, t Target) bool {
	return a.ID == "" || t.ID == "" || a.ID == t.ID
}

// CanEditRole is the role-only form of CanEditAccount: admins and above may
// edit profile fields of any valid target except a superadmin, which only a
// superadmin may edit.
func CanEditRole(actor, target Role) bool {
	if !actor.AtLeast(RoleAdmin) || !target.Valid() {
		return false
	}
	if target == RoleSuperadmin {
		return actor == RoleSuperadmin
	}
	return true
}

// CanEditAccount reports whether actor may edit target's profile and status.
// Role changes are governed by CanChangeRole.
func CanEditAccount(actor Actor, target Target) bool {
	return CanEditRole(actor.Role, target.Role)
}

// CanDeleteRole is the role-only form of CanDeleteAccount. Superadmin
// accounts are never deletable.
func CanDeleteRole(actor, target Role) bool {
	if !actor.AtLeast(RoleAdmin) || !target.Valid() {
		return false
	}
	return target != RoleSuperadmin
}

// CanDeleteAccount reports whether actor may delete target. Nobody may
// delete a superadmin or their own account.
func CanDeleteAccount(actor Actor, target Target) bool {
	if self(actor, target) {
		return false
	}
	return CanDeleteRole(actor.Role, target.Role)
}

// CanChangeRoleTo is the role-only form of CanChangeRole.
//
// A superadmin may assign any role, except that a superadmin target can
// never be demoted. An admin may only move a user target to admin or user.
// Everyone else may not change roles.
func CanChangeRoleTo(actor, target, newRole Role) bool {
	if !newRole.Valid() || !target.Valid() {
		return false
	}
	if target == RoleSuperadmin && newRole != RoleSuperadmin {
		return false
	}
	switch actor {
	case RoleSuperadmin:
		return true
	case RoleAdmin:
		return target == RoleUser && (newRole == RoleAdmin || newRole == RoleUser)
	default:
		return false
	}
}

// CanChangeRole reports whether actor may set target's role to newRole.
// An actor never changes its own role.
func CanChangeRole(actor Actor, target Target, newRole Role) bool {
	if self(actor, target) {
		return false
	}
	return CanChangeRoleTo(actor.Role, target.Role, newRole)
}

// AvailableRolesFor lists the roles actor may assign when creating or
// editing accounts.
func AvailableRolesFor(actor Role) []Role {
	switch actor {
	case RoleSuperadmin:
		return append([]Role(nil), AllRoles...)
	case RoleAdmin:
		return []Role{RoleUser, RoleModerator, RoleAdmin}
	default:
		return nil
	}
}

// CanAssignRole reports whether r is in AvailableRolesFor(actor).
func CanAssignRole(actor, r Role) bool {
	for _, candidate := range AvailableRolesFor(actor) {
		if candidate == r {
			return true
		}
	}
	return false
}
