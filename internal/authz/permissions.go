package authz

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Permission names a single boolean capability.
type Permission string

const (
	PermManageUsers   Permission = "canManageUsers"
	PermViewAnalytics Permission = "canViewAnalytics"
	PermEditContent   Permission = "canEditContent"
)

// Permissions is the capability set stored alongside an account.
// It is derived once, at account creation, and is not recomputed afterwards.
type Permissions struct {
	CanManageUsers   bool `json:"canManageUsers"`
	CanViewAnalytics bool `json:"canViewAnalytics"`
	CanEditContent   bool `json:"canEditContent"`
}

var permissionTable = map[Role]Permissions{
	RoleSuperadmin: {CanManageUsers: true, CanViewAnalytics: true, CanEditContent: true},
	RoleAdmin:      {CanManageUsers: true, CanViewAnalytics: true, CanEditContent: true},
	RoleModerator:  {CanViewAnalytics: true, CanEditContent: true},
	RoleUser:       {},
}

// PermissionsFor derives the permission set for a role.
// Unknown roles get the user set.
func PermissionsFor(r Role) Permissions {
	return permissionTable[r.Effective()]
}

// Has looks up a single flag. Unknown permission names are false.
func (p Permissions) Has(perm Permission) bool {
	switch perm {
	case PermManageUsers:
		return p.CanManageUsers
	case PermViewAnalytics:
		return p.CanViewAnalytics
	case PermEditContent:
		return p.CanEditContent
	default:
		return false
	}
}

// Holder is anything carrying a stored permission snapshot.
type Holder interface {
	GrantedPermissions() *Permissions
}

// HasPermission reports whether holder's stored permissions include perm.
// A nil holder or a holder without stored permissions has none.
func HasPermission(holder Holder, perm Permission) bool {
	if holder == nil {
		return false
	}
	p := holder.GrantedPermissions()
	if p == nil {
		return false
	}
	return p.Has(perm)
}

// PermissionsStale reports whether stored differs from what the current
// table derives for role. It never changes stored.
func PermissionsStale(role Role, stored *Permissions) bool {
	if stored == nil {
		return true
	}
	return *stored != PermissionsFor(role)
}

// Value stores the permission set as JSON.
func (p Permissions) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *Permissions) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = Permissions{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("authz: cannot scan %T into Permissions", src)
	}
}
