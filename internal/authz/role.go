package authz

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the privilege tier of an account. Higher values grant more privilege.
type Role int

const (
	// RoleUnknown is the zero value. It ranks below every named role and
	// receives the most restrictive answer from every check.
	RoleUnknown Role = iota
	RoleUser
	RoleModerator
	RoleAdmin
	RoleSuperadmin
)

// AllRoles lists the assignable roles from least to most privileged.
var AllRoles = []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperadmin}

var roleNames = map[Role]string{
	RoleUser:       "user",
	RoleModerator:  "moderator",
	RoleAdmin:      "admin",
	RoleSuperadmin: "superadmin",
}

// ParseRole converts a stored role name to a Role.
// Unknown or empty values map to RoleUnknown.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "superadmin":
		return RoleSuperadmin
	case "admin":
		return RoleAdmin
	case "moderator":
		return RoleModerator
	case "user":
		return RoleUser
	default:
		return RoleUnknown
	}
}

// Valid reports whether r is one of the four named roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// Level returns the position of r in the privilege order (0 for unknown).
func (r Role) Level() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

// AtLeast reports whether r is at or above min in the privilege order.
// An unknown role is never at least anything, including RoleUnknown.
func (r Role) AtLeast(min Role) bool {
	if !r.Valid() {
		return false
	}
	return r.Level() >= min.Level()
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return ""
}

// Effective returns r, or RoleUser when r is unknown.
func (r Role) Effective() Role {
	if !r.Valid() {
		return RoleUser
	}
	return r
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = ParseRole(s)
	return nil
}

// Value stores the role as its lowercase name.
func (r Role) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan reads a role name column. NULL and unknown names become RoleUnknown.
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = RoleUnknown
	case string:
		*r = ParseRole(v)
	case []byte:
		*r = ParseRole(string(v))
	default:
		return fmt.Errorf("authz: cannot scan %T into Role", src)
	}
	return nil
}
