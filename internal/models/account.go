package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/member-dashboard-api/internal/authz"
)

// AccountStatus is the lifecycle status of an account
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

// ValidStatuses defines allowed account statuses
var ValidStatuses = map[AccountStatus]bool{
	AccountActive:    true,
	AccountInactive:  true,
	AccountSuspended: true,
}

// Registration sources recorded in account metadata
const (
	SourceSignUp       = "signup"
	SourceAdminCreated = "admin_created"
)

// Metadata holds optional account details
type Metadata struct {
	City               string `json:"city,omitempty"`
	Province           string `json:"province,omitempty"`
	RegistrationSource string `json:"registrationSource,omitempty"`
}

// Value stores metadata as JSONB
func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan reads a JSONB metadata column
func (m *Metadata) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("models: cannot scan %T into Metadata", src)
	}
}

// Account represents an authenticated dashboard user
type Account struct {
	ID          string             `json:"uid" db:"id"`
	Email       string             `json:"email" db:"email"`
	FirstName   string             `json:"firstName" db:"first_name"`
	LastName    string             `json:"lastName" db:"last_name"`
	PhoneNumber string             `json:"phoneNumber,omitempty" db:"phone_number"`
	Role        authz.Role         `json:"role" db:"role"`
	Status      AccountStatus      `json:"status" db:"status"`
	Permissions *authz.Permissions `json:"permissions,omitempty" db:"permissions"`
	Metadata    Metadata           `json:"metadata" db:"metadata"`
	CreatedAt   time.Time          `json:"createdAt" db:"created_at"`
	LastLoginAt *time.Time         `json:"lastLoginAt,omitempty" db:"last_login_at"`
}

// GrantedPermissions returns the stored permission snapshot
func (a *Account) GrantedPermissions() *authz.Permissions {
	if a == nil {
		return nil
	}
	return a.Permissions
}

// Actor returns the account as the subject of an authorization check
func (a *Account) Actor() authz.Actor {
	if a == nil {
		return authz.Actor{}
	}
	return authz.Actor{ID: a.ID, Role: a.Role}
}

// Target returns the account as the object of an authorization check
func (a *Account) Target() authz.Target {
	if a == nil {
		return authz.Target{}
	}
	return authz.Target{ID: a.ID, Role: a.Role}
}

// FullName joins first and last name
func (a *Account) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// AccountView is an account as returned by the API
type AccountView struct {
	*Account
	PermissionsStale bool `json:"permissionsStale"`
}

// NewAccountView reports the stored permission snapshot without touching it
func NewAccountView(a *Account) AccountView {
	return AccountView{
		Account:          a,
		PermissionsStale: authz.PermissionsStale(a.Role, a.Permissions),
	}
}

// AccountInput is the request to create an account
type AccountInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	City        string `json:"city,omitempty"`
	Province    string `json:"province,omitempty"`
}

// AccountUpdate is a partial profile update. Nil fields are left unchanged.
type AccountUpdate struct {
	FirstName   *string `json:"firstName,omitempty"`
	LastName    *string `json:"lastName,omitempty"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
	Role        *string `json:"role,omitempty"`
	Status      *string `json:"status,omitempty"`
	City        *string `json:"city,omitempty"`
	Province    *string `json:"province,omitempty"`
}

// AccountFilter narrows an account listing
type AccountFilter struct {
	Role   string
	Status string
	// Search is a first-name prefix
	Search string
}

// AccountStats summarizes the account table
type AccountStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Admin    int `json:"admin"`
}
