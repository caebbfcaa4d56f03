package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/models"
)

var (
	// memberEmailRegex is the loose local@domain.tld shape accepted from uploads
	memberEmailRegex  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	accountEmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// MinPasswordLength is the shortest password accepted for new credentials
const MinPasswordLength = 6

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// Validator provides validation methods
type Validator struct {
	minPassword int
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{minPassword: MinPasswordLength}
}

// ValidateMember checks the required member fields of one upload row and
// returns the first failing rule, or nil.
func (v *Validator) ValidateMember(name, email string) *ValidationError {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" {
		return &ValidationError{Field: "name", Message: "Missing required fields (name or email)"}
	}
	if !memberEmailRegex.MatchString(email) {
		return &ValidationError{
			Field:   "email",
			Message: fmt.Sprintf("Invalid email format (%s)", email),
			Value:   email,
		}
	}
	return nil
}

// ValidateMemberRecord validates a manually entered member
func (v *Validator) ValidateMemberRecord(m *models.Member) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(m.Name) == "" {
		errors = append(errors, ValidationError{Field: "name", Message: "name is required"})
	}
	if m.Email == "" {
		errors = append(errors, ValidationError{Field: "email", Message: "email is required"})
	} else if !memberEmailRegex.MatchString(m.Email) {
		errors = append(errors, ValidationError{Field: "email", Message: "invalid email format", Value: m.Email})
	}

	return errors
}

// ValidateAccountInput validates an admin-created account
func (v *Validator) ValidateAccountInput(in *models.AccountInput) []ValidationError {
	var errors []ValidationError

	// Validate email
	if in.Email == "" {
		errors = append(errors, ValidationError{Field: "email", Message: "email is required"})
	} else if !accountEmailRegex.MatchString(in.Email) {
		errors = append(errors, ValidationError{Field: "email", Message: "invalid email format", Value: in.Email})
	}

	// Validate names
	if strings.TrimSpace(in.FirstName) == "" {
		errors = append(errors, ValidationError{Field: "firstName", Message: "first name is required"})
	}
	if strings.TrimSpace(in.LastName) == "" {
		errors = append(errors, ValidationError{Field: "lastName", Message: "last name is required"})
	}

	// Validate role
	if in.Role != "" && !authz.ParseRole(in.Role).Valid() {
		errors = append(errors, ValidationError{
			Field:   "role",
			Message: "invalid role, must be one of: superadmin, admin, moderator, user",
			Value:   in.Role,
		})
	}

	// Validate status
	if in.Status != "" && !models.ValidStatuses[models.AccountStatus(in.Status)] {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "invalid status, must be one of: active, inactive, suspended",
			Value:   in.Status,
		})
	}

	errors = append(errors, v.ValidatePassword(in.Password)...)

	return errors
}

// ValidateSignUp validates a self-service registration
func (v *Validator) ValidateSignUp(in *models.AccountInput) []ValidationError {
	var errors []ValidationError

	if in.Email == "" {
		errors = append(errors, ValidationError{Field: "email", Message: "email is required"})
	} else if !accountEmailRegex.MatchString(in.Email) {
		errors = append(errors, ValidationError{Field: "email", Message: "invalid email format", Value: in.Email})
	}
	if strings.TrimSpace(in.FirstName) == "" {
		errors = append(errors, ValidationError{Field: "firstName", Message: "first name is required"})
	}

	return append(errors, v.ValidatePassword(in.Password)...)
}

// ValidatePassword checks a new credential
func (v *Validator) ValidatePassword(password string) []ValidationError {
	if password == "" {
		return []ValidationError{{Field: "password", Message: "password is required"}}
	}
	if len(password) < v.minPassword {
		return []ValidationError{{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", v.minPassword),
		}}
	}
	return nil
}

// ValidateStatus checks an account status value
func (v *Validator) ValidateStatus(status string) *ValidationError {
	if !models.ValidStatuses[models.AccountStatus(status)] {
		return &ValidationError{
			Field:   "status",
			Message: "invalid status, must be one of: active, inactive, suspended",
			Value:   status,
		}
	}
	return nil
}
