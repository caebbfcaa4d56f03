package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/identity"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/repository"
	"github.com/member-dashboard-api/internal/validation"
	"github.com/rs/zerolog"
)

// DeleteResult reports an account deletion. Notice names the manual step
// left on the identity side.
type DeleteResult struct {
	Deleted bool   `json:"deleted"`
	Notice  string `json:"notice,omitempty"`
}

// accountService is the concrete implementation of AccountService
type accountService struct {
	repos     *repository.Repositories
	identity  *identity.Provider
	validator *validation.Validator
	now       func() time.Time
	log       zerolog.Logger
}

// newAccountService creates a new AccountService
func newAccountService(repos *repository.Repositories, ident *identity.Provider, log zerolog.Logger) *accountService {
	return &accountService{
		repos:     repos,
		identity:  ident,
		validator: validation.NewValidator(),
		now:       time.Now,
		log:       log.With().Str("service", "account").Logger(),
	}
}

// SignUp registers a self-service account. New accounts always start as
// users, whatever the input says.
func (s *accountService) SignUp(ctx context.Context, in *models.AccountInput) (*models.Account, error) {
	if err := invalid(s.validator.ValidateSignUp(in)); err != nil {
		return nil, err
	}
	account := s.newAccount(in, authz.RoleUser, models.AccountActive, models.SourceSignUp)
	if err := s.register(ctx, account, in.Password); err != nil {
		return nil, err
	}
	s.log.Info().Str("account_id", account.ID).Msg("Account signed up")
	return account, nil
}

func (s *accountService) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	return s.identity.SignIn(ctx, strings.TrimSpace(email), password)
}

func (s *accountService) SignOut(ctx context.Context, token string) error {
	return s.identity.SignOut(ctx, token)
}

// Authenticate resolves a bearer token to its account. A token whose
// account row is gone is unauthorized.
func (s *accountService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	id, err := s.identity.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	account, err := s.repos.Account.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrUnauthorized
	}
	return account, nil
}

// Create adds an account on behalf of an admin. The requested role must be
// one the actor may assign.
func (s *accountService) Create(ctx context.Context, actor *models.Account, in *models.AccountInput) (*models.Account, error) {
	if err := invalid(s.validator.ValidateAccountInput(in)); err != nil {
		return nil, err
	}

	role := authz.RoleUser
	if in.Role != "" {
		role = authz.ParseRole(in.Role)
	}
	if !authz.CanAssignRole(actor.Actor().Role, role) {
		return nil, fmt.Errorf("%w: cannot assign role %s", ErrForbidden, role)
	}
	status := models.AccountActive
	if in.Status != "" {
		status = models.AccountStatus(in.Status)
	}

	account := s.newAccount(in, role, status, models.SourceAdminCreated)
	if err := s.register(ctx, account, in.Password); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("account_id", account.ID).
		Str("role", role.String()).
		Str("created_by", actor.ID).
		Msg("Account created")
	return account, nil
}

func (s *accountService) newAccount(in *models.AccountInput, role authz.Role, status models.AccountStatus, source string) *models.Account {
	perms := authz.PermissionsFor(role)
	return &models.Account{
		ID:          uuid.New().String(),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
		Role:        role,
		Status:      status,
		Permissions: &perms,
		Metadata: models.Metadata{
			City:               in.City,
			Province:           in.Province,
			RegistrationSource: source,
		},
		CreatedAt: s.now().UTC(),
	}
}

func (s *accountService) register(ctx context.Context, account *models.Account, password string) error {
	existing, err := s.repos.Account.GetByEmail(ctx, account.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: email %s is already registered", ErrConflict, account.Email)
	}
	if err := s.repos.Account.Create(ctx, account); err != nil {
		return err
	}
	if err := s.identity.Register(ctx, account.ID, password); err != nil {
		// Without a credential the account can never sign in and its email
		// would block a retry.
		if _, derr := s.repos.Account.Delete(ctx, account.ID); derr != nil {
			s.log.Error().Err(derr).Str("account_id", account.ID).Msg("Failed to roll back account after credential error")
		}
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

func (s *accountService) Get(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.repos.Account.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrNotFound
	}
	return account, nil
}

// List returns accounts newest first. The narrowest filter goes to storage
// and the rest are applied here.
func (s *accountService) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	var role authz.Role
	if filter.Role != "" {
		role = authz.ParseRole(filter.Role)
		if !role.Valid() {
			return nil, invalid([]validation.ValidationError{{Field: "role", Message: "unknown role", Value: filter.Role}})
		}
	}
	if filter.Status != "" {
		if verr := s.validator.ValidateStatus(filter.Status); verr != nil {
			return nil, invalid([]validation.ValidationError{*verr})
		}
	}

	var (
		accounts []*models.Account
		err      error
	)
	switch {
	case filter.Search != "":
		accounts, err = s.repos.Account.SearchByFirstName(ctx, filter.Search)
	case filter.Role != "":
		accounts, err = s.repos.Account.ListByRole(ctx, role)
	case filter.Status != "":
		accounts, err = s.repos.Account.ListByStatus(ctx, models.AccountStatus(filter.Status))
	default:
		accounts, err = s.repos.Account.List(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := accounts[:0]
	for _, a := range accounts {
		if filter.Role != "" && a.Role != role {
			continue
		}
		if filter.Status != "" && a.Status != models.AccountStatus(filter.Status) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Update edits profile fields. Role and status changes in the same request
// go through the same checks as ChangeRole and ChangeStatus.
func (s *accountService) Update(ctx context.Context, actor *models.Account, id string, upd *models.AccountUpdate) (*models.Account, error) {
	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanEditAccount(actor.Actor(), target.Target()) {
		return nil, ErrForbidden
	}

	if upd.FirstName != nil {
		if strings.TrimSpace(*upd.FirstName) == "" {
			return nil, invalid([]validation.ValidationError{{Field: "firstName", Message: "first name is required"}})
		}
		target.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		target.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.PhoneNumber != nil {
		target.PhoneNumber = strings.TrimSpace(*upd.PhoneNumber)
	}
	if upd.City != nil {
		target.Metadata.City = *upd.City
	}
	if upd.Province != nil {
		target.Metadata.Province = *upd.Province
	}
	if upd.Status != nil {
		if verr := s.validator.ValidateStatus(*upd.Status); verr != nil {
			return nil, invalid([]validation.ValidationError{*verr})
		}
		target.Status = models.AccountStatus(*upd.Status)
	}
	if upd.Role != nil {
		role := authz.ParseRole(*upd.Role)
		if role != target.Role {
			if err := s.checkRoleChange(actor, target, role, *upd.Role); err != nil {
				return nil, err
			}
			target.Role = role
		}
	}

	if err := s.save(ctx, target); err != nil {
		return nil, err
	}
	s.log.Info().Str("account_id", id).Str("updated_by", actor.ID).Msg("Account updated")
	return target, nil
}

// ChangeRole moves target to a new role. The stored permission snapshot is
// left as it was.
func (s *accountService) ChangeRole(ctx context.Context, actor *models.Account, id, role string) (*models.Account, error) {
	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	newRole := authz.ParseRole(role)
	if err := s.checkRoleChange(actor, target, newRole, role); err != nil {
		return nil, err
	}

	previous := target.Role
	target.Role = newRole
	if err := s.save(ctx, target); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("account_id", id).
		Str("from", previous.String()).
		Str("to", newRole.String()).
		Str("changed_by", actor.ID).
		Bool("permissions_stale", authz.PermissionsStale(target.Role, target.Permissions)).
		Msg("Account role changed")
	return target, nil
}

func (s *accountService) checkRoleChange(actor, target *models.Account, role authz.Role, raw string) error {
	if !role.Valid() {
		return invalid([]validation.ValidationError{{
			Field:   "role",
			Message: "invalid role, must be one of: superadmin, admin, moderator, user",
			Value:   raw,
		}})
	}
	if !authz.CanChangeRole(actor.Actor(), target.Target(), role) {
		return fmt.Errorf("%w: cannot change role of %s to %s", ErrForbidden, target.Role, role)
	}
	return nil
}

func (s *accountService) ChangeStatus(ctx context.Context, actor *models.Account, id, status string) (*models.Account, error) {
	return s.Update(ctx, actor, id, &models.AccountUpdate{Status: &status})
}

func (s *accountService) save(ctx context.Context, account *models.Account) error {
	if err := s.repos.Account.Update(ctx, account); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Delete removes the account row. Sign-in credentials stay behind and the
// result says so.
func (s *accountService) Delete(ctx context.Context, actor *models.Account, id string) (*DeleteResult, error) {
	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanDeleteAccount(actor.Actor(), target.Target()) {
		return nil, ErrForbidden
	}

	deleted, err := s.repos.Account.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, ErrNotFound
	}

	result := &DeleteResult{Deleted: true}
	if err := s.identity.DeleteIdentity(ctx, id); err != nil {
		result.Notice = err.Error()
	}
	s.log.Info().Str("account_id", id).Str("deleted_by", actor.ID).Msg("Account deleted")
	return result, nil
}

// ChangePassword replaces the actor's own password
func (s *accountService) ChangePassword(ctx context.Context, actor *models.Account, targetID, current, next string) error {
	if err := invalid(s.validator.ValidatePassword(next)); err != nil {
		return err
	}
	return s.identity.UpdatePassword(ctx, actor.ID, targetID, current, next)
}

func (s *accountService) Stats(ctx context.Context) (*models.AccountStats, error) {
	return s.repos.Account.Stats(ctx)
}

func (s *accountService) AvailableRoles(actor *models.Account) []authz.Role {
	return authz.AvailableRolesFor(actor.Actor().Role)
}
