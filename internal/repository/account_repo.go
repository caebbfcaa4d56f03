package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/database"
	"github.com/member-dashboard-api/internal/models"
)

const accountColumns = `id, email, first_name, last_name, phone_number, role, status,
		permissions, metadata, created_at, last_login_at`

// accountRepo is the concrete implementation of AccountRepository
type accountRepo struct {
	db *database.DB
}

// NewAccountRepo creates a new account repository
func NewAccountRepo(db *database.DB) AccountRepository {
	return &accountRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(s rowScanner) (*models.Account, error) {
	var (
		a         models.Account
		perms     authz.Permissions
		permsNull []byte
		lastLogin sql.NullTime
	)
	err := s.Scan(
		&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.PhoneNumber, &a.Role, &a.Status,
		&permsNull, &a.Metadata, &a.CreatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	if permsNull != nil {
		if err := perms.Scan(permsNull); err != nil {
			return nil, err
		}
		a.Permissions = &perms
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	return &a, nil
}

// permissionsArg keeps a missing snapshot as SQL NULL
func permissionsArg(p *authz.Permissions) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// Create inserts a new account
func (r *accountRepo) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO users (id, email, first_name, last_name, phone_number, role, status,
			permissions, metadata, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Email, a.FirstName, a.LastName, a.PhoneNumber, a.Role, a.Status,
		permissionsArg(a.Permissions), a.Metadata, a.CreatedAt, a.LastLoginAt,
	)
	return err
}

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// GetByEmail retrieves an account by email, ignoring case
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *accountRepo) list(ctx context.Context, where string, args ...interface{}) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users ` + where + ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// List returns every account, newest first
func (r *accountRepo) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, "")
}

// ListByRole returns accounts holding role
func (r *accountRepo) ListByRole(ctx context.Context, role authz.Role) ([]*models.Account, error) {
	return r.list(ctx, "WHERE role = $1", role.String())
}

// ListByStatus returns accounts with status
func (r *accountRepo) ListByStatus(ctx context.Context, status models.AccountStatus) ([]*models.Account, error) {
	return r.list(ctx, "WHERE status = $1", string(status))
}

// SearchByFirstName returns accounts whose first name starts with prefix
func (r *accountRepo) SearchByFirstName(ctx context.Context, prefix string) ([]*models.Account, error) {
	return r.list(ctx, "WHERE first_name LIKE $1", escapeLike(prefix)+"%")
}

// Update replaces the mutable fields of an account
func (r *accountRepo) Update(ctx context.Context, a *models.Account) error {
	query := `
		UPDATE users SET
			first_name = $2, last_name = $3, phone_number = $4, role = $5,
			status = $6, permissions = $7, metadata = $8
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		a.ID, a.FirstName, a.LastName, a.PhoneNumber, a.Role, a.Status,
		permissionsArg(a.Permissions), a.Metadata,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an account and reports whether it existed
func (r *accountRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateLastLogin stamps the last sign-in time
func (r *accountRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET last_login_at = $2 WHERE id = $1", id, at)
	return err
}

// Count returns the total number of accounts
func (r *accountRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// Stats counts accounts by status and admin role in one pass
func (r *accountRepo) Stats(ctx context.Context) (*models.AccountStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'inactive'),
			COUNT(*) FILTER (WHERE role = 'admin')
		FROM users
	`
	var s models.AccountStats
	if err := r.db.QueryRowContext(ctx, query).Scan(&s.Total, &s.Active, &s.Inactive, &s.Admin); err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}
	return &s, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
