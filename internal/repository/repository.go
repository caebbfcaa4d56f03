package repository

import (
	"context"
	"time"

	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/database"
	"github.com/member-dashboard-api/internal/models"
)

// AccountRepository defines the interface for account data operations.
// Lookups return nil, nil when no row matches.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	ListByRole(ctx context.Context, role authz.Role) ([]*models.Account, error)
	ListByStatus(ctx context.Context, status models.AccountStatus) ([]*models.Account, error)
	SearchByFirstName(ctx context.Context, prefix string) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*models.AccountStats, error)
}

// MemberRepository defines the interface for member data operations
type MemberRepository interface {
	Create(ctx context.Context, member *models.Member) error
	GetByID(ctx context.Context, id string) (*models.Member, error)
	List(ctx context.Context) ([]*models.Member, error)
	Query(ctx context.Context, q models.MemberQuery) ([]*models.Member, int, error)
	Update(ctx context.Context, member *models.Member) error
	Delete(ctx context.Context, id string) (bool, error)
	AllEmails(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
	StreamAll(ctx context.Context, callback func(*models.Member) error) error
}

// CredentialRepository stores password hashes keyed by account id
type CredentialRepository interface {
	Set(ctx context.Context, accountID, hash string) error
	Get(ctx context.Context, accountID string) (string, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	Account    AccountRepository
	Member     MemberRepository
	Credential CredentialRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		Account:    NewAccountRepo(db),
		Member:     NewMemberRepo(db),
		Credential: NewCredentialRepo(db),
	}
}
