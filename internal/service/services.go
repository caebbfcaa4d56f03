package service

import (
	"context"
	"io"

	"github.com/member-dashboard-api/internal/analytics"
	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/identity"
	"github.com/member-dashboard-api/internal/metrics"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/repository"
	"github.com/rs/zerolog"
)

// AccountService defines the interface for account and sign-in operations
type AccountService interface {
	SignUp(ctx context.Context, in *models.AccountInput) (*models.Account, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*models.Account, error)

	Create(ctx context.Context, actor *models.Account, in *models.AccountInput) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error)
	Update(ctx context.Context, actor *models.Account, id string, upd *models.AccountUpdate) (*models.Account, error)
	ChangeRole(ctx context.Context, actor *models.Account, id, role string) (*models.Account, error)
	ChangeStatus(ctx context.Context, actor *models.Account, id, status string) (*models.Account, error)
	Delete(ctx context.Context, actor *models.Account, id string) (*DeleteResult, error)
	ChangePassword(ctx context.Context, actor *models.Account, targetID, current, next string) error
	Stats(ctx context.Context) (*models.AccountStats, error)
	AvailableRoles(actor *models.Account) []authz.Role
}

// MemberService defines the interface for member table operations
type MemberService interface {
	Create(ctx context.Context, m *models.Member) (*models.Member, error)
	Get(ctx context.Context, id string) (*models.Member, error)
	Update(ctx context.Context, id string, m *models.Member) (*models.Member, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, q models.MemberQuery) (*models.MemberPage, error)
	Export(ctx context.Context, w io.Writer) (int, error)
}

// ImportService defines the interface for CSV imports
type ImportService interface {
	Template() ([]byte, error)
	Upload(ctx context.Context, actor *models.Account, filename string, data []byte) (*models.ImportSession, error)
	Get(ctx context.Context, id string) (*models.ImportSession, error)
	Confirm(ctx context.Context, actor *models.Account, id string) (*models.ImportSession, error)
}

// AnalyticsService defines the interface for chart data
type AnalyticsService interface {
	Overview(ctx context.Context) (*analytics.Overview, error)
	Demographics(ctx context.Context) (*analytics.Demographics, error)
	Geography(ctx context.Context) (*analytics.Geography, error)
	Employment(ctx context.Context) ([]analytics.Count, error)
}

// Notifier is told about member writes
type Notifier interface {
	Notify()
}

// MemberSnapshot is a live copy of the member collection
type MemberSnapshot interface {
	Members() ([]*models.Member, bool)
}

// Deps are the collaborators beyond the repositories. Notifier, Snapshot and
// Metrics may be nil.
type Deps struct {
	Identity *identity.Provider
	Notifier Notifier
	Snapshot MemberSnapshot
	Metrics  *metrics.Metrics
}

// Services holds all service interfaces
type Services struct {
	Account   AccountService
	Member    MemberService
	Import    ImportService
	Analytics AnalyticsService
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, deps Deps, cfg *config.Config, log zerolog.Logger) *Services {
	return &Services{
		Account:   newAccountService(repos, deps.Identity, log),
		Member:    newMemberService(repos, deps.Notifier, log),
		Import:    newImportService(repos, deps.Notifier, deps.Metrics, cfg.Import, log),
		Analytics: newAnalyticsService(repos, deps.Snapshot, log),
	}
}
