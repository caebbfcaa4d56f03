package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/member-dashboard-api/internal/analytics"
	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/identity"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/service"
)

var (
	_ service.AccountService   = (*MockAccountService)(nil)
	_ service.MemberService    = (*MockMemberService)(nil)
	_ service.ImportService    = (*MockImportService)(nil)
	_ service.AnalyticsService = (*MockAnalyticsService)(nil)
)

// MockAccountService is a mock implementation of AccountService. Tokens
// maps bearer tokens to accounts.
type MockAccountService struct {
	mu       sync.Mutex
	Tokens   map[string]*models.Account
	Accounts map[string]*models.Account
	Err      error
	AuthErr  error
	SignedUp []*models.AccountInput
	Revoked  []string
}

func NewMockAccountService() *MockAccountService {
	return &MockAccountService{
		Tokens:   make(map[string]*models.Account),
		Accounts: make(map[string]*models.Account),
	}
}

// Login registers a with a token and returns the token
func (m *MockAccountService) Login(a *models.Account) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	token := "token-" + a.ID
	m.Tokens[token] = a
	m.Accounts[a.ID] = a
	return token
}

func (m *MockAccountService) SignUp(ctx context.Context, in *models.AccountInput) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.SignedUp = append(m.SignedUp, in)
	perms := authz.PermissionsFor(authz.RoleUser)
	a := &models.Account{ID: "new-account", Email: in.Email, FirstName: in.FirstName, Role: authz.RoleUser, Permissions: &perms}
	m.Accounts[a.ID] = a
	return a, nil
}

func (m *MockAccountService) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, a := range m.Tokens {
		if a.Email == email {
			return &identity.Session{Token: token, AccountID: a.ID}, nil
		}
	}
	return nil, identity.ErrInvalidCredentials
}

func (m *MockAccountService) SignOut(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Revoked = append(m.Revoked, token)
	delete(m.Tokens, token)
	return nil
}

func (m *MockAccountService) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AuthErr != nil {
		return nil, m.AuthErr
	}
	if a, ok := m.Tokens[token]; ok {
		return a, nil
	}
	return nil, service.ErrUnauthorized
}

func (m *MockAccountService) Create(ctx context.Context, actor *models.Account, in *models.AccountInput) (*models.Account, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	role := authz.ParseRole(in.Role)
	if !authz.CanAssignRole(actor.Role, role) {
		return nil, service.ErrForbidden
	}
	a := &models.Account{ID: "created", Email: in.Email, FirstName: in.FirstName, Role: role}
	m.mu.Lock()
	m.Accounts[a.ID] = a
	m.mu.Unlock()
	return a, nil
}

func (m *MockAccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.Accounts[id]; ok {
		return a, nil
	}
	return nil, service.ErrNotFound
}

func (m *MockAccountService) List(ctx context.Context, filter models.AccountFilter) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Account, 0, len(m.Accounts))
	for _, a := range m.Accounts {
		if filter.Role == "" || a.Role.String() == filter.Role {
			out = append(out, a)
		}
	}
	return out, m.Err
}

func (m *MockAccountService) Update(ctx context.Context, actor *models.Account, id string, upd *models.AccountUpdate) (*models.Account, error) {
	target, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanEditAccount(actor.Actor(), target.Target()) {
		return nil, service.ErrForbidden
	}
	if upd.FirstName != nil {
		target.FirstName = *upd.FirstName
	}
	if upd.Status != nil {
		target.Status = models.AccountStatus(*upd.Status)
	}
	return target, nil
}

func (m *MockAccountService) ChangeRole(ctx context.Context, actor *models.Account, id, role string) (*models.Account, error) {
	target, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r := authz.ParseRole(role)
	if !authz.CanChangeRole(actor.Actor(), target.Target(), r) {
		return nil, service.ErrForbidden
	}
	target.Role = r
	return target, nil
}

func (m *MockAccountService) ChangeStatus(ctx context.Context, actor *models.Account, id, status string) (*models.Account, error) {
	return m.Update(ctx, actor, id, &models.AccountUpdate{Status: &status})
}

func (m *MockAccountService) Delete(ctx context.Context, actor *models.Account, id string) (*service.DeleteResult, error) {
	target, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.CanDeleteAccount(actor.Actor(), target.Target()) {
		return nil, service.ErrForbidden
	}
	m.mu.Lock()
	delete(m.Accounts, id)
	m.mu.Unlock()
	return &service.DeleteResult{Deleted: true, Notice: identity.ErrIdentityDeletionUnsupported.Error()}, nil
}

func (m *MockAccountService) ChangePassword(ctx context.Context, actor *models.Account, targetID, current, next string) error {
	if actor.ID != targetID {
		return identity.ErrCrossAccountPassword
	}
	return m.Err
}

func (m *MockAccountService) Stats(ctx context.Context) (*models.AccountStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.AccountStats{Total: len(m.Accounts)}, m.Err
}

func (m *MockAccountService) AvailableRoles(actor *models.Account) []authz.Role {
	return authz.AvailableRolesFor(actor.Role)
}

// MockMemberService is a mock implementation of MemberService
type MockMemberService struct {
	mu        sync.Mutex
	Members   map[string]*models.Member
	Err       error
	ExportCSV string
	LastQuery models.MemberQuery
}

func NewMockMemberService() *MockMemberService {
	return &MockMemberService{Members: make(map[string]*models.Member)}
}

func (m *MockMemberService) Create(ctx context.Context, member *models.Member) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	member.ID = "member-id"
	m.Members[member.ID] = member
	return member, nil
}

func (m *MockMemberService) Get(ctx context.Context, id string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if member, ok := m.Members[id]; ok {
		return member, nil
	}
	return nil, service.ErrNotFound
}

func (m *MockMemberService) Update(ctx context.Context, id string, member *models.Member) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Members[id]; !ok {
		return nil, service.ErrNotFound
	}
	member.ID = id
	m.Members[id] = member
	return member, nil
}

func (m *MockMemberService) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Members[id]; !ok {
		return service.ErrNotFound
	}
	delete(m.Members, id)
	return nil
}

func (m *MockMemberService) Query(ctx context.Context, q models.MemberQuery) (*models.MemberPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.LastQuery = q
	q = q.Normalize()
	items := make([]*models.Member, 0, len(m.Members))
	for _, member := range m.Members {
		items = append(items, member)
	}
	return &models.MemberPage{Items: items, Total: len(items), Page: q.Page, PageSize: q.PageSize, TotalPages: 1}, nil
}

func (m *MockMemberService) Export(ctx context.Context, w io.Writer) (int, error) {
	n, err := io.WriteString(w, m.ExportCSV)
	if err != nil {
		return 0, err
	}
	return n, m.Err
}

// MockImportService is a mock implementation of ImportService
type MockImportService struct {
	mu          sync.Mutex
	Sessions    map[string]*models.ImportSession
	Uploads     map[string][]byte
	UploadErr   error
	TemplateErr error
	ConfirmFn   func(id string) (*models.ImportSession, error)
}

func NewMockImportService() *MockImportService {
	return &MockImportService{
		Sessions: make(map[string]*models.ImportSession),
		Uploads:  make(map[string][]byte),
	}
}

func (m *MockImportService) Template() ([]byte, error) {
	if m.TemplateErr != nil {
		return nil, m.TemplateErr
	}
	return []byte("name,email\n"), nil
}

func (m *MockImportService) Upload(ctx context.Context, actor *models.Account, filename string, data []byte) (*models.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadErr != nil {
		return nil, m.UploadErr
	}
	s := &models.ImportSession{ID: "import-1", Filename: filename, CreatedBy: actor.ID, State: "previewed"}
	m.Sessions[s.ID] = s
	m.Uploads[filename] = data
	return s, nil
}

func (m *MockImportService) Get(ctx context.Context, id string) (*models.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Sessions[id]; ok {
		return s, nil
	}
	return nil, service.ErrNotFound
}

func (m *MockImportService) Confirm(ctx context.Context, actor *models.Account, id string) (*models.ImportSession, error) {
	if m.ConfirmFn != nil {
		return m.ConfirmFn(id)
	}
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.State = "completed"
	s.Result = &models.ImportResult{Success: 1, Errors: []string{}}
	return s, nil
}

// MockAnalyticsService is a mock implementation of AnalyticsService
type MockAnalyticsService struct {
	OverviewData analytics.Overview
	Err          error
}

func NewMockAnalyticsService() *MockAnalyticsService {
	return &MockAnalyticsService{}
}

func (m *MockAnalyticsService) Overview(ctx context.Context) (*analytics.Overview, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	o := m.OverviewData
	return &o, nil
}

func (m *MockAnalyticsService) Demographics(ctx context.Context) (*analytics.Demographics, error) {
	return &analytics.Demographics{}, m.Err
}

func (m *MockAnalyticsService) Geography(ctx context.Context) (*analytics.Geography, error) {
	return &analytics.Geography{}, m.Err
}

func (m *MockAnalyticsService) Employment(ctx context.Context) ([]analytics.Count, error) {
	return analytics.Employment{}.Series(), m.Err
}
