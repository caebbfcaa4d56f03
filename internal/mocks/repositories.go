package mocks

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/repository"
)

// repositoryNotFound mirrors what the SQL repositories return from Update on a missing row
var repositoryNotFound = sql.ErrNoRows

var (
	_ repository.AccountRepository    = (*MockAccountRepository)(nil)
	_ repository.MemberRepository     = (*MockMemberRepository)(nil)
	_ repository.CredentialRepository = (*MockCredentialRepository)(nil)
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mu         sync.Mutex
	Accounts   map[string]*models.Account
	LastLogins map[string]time.Time
	Err        error
	UpdateErr  error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		Accounts:   make(map[string]*models.Account),
		LastLogins: make(map[string]time.Time),
	}
}

// Add stores a copy of a without error checks
func (m *MockAccountRepository) Add(a *models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.Accounts[a.ID] = &cp
}

func (m *MockAccountRepository) Create(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *a
	m.Accounts[a.ID] = &cp
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if a, ok := m.Accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, a := range m.Accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockAccountRepository) filter(keep func(*models.Account) bool) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := []*models.Account{}
	for _, a := range m.Accounts {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MockAccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return m.filter(func(*models.Account) bool { return true })
}

func (m *MockAccountRepository) ListByRole(ctx context.Context, role authz.Role) ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool { return a.Role == role })
}

func (m *MockAccountRepository) ListByStatus(ctx context.Context, status models.AccountStatus) ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool { return a.Status == status })
}

func (m *MockAccountRepository) SearchByFirstName(ctx context.Context, prefix string) ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool { return strings.HasPrefix(a.FirstName, prefix) })
}

func (m *MockAccountRepository) Update(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.Accounts[a.ID]; !ok {
		return repositoryNotFound
	}
	cp := *a
	m.Accounts[a.ID] = &cp
	return nil
}

func (m *MockAccountRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.Accounts[id]
	delete(m.Accounts, id)
	return ok, nil
}

func (m *MockAccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastLogins[id] = at
	if a, ok := m.Accounts[id]; ok {
		t := at
		a.LastLoginAt = &t
	}
	return nil
}

func (m *MockAccountRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Accounts), m.Err
}

func (m *MockAccountRepository) Stats(ctx context.Context) (*models.AccountStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s := &models.AccountStats{Total: len(m.Accounts)}
	for _, a := range m.Accounts {
		switch a.Status {
		case models.AccountActive:
			s.Active++
		case models.AccountInactive:
			s.Inactive++
		}
		if a.Role == authz.RoleAdmin {
			s.Admin++
		}
	}
	return s, nil
}

// MockMemberRepository is a mock implementation of MemberRepository
type MockMemberRepository struct {
	mu       sync.Mutex
	Members  map[string]*models.Member
	Order    []string
	Err      error
	EmailErr error
	// CreateFunc, when set, replaces the default insert
	CreateFunc  func(ctx context.Context, m *models.Member) error
	CreateCalls int
}

func NewMockMemberRepository() *MockMemberRepository {
	return &MockMemberRepository{Members: make(map[string]*models.Member)}
}

func (m *MockMemberRepository) Create(ctx context.Context, member *models.Member) error {
	m.mu.Lock()
	m.CreateCalls++
	fn := m.CreateFunc
	m.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, member); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cp := *member
	m.Members[member.ID] = &cp
	m.Order = append(m.Order, member.ID)
	return nil
}

func (m *MockMemberRepository) GetByID(ctx context.Context, id string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.Members[id]; ok {
		cp := *mem
		return &cp, nil
	}
	return nil, m.Err
}

func (m *MockMemberRepository) snapshot() []*models.Member {
	out := make([]*models.Member, 0, len(m.Members))
	for _, id := range m.Order {
		if mem, ok := m.Members[id]; ok {
			cp := *mem
			out = append(out, &cp)
		}
	}
	return out
}

func (m *MockMemberRepository) List(ctx context.Context) ([]*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := m.snapshot()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Query pages over insertion order and ignores search and sort
func (m *MockMemberRepository) Query(ctx context.Context, q models.MemberQuery) ([]*models.Member, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}
	q = q.Normalize()
	all := m.snapshot()
	start := (q.Page - 1) * q.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + q.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (m *MockMemberRepository) Update(ctx context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.Members[member.ID]
	if !ok {
		return repositoryNotFound
	}
	cp := *member
	cp.CreatedAt = existing.CreatedAt
	m.Members[member.ID] = &cp
	return nil
}

func (m *MockMemberRepository) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Members[id]
	delete(m.Members, id)
	return ok, m.Err
}

func (m *MockMemberRepository) AllEmails(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EmailErr != nil {
		return nil, m.EmailErr
	}
	emails := make([]string, 0, len(m.Members))
	for _, mem := range m.Members {
		emails = append(emails, strings.ToLower(mem.Email))
	}
	return emails, nil
}

func (m *MockMemberRepository) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Members), m.Err
}

func (m *MockMemberRepository) StreamAll(ctx context.Context, callback func(*models.Member) error) error {
	m.mu.Lock()
	all := m.snapshot()
	m.mu.Unlock()
	for _, mem := range all {
		if err := callback(mem); err != nil {
			return err
		}
	}
	return nil
}

// MockCredentialRepository is a mock implementation of CredentialRepository
type MockCredentialRepository struct {
	mu     sync.Mutex
	Hashes map[string]string
	Err    error
}

func NewMockCredentialRepository() *MockCredentialRepository {
	return &MockCredentialRepository{Hashes: make(map[string]string)}
}

func (m *MockCredentialRepository) Set(ctx context.Context, accountID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Hashes[accountID] = hash
	return nil
}

func (m *MockCredentialRepository) Get(ctx context.Context, accountID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Hashes[accountID], m.Err
}

// NewRepositories bundles fresh mocks
func NewRepositories() (*repository.Repositories, *MockAccountRepository, *MockMemberRepository, *MockCredentialRepository) {
	accounts := NewMockAccountRepository()
	members := NewMockMemberRepository()
	creds := NewMockCredentialRepository()
	return &repository.Repositories{Account: accounts, Member: members, Credential: creds}, accounts, members, creds
}
