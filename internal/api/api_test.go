package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/member-dashboard-api/internal/api"
	"github.com/member-dashboard-api/internal/authz"
	"github.com/member-dashboard-api/internal/config"
	"github.com/member-dashboard-api/internal/metrics"
	"github.com/member-dashboard-api/internal/mocks"
	"github.com/member-dashboard-api/internal/models"
	"github.com/member-dashboard-api/internal/realtime"
	"github.com/member-dashboard-api/internal/service"
	"github.com/rs/zerolog"
)

type testEnv struct {
	router    *gin.Engine
	accounts  *mocks.MockAccountService
	members   *mocks.MockMemberService
	imports   *mocks.MockImportService
	analytics *mocks.MockAnalyticsService
	tokens    map[authz.Role]string
}

func account(id string, role authz.Role) *models.Account {
	perms := authz.PermissionsFor(role)
	return &models.Account{
		ID:          id,
		Email:       id + "@example.com",
		FirstName:   id,
		Role:        role,
		Status:      models.AccountActive,
		Permissions: &perms,
	}
}

func setupTestRouter(opts api.Options) *testEnv {
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		accounts:  mocks.NewMockAccountService(),
		members:   mocks.NewMockMemberService(),
		imports:   mocks.NewMockImportService(),
		analytics: mocks.NewMockAnalyticsService(),
		tokens:    make(map[authz.Role]string),
	}
	env.tokens[authz.RoleSuperadmin] = env.accounts.Login(account("root", authz.RoleSuperadmin))
	env.tokens[authz.RoleAdmin] = env.accounts.Login(account("admin-1", authz.RoleAdmin))
	env.tokens[authz.RoleModerator] = env.accounts.Login(account("mod-1", authz.RoleModerator))
	env.tokens[authz.RoleUser] = env.accounts.Login(account("user-1", authz.RoleUser))

	services := &service.Services{
		Account:   env.accounts,
		Member:    env.members,
		Import:    env.imports,
		Analytics: env.analytics,
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "8080"},
		Import: config.ImportConfig{
			MaxUploadSize: 1024 * 1024,
			PreviewRows:   5,
		},
	}

	env.router = api.NewRouter(services, opts, cfg, zerolog.Nop())
	return env
}

func (e *testEnv) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return response
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	part.Write(data)
	writer.Close()

	req := httptest.NewRequest("POST", "/v1/imports", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	response := decode(t, w)
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "member-dashboard-api" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestHealthEndpoint_DatabaseDown(t *testing.T) {
	env := setupTestRouter(api.Options{
		HealthCheck: func(ctx context.Context) error { return errors.New("connection refused") },
	})

	w := env.do("GET", "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
	if decode(t, w)["status"] != "unhealthy" {
		t.Error("Expected status 'unhealthy'")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(api.Options{Subscribers: func() int { return 3 }})
	env.members.Members["a"] = &models.Member{ID: "a"}
	env.members.Members["b"] = &models.Member{ID: "b"}

	w := env.do("GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	response := decode(t, w)
	db := response["database"].(map[string]interface{})
	if db["members"].(float64) != 2 {
		t.Errorf("Expected 2 members, got %v", db["members"])
	}
	accounts := db["accounts"].(map[string]interface{})
	if accounts["total"].(float64) != 4 {
		t.Errorf("Expected 4 accounts, got %v", accounts["total"])
	}
	if response["subscribers"].(float64) != 3 {
		t.Errorf("Expected 3 subscribers, got %v", response["subscribers"])
	}
}

func TestRouteGuards(t *testing.T) {
	env := setupTestRouter(api.Options{})

	tests := []struct {
		name           string
		path           string
		role           authz.Role
		token          string
		expectedStatus int
		redirect       string
	}{
		{"members without token", "/v1/members", authz.RoleUnknown, "", http.StatusUnauthorized, api.SignInPath},
		{"members with unknown token", "/v1/members", authz.RoleUnknown, "bogus", http.StatusUnauthorized, api.SignInPath},
		{"members as user", "/v1/members", authz.RoleUser, "", http.StatusForbidden, api.UnauthorizedPath},
		{"members as moderator", "/v1/members", authz.RoleModerator, "", http.StatusOK, ""},
		{"analytics as user", "/v1/analytics/overview", authz.RoleUser, "", http.StatusForbidden, api.UnauthorizedPath},
		{"analytics as moderator", "/v1/analytics/overview", authz.RoleModerator, "", http.StatusOK, ""},
		{"accounts as moderator", "/v1/accounts", authz.RoleModerator, "", http.StatusForbidden, api.UnauthorizedPath},
		{"accounts as admin", "/v1/accounts", authz.RoleAdmin, "", http.StatusOK, ""},
		{"import template as user", "/v1/imports/template", authz.RoleUser, "", http.StatusForbidden, api.UnauthorizedPath},
		{"me as user", "/v1/me", authz.RoleUser, "", http.StatusOK, ""},
		{"me without token", "/v1/me", authz.RoleUnknown, "", http.StatusUnauthorized, api.SignInPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.token
			if tt.role != authz.RoleUnknown {
				token = env.tokens[tt.role]
			}
			w := env.do("GET", tt.path, token, nil)

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.redirect != "" {
				response := decode(t, w)
				if response["redirect"] != tt.redirect {
					t.Errorf("Expected redirect %s, got %v", tt.redirect, response["redirect"])
				}
			}
		})
	}
}

func TestGuardUsesStoredPermissions(t *testing.T) {
	env := setupTestRouter(api.Options{})

	// promoted to admin, but the snapshot still carries user permissions
	promoted := account("promoted", authz.RoleAdmin)
	perms := authz.PermissionsFor(authz.RoleUser)
	promoted.Permissions = &perms
	token := env.accounts.Login(promoted)

	w := env.do("GET", "/v1/accounts", token, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for stale snapshot, got %d", w.Code)
	}

	// role checks still pass on the role itself
	w = env.do("GET", "/v1/members", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for role check, got %d", w.Code)
	}
}

func TestGuardPendingWhenLookupFails(t *testing.T) {
	env := setupTestRouter(api.Options{})
	env.accounts.AuthErr = errors.New("connection refused")

	w := env.do("GET", "/v1/members", env.tokens[authz.RoleAdmin], nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	response := decode(t, w)
	if response["status"] != "pending" {
		t.Errorf("Expected status 'pending', got %v", response["status"])
	}
	if _, ok := response["redirect"]; ok {
		t.Error("Pending response must not redirect")
	}
}

func TestSignInAndSignOut(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("POST", "/v1/auth/signin", "", []byte(`{"email":"user-1@example.com","password":"secret1"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	token := decode(t, w)["token"].(string)
	if token != env.tokens[authz.RoleUser] {
		t.Errorf("Expected token %s, got %s", env.tokens[authz.RoleUser], token)
	}

	w = env.do("POST", "/v1/auth/signout", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if decode(t, w)["redirect"] != api.SignInPath {
		t.Error("Expected sign-out to point at the sign-in page")
	}
	if len(env.accounts.Revoked) != 1 || env.accounts.Revoked[0] != token {
		t.Errorf("Expected token to be revoked, got %v", env.accounts.Revoked)
	}

	w = env.do("GET", "/v1/me", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 after sign-out, got %d", w.Code)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	env := setupTestRouter(api.Options{})

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"unknown email", `{"email":"nobody@example.com","password":"secret1"}`, http.StatusUnauthorized},
		{"missing password", `{"email":"user-1@example.com"}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/v1/auth/signin", "", []byte(tt.body))
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestSignUpAlwaysUser(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("POST", "/v1/auth/signup", "", []byte(`{"email":"new@example.com","password":"secret1","firstName":"New","role":"superadmin"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	response := decode(t, w)
	if response["role"] != "user" {
		t.Errorf("Expected role 'user', got %v", response["role"])
	}
	if response["permissionsStale"] != false {
		t.Errorf("Expected fresh permissions, got %v", response["permissionsStale"])
	}
}

func TestMeListsAvailableRoles(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("GET", "/v1/me", env.tokens[authz.RoleAdmin], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	roles := decode(t, w)["availableRoles"].([]interface{})
	if len(roles) != 3 {
		t.Errorf("Expected 3 assignable roles for admin, got %v", roles)
	}
}

func TestAccountManagement(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		expectedStatus int
	}{
		{"admin promotes user to admin", "PUT", "/v1/accounts/user-1/role", `{"role":"admin"}`, http.StatusOK},
		{"admin cannot promote to moderator", "PUT", "/v1/accounts/user-1/role", `{"role":"moderator"}`, http.StatusForbidden},
		{"admin cannot change own role", "PUT", "/v1/accounts/admin-1/role", `{"role":"user"}`, http.StatusForbidden},
		{"admin cannot edit superadmin", "PUT", "/v1/accounts/root", `{"firstName":"x"}`, http.StatusForbidden},
		{"admin edits moderator", "PUT", "/v1/accounts/mod-1", `{"firstName":"Mo"}`, http.StatusOK},
		{"admin sets status", "PUT", "/v1/accounts/user-1/status", `{"status":"inactive"}`, http.StatusOK},
		{"missing role", "PUT", "/v1/accounts/user-1/role", `{}`, http.StatusBadRequest},
		{"unknown account", "PUT", "/v1/accounts/ghost/role", `{"role":"user"}`, http.StatusNotFound},
		{"admin cannot delete superadmin", "DELETE", "/v1/accounts/root", "", http.StatusForbidden},
		{"admin cannot delete self", "DELETE", "/v1/accounts/admin-1", "", http.StatusForbidden},
		{"admin cannot set another password", "POST", "/v1/accounts/user-1/password", `{"newPassword":"secret2"}`, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(api.Options{})
			var body []byte
			if tt.body != "" {
				body = []byte(tt.body)
			}
			w := env.do(tt.method, tt.path, env.tokens[authz.RoleAdmin], body)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestDeleteAccountReportsNotice(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("DELETE", "/v1/accounts/user-1", env.tokens[authz.RoleAdmin], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var result service.DeleteResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if !result.Deleted {
		t.Error("Expected account to be deleted")
	}
	if result.Notice == "" {
		t.Error("Expected a notice about the remaining sign-in identity")
	}
}

func TestMemberEndpoints(t *testing.T) {
	env := setupTestRouter(api.Options{})
	token := env.tokens[authz.RoleModerator]
	env.members.Members["m-1"] = &models.Member{ID: "m-1", Name: "Ada", Email: "ada@example.com"}

	w := env.do("GET", "/v1/members?search=ada&sort=name&dir=desc&page=2&page_size=10", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	q := env.members.LastQuery
	if q.Search != "ada" || q.SortField != "name" || q.SortDir != "desc" || q.Page != 2 || q.PageSize != 10 {
		t.Errorf("Query parameters not bound: %+v", q)
	}

	w = env.do("GET", "/v1/members/m-1", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = env.do("GET", "/v1/members/missing", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	w = env.do("DELETE", "/v1/members/m-1", token, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
}

func TestCreateMemberValidationDetails(t *testing.T) {
	env := setupTestRouter(api.Options{})
	env.members.Err = service.ValidationErrors{
		{Field: "email", Message: "invalid email format", Value: "nope"},
	}

	w := env.do("POST", "/v1/members", env.tokens[authz.RoleModerator], []byte(`{"name":"A","email":"nope"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	details := decode(t, w)["details"].([]interface{})
	if len(details) != 1 {
		t.Fatalf("Expected 1 validation detail, got %d", len(details))
	}
	if details[0].(map[string]interface{})["field"] != "email" {
		t.Errorf("Expected email detail, got %v", details[0])
	}
}

func TestMemberExport(t *testing.T) {
	env := setupTestRouter(api.Options{})
	env.members.ExportCSV = "name,email\nAda,ada@example.com\n"

	w := env.do("GET", "/v1/members/export", env.tokens[authz.RoleModerator], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Expected text/csv, got %s", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "members_") {
		t.Errorf("Expected attachment filename, got %s", w.Header().Get("Content-Disposition"))
	}
	if w.Body.String() != env.members.ExportCSV {
		t.Errorf("Expected export body, got %q", w.Body.String())
	}
}

func TestImportTemplate(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("GET", "/v1/imports/template", env.tokens[authz.RoleModerator], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), api.TemplateFilename) {
		t.Errorf("Expected %s attachment, got %s", api.TemplateFilename, w.Header().Get("Content-Disposition"))
	}
	if w.Body.String() != "name,email\n" {
		t.Errorf("Expected template body, got %q", w.Body.String())
	}
}

func TestImportTemplate_Error(t *testing.T) {
	env := setupTestRouter(api.Options{})
	env.imports.TemplateErr = errors.New("short write")

	w := env.do("GET", "/v1/imports/template", env.tokens[authz.RoleModerator], nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if w.Header().Get("Content-Disposition") != "" {
		t.Errorf("Expected no attachment on failure, got %s", w.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(w.Body.String(), "failed to build template") {
		t.Errorf("Expected error body, got %q", w.Body.String())
	}
}

func TestImportUploadAndConfirm(t *testing.T) {
	env := setupTestRouter(api.Options{})
	token := env.tokens[authz.RoleModerator]
	data := []byte("name,email\nAda,ada@example.com\n")

	req := uploadRequest(t, "members.csv", data)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	var session models.ImportSession
	json.Unmarshal(w.Body.Bytes(), &session)
	if session.ID != "import-1" {
		t.Errorf("Expected import_id 'import-1', got '%s'", session.ID)
	}
	if session.CreatedBy != "mod-1" {
		t.Errorf("Expected created_by 'mod-1', got '%s'", session.CreatedBy)
	}
	if !bytes.Equal(env.imports.Uploads["members.csv"], data) {
		t.Errorf("Expected upload bytes to reach the service, got %q", env.imports.Uploads["members.csv"])
	}

	w = env.do("GET", "/v1/imports/import-1", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = env.do("POST", "/v1/imports/import-1/confirm", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &session)
	if session.State != "completed" {
		t.Errorf("Expected state completed, got %s", session.State)
	}
	if session.Result == nil || session.Result.Success != 1 {
		t.Errorf("Expected 1 imported row, got %+v", session.Result)
	}
}

func TestImportUploadRejected(t *testing.T) {
	tests := []struct {
		name           string
		filename       string
		uploadErr      error
		expectedStatus int
		expectedError  string
	}{
		{"wrong extension", "members.json", nil, http.StatusBadRequest, "requires a CSV file"},
		{"parse failure", "members.csv", fmt.Errorf("%w: missing header row", service.ErrValidation), http.StatusBadRequest, "missing header row"},
		{"storage failure", "members.csv", errors.New("disk full"), http.StatusInternalServerError, "failed to parse import"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(api.Options{})
			env.imports.UploadErr = tt.uploadErr

			req := uploadRequest(t, tt.filename, []byte("name,email\n"))
			req.Header.Set("Authorization", "Bearer "+env.tokens[authz.RoleAdmin])
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d. Body: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.expectedError) {
				t.Errorf("Expected error '%s' in response, got: %s", tt.expectedError, w.Body.String())
			}
		})
	}
}

func TestImportUploadMissingFile(t *testing.T) {
	env := setupTestRouter(api.Options{})

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("note", "no file")
	writer.Close()

	req := httptest.NewRequest("POST", "/v1/imports", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.tokens[authz.RoleAdmin])
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestImportConfirmConflicts(t *testing.T) {
	tests := []struct {
		name           string
		confirmErr     error
		expectedStatus int
	}{
		{"already running", service.ErrImportInProgress, http.StatusConflict},
		{"already finished", service.ErrImportFinished, http.StatusConflict},
		{"unknown session", service.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(api.Options{})
			env.imports.ConfirmFn = func(id string) (*models.ImportSession, error) {
				return nil, tt.confirmErr
			}

			w := env.do("POST", "/v1/imports/import-1/confirm", env.tokens[authz.RoleAdmin], nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestImportConfirmFailureReturnsSession(t *testing.T) {
	env := setupTestRouter(api.Options{})
	env.imports.ConfirmFn = func(id string) (*models.ImportSession, error) {
		return &models.ImportSession{ID: id, State: "failed", Error: "load existing emails"}, errors.New("load existing emails")
	}

	w := env.do("POST", "/v1/imports/import-1/confirm", env.tokens[authz.RoleAdmin], nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	if decode(t, w)["state"] != "failed" {
		t.Errorf("Expected failed session in body, got %s", w.Body.String())
	}
}

func TestAnalyticsOverview(t *testing.T) {
	env := setupTestRouter(api.Options{})
	env.analytics.OverviewData.TotalMembers = 42

	w := env.do("GET", "/v1/analytics/overview", env.tokens[authz.RoleModerator], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var overview map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &overview)
	if len(overview) == 0 {
		t.Error("Expected overview fields")
	}

	w = env.do("GET", "/v1/analytics/employment", env.tokens[authz.RoleModerator], nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	series := decode(t, w)["series"].([]interface{})
	if len(series) != 3 {
		t.Errorf("Expected 3 employment buckets, got %d", len(series))
	}
}

func TestCORSHeaders(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("OPTIONS", "/v1/members", "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for OPTIONS, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin '*', got '%s'", w.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Error("Expected Authorization in Access-Control-Allow-Headers")
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	env := setupTestRouter(api.Options{Metrics: metrics.New()})

	env.do("GET", "/v1/members", "", nil)

	w := env.do("GET", "/metrics/prometheus", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `member_dashboard_authz_guard_decisions_total{decision="redirect_signin"} 1`) {
		t.Errorf("Expected guard decision counter, got:\n%s", w.Body.String())
	}
}

func TestStreamDisabled(t *testing.T) {
	env := setupTestRouter(api.Options{})

	w := env.do("GET", "/v1/members/stream", env.tokens[authz.RoleModerator], nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}

type staticSource struct {
	mu      sync.Mutex
	members []*models.Member
}

func (s *staticSource) List(ctx context.Context) ([]*models.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Member(nil), s.members...), nil
}

func (s *staticSource) set(members ...*models.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = members
}

func TestStreamPushesSnapshots(t *testing.T) {
	source := &staticSource{}
	source.set(&models.Member{ID: "1", Email: "a@example.com"})
	hub := realtime.NewHub(source, zerolog.Nop())

	env := setupTestRouter(api.Options{Stream: hub})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/members/stream?token=" + env.tokens[authz.RoleModerator]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap realtime.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if snap.Version != 1 || len(snap.Members) != 1 {
		t.Errorf("Expected version 1 with 1 member, got version %d with %d", snap.Version, len(snap.Members))
	}

	source.set(
		&models.Member{ID: "1", Email: "a@example.com"},
		&models.Member{ID: "2", Email: "b@example.com"},
	)
	if err := hub.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if snap.Version != 2 || len(snap.Members) != 2 {
		t.Errorf("Expected version 2 with 2 members, got version %d with %d", snap.Version, len(snap.Members))
	}
}

func TestStreamRequiresModerator(t *testing.T) {
	hub := realtime.NewHub(&staticSource{}, zerolog.Nop())
	env := setupTestRouter(api.Options{Stream: hub})
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/members/stream?token=" + env.tokens[authz.RoleUser]
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected dial to fail for a user account")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %v", resp)
	}
}
