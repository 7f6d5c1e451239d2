package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easyfix/easyfix-go/internal/audit"
	"github.com/easyfix/easyfix-go/internal/config"
	apperrors "github.com/easyfix/easyfix-go/internal/errors"
	"github.com/easyfix/easyfix-go/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubGateway implements identity.Gateway with canned responses.
type stubGateway struct {
	mu            sync.Mutex
	users         map[string]*models.AuthInfo // token -> identity
	registerErr   error
	setRolesCalls []setRolesCall
}

type setRolesCall struct {
	uid   string
	roles []string
}

func newStubGateway() *stubGateway {
	return &stubGateway{users: map[string]*models.AuthInfo{}}
}

func (g *stubGateway) Register(_ context.Context, email, _, displayName string, roles []string) (*models.RegisterResponse, error) {
	if g.registerErr != nil {
		return nil, g.registerErr
	}
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	return &models.RegisterResponse{UID: "uid-" + email, Email: email, DisplayName: displayName, Roles: roles}, nil
}

func (g *stubGateway) Login(_ context.Context, email, password string) (*models.LoginResponse, error) {
	if password != "correct-horse" {
		return nil, apperrors.Authentication("invalid credentials")
	}
	return &models.LoginResponse{IDToken: "token-" + email, RefreshToken: "r", ExpiresIn: 3600, UID: "uid-" + email, Email: email}, nil
}

func (g *stubGateway) VerifyToken(_ context.Context, idToken string) (*models.AuthInfo, map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	info, ok := g.users[idToken]
	if !ok {
		return nil, nil, apperrors.Authentication("invalid or expired token")
	}
	return info, map[string]any{"roles": info.Roles}, nil
}

func (g *stubGateway) UpdateProfile(_ context.Context, _ string, displayName, photoURL *string) (*models.UpdateProfileResponse, error) {
	resp := &models.UpdateProfileResponse{UID: "uid"}
	if displayName != nil {
		resp.DisplayName = *displayName
	}
	if photoURL != nil {
		resp.PhotoURL = *photoURL
	}
	return resp, nil
}

func (g *stubGateway) ChangePassword(_ context.Context, _, _ string) error { return nil }

func (g *stubGateway) SendPasswordReset(_ context.Context, _ string) error { return nil }

func (g *stubGateway) SetRoles(_ context.Context, uid string, roles []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.setRolesCalls = append(g.setRolesCalls, setRolesCall{uid: uid, roles: roles})
	return nil
}

func (g *stubGateway) roleWrites() []setRolesCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]setRolesCall(nil), g.setRolesCalls...)
}

// stubGraph serves a single known bug.
type stubGraph struct {
	searchCalls int
	searchErr   error
}

var knownBug = models.Bug{
	ID:         "1042",
	Summary:    "crash on startup",
	Status:     "RESOLVED",
	Resolution: "FIXED",
	AssignedTo: "dev@example.com",
	TopicLabel: "startup failures",
}

func (g *stubGraph) Search(_ context.Context, terms []string, _ int) ([]models.BugResult, error) {
	g.searchCalls++
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	for _, t := range terms {
		if t == "crash" {
			return []models.BugResult{{Bug: knownBug, Score: 2.4}}, nil
		}
	}
	return []models.BugResult{}, nil
}

func (g *stubGraph) GetBug(_ context.Context, id string) (*models.BugDetail, error) {
	if id != knownBug.ID {
		return nil, apperrors.NotFoundf("bug %s not found", id)
	}
	return &models.BugDetail{Bug: knownBug}, nil
}

func (g *stubGraph) ListTopics(_ context.Context, _, _ int) ([]models.Topic, error) {
	return []models.Topic{{TopicID: 3, TopicLabel: "startup failures"}}, nil
}

func (g *stubGraph) DeveloperTopics(_ context.Context, id string) (*models.DeveloperTopics, error) {
	if id != "dev@example.com" {
		return nil, apperrors.NotFoundf("developer %s not found", id)
	}
	return &models.DeveloperTopics{Developer: id, TotalBugs: 4}, nil
}

func (g *stubGraph) HealthCheck(_ context.Context) error { return nil }

// chanRecorder delivers appended records to the test goroutine.
type chanRecorder struct {
	records chan audit.Record
}

func newChanRecorder() *chanRecorder {
	return &chanRecorder{records: make(chan audit.Record, 8)}
}

func (r *chanRecorder) Append(_ context.Context, rec audit.Record) error {
	r.records <- rec
	return nil
}

func (r *chanRecorder) wait(t *testing.T) audit.Record {
	t.Helper()
	select {
	case rec := <-r.records:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("no audit record appended")
		return audit.Record{}
	}
}

func (r *chanRecorder) assertNone(t *testing.T) {
	t.Helper()
	select {
	case rec := <-r.records:
		t.Fatalf("unexpected audit record: %+v", rec)
	case <-time.After(100 * time.Millisecond):
	}
}

type fixture struct {
	server   *Server
	gateway  *stubGateway
	graph    *stubGraph
	recorder *chanRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	gateway := newStubGateway()
	gateway.users["user-token"] = &models.AuthInfo{UID: "uid-1", Email: "alice@example.com", Roles: []string{"user"}}
	gateway.users["admin-token"] = &models.AuthInfo{UID: "uid-admin", Email: "root@example.com", Roles: []string{"admin"}}

	graphStub := &stubGraph{}
	recorder := newChanRecorder()
	return &fixture{
		server:   New(cfg, gateway, graphStub, recorder, "test"),
		gateway:  gateway,
		graph:    graphStub,
		recorder: recorder,
	}
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[map[string]map[string]any](t, w)
	kind, _ := body["error"]["kind"].(string)
	return kind
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "easyfix", body["service"])
}

func TestSearch(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/search", "user-token", models.SearchRequest{Query: "The app crashes on startup"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.SearchResponse](t, w)
	assert.Equal(t, "The app crashes on startup", resp.Query)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, knownBug.ID, resp.Results[0].Bug.ID)

	// Exactly one audit record, carrying the original query and the
	// returned result count.
	rec := f.recorder.wait(t)
	assert.Equal(t, "The app crashes on startup", rec.Query)
	assert.Equal(t, 1, rec.ResultCount)
	assert.Equal(t, "uid-1", rec.UserUID)
	f.recorder.assertNone(t)
}

func TestSearch_AllStopwords(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/search", "user-token", models.SearchRequest{Query: "the of and is"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.SearchResponse](t, w)
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, resp.Results)

	rec := f.recorder.wait(t)
	assert.Equal(t, 0, rec.ResultCount)
	assert.Empty(t, rec.Terms)
}

func TestSearch_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/search", "", models.SearchRequest{Query: "crash"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "authentication_error", errorKind(t, w))
	assert.Zero(t, f.graph.searchCalls)
	f.recorder.assertNone(t)
}

func TestSearch_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.graph.searchErr = apperrors.Upstream(assert.AnError, "graph query failed")

	w := f.do(http.MethodPost, "/search", "user-token", models.SearchRequest{Query: "crash"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "upstream_unavailable", errorKind(t, w))
}

func TestSetRoles_NonAdmin(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/auth/roles/uid-2", "user-token", models.SetRolesRequest{Roles: []string{"admin"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "authorization_error", errorKind(t, w))
	assert.Empty(t, f.gateway.roleWrites(), "no claim write may be issued")
}

func TestSetRoles_Admin(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/auth/roles/uid-2", "admin-token", models.SetRolesRequest{Roles: []string{"developer"}})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.SetRolesResponse](t, w)
	assert.True(t, resp.OK)
	assert.Equal(t, []string{"developer"}, resp.Roles)

	writes := f.gateway.roleWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, "uid-2", writes[0].uid)
	assert.Equal(t, []string{"developer"}, writes[0].roles)
}

func TestSetRoles_BadRoleName(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPut, "/auth/roles/uid-2", "admin-token", models.SetRolesRequest{Roles: []string{"Not A Role!"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorKind(t, w))
	assert.Empty(t, f.gateway.roleWrites())
}

func TestVerifyToken_Invalid(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/auth/verify-token", "", models.VerifyTokenRequest{IDToken: "bogus"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.VerifyTokenResponse](t, w)
	assert.False(t, resp.Valid)
	assert.Empty(t, resp.UID)
}

func TestVerifyToken_Valid(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/auth/verify-token", "", models.VerifyTokenRequest{IDToken: "user-token"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[models.VerifyTokenResponse](t, w)
	assert.True(t, resp.Valid)
	assert.Equal(t, "uid-1", resp.UID)
	assert.Contains(t, resp.Claims, "roles")
}

func TestRegister_ProviderValidationError(t *testing.T) {
	f := newFixture(t)
	f.gateway.registerErr = apperrors.Validation("email already in use")

	w := f.do(http.MethodPost, "/auth/register", "",
		models.RegisterRequest{Email: "alice@example.com", Password: "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", errorKind(t, w))
}

func TestRegister_RoleNeedsAdmin(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/auth/register", "user-token",
		models.RegisterRequest{Email: "bob@example.com", Password: "correct-horse", Role: "admin"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/auth/register", "admin-token",
		models.RegisterRequest{Email: "bob@example.com", Password: "correct-horse", Role: "developer"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[models.RegisterResponse](t, w)
	assert.Equal(t, []string{"developer"}, resp.Roles)
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/auth/me", "user-token", nil)
	require.Equal(t, http.StatusOK, w.Code)

	info := decode[models.AuthInfo](t, w)
	assert.Equal(t, "uid-1", info.UID)
	assert.Equal(t, []string{"user"}, info.Roles)
}

func TestGetBug(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/bugs/1042", "user-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[models.BugDetail](t, w)
	assert.Equal(t, "1042", detail.Bug.ID)

	w = f.do(http.MethodGet, "/bugs/9999", "user-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorKind(t, w))
}

func TestLoginRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.LoginRate = 0.001
	cfg.HTTP.LoginBurst = 1

	gateway := newStubGateway()
	f := &fixture{
		server:   New(cfg, gateway, &stubGraph{}, newChanRecorder(), "test"),
		gateway:  gateway,
		recorder: newChanRecorder(),
	}

	body := models.LoginRequest{Email: "alice@example.com", Password: "correct-horse"}
	w := f.do(http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLoginLimiters_EvictsIdleAtCap(t *testing.T) {
	l := newLoginLimiters(5, 10)
	l.max = 3

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))
	assert.True(t, l.allow("10.0.0.3"))
	assert.Equal(t, 3, l.size())

	// Age the first two past the idle window; a new IP then evicts them
	// instead of growing the map.
	l.mu.Lock()
	l.entries["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	l.entries["10.0.0.2"].lastSeen = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	assert.True(t, l.allow("10.0.0.4"))
	assert.Equal(t, 2, l.size())

	l.mu.Lock()
	_, evicted := l.entries["10.0.0.1"]
	_, kept := l.entries["10.0.0.3"]
	l.mu.Unlock()
	assert.False(t, evicted)
	assert.True(t, kept)
}

func TestLoginLimiters_EvictsOldestWhenNoneIdle(t *testing.T) {
	l := newLoginLimiters(5, 10)
	l.max = 2

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	l.mu.Lock()
	l.entries["10.0.0.1"].lastSeen = time.Now().Add(-time.Minute)
	l.mu.Unlock()

	// Nothing is past the idle window, so the oldest entry goes.
	assert.True(t, l.allow("10.0.0.3"))
	assert.LessOrEqual(t, l.size(), 2)

	l.mu.Lock()
	_, oldestGone := l.entries["10.0.0.1"]
	l.mu.Unlock()
	assert.False(t, oldestGone)
}
