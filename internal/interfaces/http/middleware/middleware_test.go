package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/auth"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUserRepo struct {
	byID map[uuid.UUID]*identity.User
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeUserRepo) FindByEmail(context.Context, uuid.UUID, string) (*identity.User, error) {
	return nil, shared.ErrNotFound
}

func (r *fakeUserRepo) Save(context.Context, *identity.User) error { return nil }

type fakeTenantRepo struct {
	byID   map[uuid.UUID]*identity.Tenant
	bySlug map[string]*identity.Tenant
}

func (r *fakeTenantRepo) FindByID(_ context.Context, id uuid.UUID) (*identity.Tenant, error) {
	if t, ok := r.byID[id]; ok {
		return t, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTenantRepo) FindBySlug(_ context.Context, slug string) (*identity.Tenant, error) {
	if t, ok := r.bySlug[slug]; ok {
		return t, nil
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTenantRepo) Save(context.Context, *identity.Tenant) error { return nil }

type fakeSessionStore struct {
	revoked map[string]bool
}

func (s *fakeSessionStore) Revoke(_ context.Context, sessionID string, _ time.Duration) error {
	s.revoked[sessionID] = true
	return nil
}

func (s *fakeSessionStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	return s.revoked[sessionID], nil
}

func (s *fakeSessionStore) RevokeUser(context.Context, string, time.Duration) error { return nil }

func (s *fakeSessionStore) IsUserRevoked(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

type fakeRecorder struct {
	entries    []*audit.Entry
	violations []*audit.Violation
}

func (r *fakeRecorder) Record(_ context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeRecorder) RecordRead(context.Context, string, string, string) error { return nil }

func (r *fakeRecorder) RecordViolation(_ context.Context, v *audit.Violation) error {
	r.violations = append(r.violations, v)
	return nil
}

type pipeline struct {
	engine   *gin.Engine
	jwt      *auth.JWTService
	recorder *fakeRecorder
	tenant   *identity.Tenant
	other    *identity.Tenant
	member   *identity.User
	staff    *identity.User
}

// scopeEcho reports what the middleware installed, for assertions.
type scopeEcho struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Staff    bool   `json:"staff"`
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	tenant := identity.NewTenant("acme", "Acme Corp", "pro")
	other := identity.NewTenant("globex", "Globex", "trial")
	other.Status = identity.TenantStatusTrial

	member, err := identity.NewUser(tenant.ID, "books@acme.test", "correct horse", identity.RoleAccountant)
	require.NoError(t, err)
	staff, err := identity.NewUser(uuid.Nil, "ops@platform.test", "correct horse", identity.RolePlatformAdmin)
	require.NoError(t, err)
	staff.TenantID = nil

	users := &fakeUserRepo{byID: map[uuid.UUID]*identity.User{
		member.ID: member,
		staff.ID:  staff,
	}}
	tenants := &fakeTenantRepo{
		byID:   map[uuid.UUID]*identity.Tenant{tenant.ID: tenant, other.ID: other},
		bySlug: map[string]*identity.Tenant{tenant.Slug: tenant, other.Slug: other},
	}
	recorder := &fakeRecorder{}
	sessions := &fakeSessionStore{revoked: map[string]bool{}}

	jwtSvc := auth.NewJWTService(config.TokenConfig{
		SigningKey: "0123456789abcdef0123456789abcdef",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "test",
	})
	resolver := auth.NewResolver(jwtSvc, sessions, users, recorder)
	scope := NewTenantScope(tenants, recorder, "saasbooks.test")

	table := GuardTable{
		"GET /api/v1/admin/audit-logs": {
			Roles:          []identity.Role{identity.RolePlatformAdmin, identity.RoleTenantOwner, identity.RoleCFO},
			TenantRequired: true,
		},
		"GET /api/v1/auth/navigation": {},
	}

	echo := func(c *gin.Context) {
		tc, err := tenantctx.Current(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, scopeEcho{})
			return
		}
		c.JSON(http.StatusOK, scopeEcho{
			TenantID: tc.TenantID.String(),
			UserID:   tc.UserID.String(),
			Role:     tc.Role,
			Staff:    tc.PlatformStaff,
		})
	}

	r := gin.New()
	r.Use(RequestID())
	v1 := r.Group("/api/v1")
	v1.Use(Authenticate(resolver), scope.Handler(), RouteGuard(table))
	v1.GET("/admin/audit-logs", echo)
	v1.GET("/auth/navigation", echo)
	v1.GET("/unlisted", echo)

	return &pipeline{
		engine:   r,
		jwt:      jwtSvc,
		recorder: recorder,
		tenant:   tenant,
		other:    other,
		member:   member,
		staff:    staff,
	}
}

func (p *pipeline) token(t *testing.T, u *identity.User) string {
	t.Helper()
	pair, err := p.jwt.GenerateTokenPair(auth.GenerateTokenInput{
		TenantID: u.TenantID,
		UserID:   u.ID,
		Role:     string(u.Role),
	})
	require.NoError(t, err)
	return pair.AccessToken
}

func (p *pipeline) do(t *testing.T, method, path, token string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Host = "api.saasbooks.test"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	p.engine.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var env map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestPipeline_MissingToken(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/auth/navigation", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "Unauthenticated", env["error"])
	assert.NotEmpty(t, env["request_id"])
	assert.Equal(t, env["request_id"], w.Header().Get("X-Request-ID"))
}

func TestPipeline_RequestIDHonored(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/auth/navigation", "",
		map[string]string{"X-Request-ID": "req-upstream-1"})

	assert.Equal(t, "req-upstream-1", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-upstream-1", decodeEnvelope(t, w)["request_id"])
}

func TestPipeline_GarbageToken(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/auth/navigation", "not-a-jwt", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "TokenInvalid", decodeEnvelope(t, w)["error"])
	assert.NotEmpty(t, p.recorder.violations)
}

func TestPipeline_TenantFromClaim(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/auth/navigation", p.token(t, p.member), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var echo scopeEcho
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echo))
	assert.Equal(t, p.tenant.ID.String(), echo.TenantID)
	assert.Equal(t, p.member.ID.String(), echo.UserID)
	assert.Equal(t, "accountant", echo.Role)
	assert.False(t, echo.Staff)
}

func TestPipeline_MemberOverrideHeaderIsViolation(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/auth/navigation", p.token(t, p.member),
		map[string]string{TenantHeaderKey: p.other.ID.String()})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "TenantMismatch", decodeEnvelope(t, w)["error"])

	require.Len(t, p.recorder.violations, 1)
	v := p.recorder.violations[0]
	assert.Equal(t, audit.ViolationUnauthorizedAccess, v.Kind)
	assert.Equal(t, audit.SeverityHigh, v.Severity)
	assert.Equal(t, *p.member.TenantID, v.TenantID)
	assert.Equal(t, p.other.ID.String(), v.Details["requested_tenant_id"])
}

func TestPipeline_MemberOverrideHeaderMatchingClaimIsFine(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/auth/navigation", p.token(t, p.member),
		map[string]string{TenantHeaderKey: p.tenant.ID.String()})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, p.recorder.violations)
}

func TestPipeline_StaffOverrideHeaderAudited(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/admin/audit-logs", p.token(t, p.staff),
		map[string]string{TenantHeaderKey: p.other.ID.String()})

	require.Equal(t, http.StatusOK, w.Code)
	var echo scopeEcho
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echo))
	assert.Equal(t, p.other.ID.String(), echo.TenantID)
	assert.True(t, echo.Staff)

	require.Len(t, p.recorder.entries, 1)
	e := p.recorder.entries[0]
	assert.Equal(t, audit.OpTenantOverride, e.Operation)
	assert.Equal(t, p.other.ID, e.TenantID)
	assert.Equal(t, p.staff.ID, *e.UserID)
}

func TestPipeline_StaffBadOverrideHeader(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/admin/audit-logs", p.token(t, p.staff),
		map[string]string{TenantHeaderKey: "not-a-uuid"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ValidationFailed", decodeEnvelope(t, w)["error"])
}

func TestPipeline_StaffHostSuffixFallback(t *testing.T) {
	p := newPipeline(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit-logs", nil)
	req.Host = "acme.saasbooks.test"
	req.Header.Set("Authorization", "Bearer "+p.token(t, p.staff))
	w := httptest.NewRecorder()
	p.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var echo scopeEcho
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &echo))
	assert.Equal(t, p.tenant.ID.String(), echo.TenantID)
	// Host mapping is not an override, so nothing is audited.
	assert.Empty(t, p.recorder.entries)
}

func TestPipeline_StaffWithoutTenantOnTenantRoute(t *testing.T) {
	p := newPipeline(t)

	// api host has no slug, no header: the tenant stays unset and the
	// guard refuses the tenant-scoped route.
	w := p.do(t, http.MethodGet, "/api/v1/admin/audit-logs", p.token(t, p.staff), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "TenantRequired", decodeEnvelope(t, w)["error"])
}

func TestPipeline_SuspendedTenantRefused(t *testing.T) {
	p := newPipeline(t)
	p.tenant.Suspend()

	w := p.do(t, http.MethodGet, "/api/v1/auth/navigation", p.token(t, p.member), nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "TenantSuspended", decodeEnvelope(t, w)["error"])
}

func TestPipeline_MemberDeniedAdminRoute(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/admin/audit-logs", p.token(t, p.member), nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden", decodeEnvelope(t, w)["error"])
}

func TestPipeline_UnlistedRouteDenied(t *testing.T) {
	p := newPipeline(t)

	w := p.do(t, http.MethodGet, "/api/v1/unlisted", p.token(t, p.member), nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeadline_TimesOut(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Deadline(20*time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "DeadlineExceeded", decodeEnvelope(t, w)["error"])
}

func TestRecovery_PanicBecomesEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal", decodeEnvelope(t, w)["error"])
}

func TestTenantSlugFromHost(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"acme.saasbooks.test", "acme"},
		{"acme.saasbooks.test:8080", "acme"},
		{"saasbooks.test", ""},
		{"a.b.saasbooks.test", ""},
		{".saasbooks.test", ""},
		{"acme.other.test", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TenantSlugFromHost(tc.host, "saasbooks.test"), tc.host)
	}
}
