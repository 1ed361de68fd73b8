package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
	domidentity "github.com/saasbooks/backend/internal/domain/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/auth"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*domidentity.User
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*domidentity.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, tenantID uuid.UUID, email string) (*domidentity.User, error) {
	for _, u := range r.users {
		if u.Email != email {
			continue
		}
		if tenantID == uuid.Nil && u.TenantID == nil {
			return u, nil
		}
		if u.TenantID != nil && *u.TenantID == tenantID {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeUserRepo) Save(_ context.Context, u *domidentity.User) error {
	r.users[u.ID] = u
	return nil
}

type fakeTenantRepo struct {
	tenants map[string]*domidentity.Tenant
}

func (r *fakeTenantRepo) FindByID(_ context.Context, id uuid.UUID) (*domidentity.Tenant, error) {
	for _, t := range r.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *fakeTenantRepo) FindBySlug(_ context.Context, slug string) (*domidentity.Tenant, error) {
	t, ok := r.tenants[slug]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return t, nil
}

func (r *fakeTenantRepo) Save(_ context.Context, t *domidentity.Tenant) error {
	r.tenants[t.Slug] = t
	return nil
}

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

func (r *fakeRecorder) lastOp(op audit.Operation) *audit.Entry {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Operation == op {
			return r.entries[i]
		}
	}
	return nil
}

type authFixture struct {
	svc      *AuthService
	users    *fakeUserRepo
	tenants  *fakeTenantRepo
	sessions *fakeSessionStore
	recorder *fakeRecorder
	jwt      *auth.JWTService
	tenant   *domidentity.Tenant
	user     *domidentity.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	tokenCfg := config.TokenConfig{
		SigningKey: "0123456789abcdef0123456789abcdef",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		Issuer:     "test",
		Leeway:     time.Second,
	}

	tenant := domidentity.NewTenant("acme", "Acme Corp", "standard")
	user, err := domidentity.NewUser(tenant.ID, "books@acme.test", "correct horse", domidentity.RoleAccountant)
	require.NoError(t, err)

	f := &authFixture{
		users:    &fakeUserRepo{users: map[uuid.UUID]*domidentity.User{user.ID: user}},
		tenants:  &fakeTenantRepo{tenants: map[string]*domidentity.Tenant{tenant.Slug: tenant}},
		sessions: &fakeSessionStore{revoked: map[string]bool{}},
		recorder: &fakeRecorder{},
		jwt:      auth.NewJWTService(tokenCfg),
		tenant:   tenant,
		user:     user,
	}
	f.svc = NewAuthService(f.users, f.tenants, f.jwt, f.sessions, f.recorder,
		NewNavigationResolver(DefaultNavigationConfig()), tokenCfg)
	return f
}

func (f *authFixture) login(t *testing.T) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), LoginInput{
		TenantSlug: "acme",
		Email:      "books@acme.test",
		Password:   "correct horse",
		IP:         "203.0.113.7",
	})
	require.NoError(t, err)
	return res
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)

	res := f.login(t)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, GroupTenant, res.Navigation.Group)
	require.NotNil(t, res.Tenant)
	assert.Equal(t, "acme", res.Tenant.Slug)

	entry := f.recorder.lastOp(audit.OpLoginSuccess)
	require.NotNil(t, entry)
	assert.Equal(t, f.tenant.ID, entry.TenantID)
	assert.Equal(t, "203.0.113.7", entry.IPAddress)

	require.NotNil(t, f.user.LastLoginAt)
	assert.Equal(t, "203.0.113.7", f.user.LastLoginIP)
}

func TestLogin_WrongPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{
		TenantSlug: "acme", Email: "books@acme.test", Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, shared.KindUnauthenticated, shared.KindOf(err))
	assert.Equal(t, 1, f.user.FailedAttempts)

	entry := f.recorder.lastOp(audit.OpLoginFailure)
	require.NotNil(t, entry)
	assert.Equal(t, "bad_password", entry.Details["reason"])
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(context.Background(), LoginInput{
			TenantSlug: "acme", Email: "books@acme.test", Password: "wrong",
		})
		require.Error(t, err)
	}
	assert.True(t, f.user.IsLocked())

	// Even the right password is refused while locked.
	_, err := f.svc.Login(context.Background(), LoginInput{
		TenantSlug: "acme", Email: "books@acme.test", Password: "correct horse",
	})
	require.Error(t, err)

	entry := f.recorder.lastOp(audit.OpLoginFailure)
	require.NotNil(t, entry)
	assert.Equal(t, "locked", entry.Details["reason"])
	assert.Equal(t, audit.SeverityHigh, entry.Severity)
}

func TestLogin_SuspendedTenant(t *testing.T) {
	f := newAuthFixture(t)
	f.tenant.Suspend()

	_, err := f.svc.Login(context.Background(), LoginInput{
		TenantSlug: "acme", Email: "books@acme.test", Password: "correct horse",
	})
	assert.True(t, errors.Is(err, shared.ErrTenantSuspended))
}

func TestLogin_UnknownUserIsIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)

	_, errUnknown := f.svc.Login(context.Background(), LoginInput{
		TenantSlug: "acme", Email: "nobody@acme.test", Password: "whatever",
	})
	_, errBadPass := f.svc.Login(context.Background(), LoginInput{
		TenantSlug: "acme", Email: "books@acme.test", Password: "wrong",
	})
	require.Error(t, errUnknown)
	require.Error(t, errBadPass)
	assert.Equal(t, errBadPass.Error(), errUnknown.Error())
}

func TestLogin_PlatformStaff(t *testing.T) {
	f := newAuthFixture(t)
	staff, err := domidentity.NewUser(uuid.Nil, "ops@saasbooks.test", "s3cret", domidentity.RolePlatformAdmin)
	require.NoError(t, err)
	staff.TenantID = nil
	f.users.users[staff.ID] = staff

	res, err := f.svc.Login(context.Background(), LoginInput{
		Email: "ops@saasbooks.test", Password: "s3cret",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Tenant)
	assert.Equal(t, GroupMultiTenant, res.Navigation.Group)

	entry := f.recorder.lastOp(audit.OpLoginSuccess)
	require.NotNil(t, entry)
	assert.Equal(t, uuid.Nil, entry.TenantID)
}

func TestRefresh_RotatesPairKeepingSession(t *testing.T) {
	f := newAuthFixture(t)
	login := f.login(t)

	origClaims, err := f.jwt.ValidateRefreshToken(login.RefreshToken)
	require.NoError(t, err)

	res, err := f.svc.RefreshToken(context.Background(), RefreshTokenInput{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.AccessToken, res.AccessToken)

	newClaims, err := f.jwt.ValidateRefreshToken(res.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, origClaims.SessionID, newClaims.SessionID)

	assert.NotNil(t, f.recorder.lastOp(audit.OpTokenRefresh))
}

func TestRefresh_RevokedSessionIsRejected(t *testing.T) {
	f := newAuthFixture(t)
	login := f.login(t)

	claims, err := f.jwt.ValidateRefreshToken(login.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(context.Background(), LogoutInput{
		UserID:    f.user.ID,
		TenantID:  f.user.TenantID,
		SessionID: claims.SessionID,
	}))
	assert.NotNil(t, f.recorder.lastOp(audit.OpLogout))

	_, err = f.svc.RefreshToken(context.Background(), RefreshTokenInput{RefreshToken: login.RefreshToken})
	assert.True(t, errors.Is(err, shared.ErrTokenInvalid))
}

func TestRefresh_GarbageToken(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.RefreshToken(context.Background(), RefreshTokenInput{RefreshToken: "not-a-token"})
	assert.True(t, errors.Is(err, shared.ErrTokenInvalid))
}

func TestRefresh_RotationDepthCapped(t *testing.T) {
	f := newAuthFixture(t)
	capped := config.TokenConfig{
		SigningKey:   "0123456789abcdef0123456789abcdef",
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		Issuer:       "test",
		MaxRefreshes: 2,
	}
	svc := NewAuthService(f.users, f.tenants, f.jwt, f.sessions, f.recorder,
		NewNavigationResolver(DefaultNavigationConfig()), capped)

	login := f.login(t)
	refresh := login.RefreshToken

	for i := 0; i < 2; i++ {
		res, err := svc.RefreshToken(context.Background(), RefreshTokenInput{RefreshToken: refresh})
		require.NoError(t, err)
		refresh = res.RefreshToken
	}

	_, err := svc.RefreshToken(context.Background(), RefreshTokenInput{RefreshToken: refresh})
	require.Error(t, err)
	assert.Equal(t, shared.KindTokenInvalid, shared.KindOf(err))
}

func TestRefresh_SuspendedTenantCannotRotate(t *testing.T) {
	f := newAuthFixture(t)
	login := f.login(t)
	f.tenant.Suspend()

	_, err := f.svc.RefreshToken(context.Background(), RefreshTokenInput{RefreshToken: login.RefreshToken})
	assert.True(t, errors.Is(err, shared.ErrTenantSuspended))
}

func TestGetCurrentUser(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.GetCurrentUser(context.Background(), GetCurrentUserInput{UserID: f.user.ID})
	require.NoError(t, err)
	assert.Equal(t, f.user.Email, res.User.Email)
	assert.Equal(t, GroupTenant, res.Navigation.Group)
}
