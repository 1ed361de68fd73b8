// Package identity contains the application services for
// authentication, session lifecycle and navigation resolution.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/auth"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// AuthService handles login, logout, token refresh and the
// current-user projection. Every outcome that matters to compliance is
// written to the audit trail: LOGIN_SUCCESS, LOGIN_FAILURE, LOGOUT,
// TOKEN_REFRESH.
type AuthService struct {
	users        identity.UserRepository
	tenants      identity.TenantRepository
	jwt          *auth.JWTService
	sessions     auth.SessionStore
	recorder     audit.Recorder
	nav          *NavigationResolver
	refreshTTL   time.Duration
	maxRefreshes int
}

// NewAuthService creates an authentication service.
func NewAuthService(
	users identity.UserRepository,
	tenants identity.TenantRepository,
	jwtService *auth.JWTService,
	sessions auth.SessionStore,
	recorder audit.Recorder,
	nav *NavigationResolver,
	tokenCfg config.TokenConfig,
) *AuthService {
	return &AuthService{
		users:        users,
		tenants:      tenants,
		jwt:          jwtService,
		sessions:     sessions,
		recorder:     recorder,
		nav:          nav,
		refreshTTL:   tokenCfg.RefreshTTL,
		maxRefreshes: tokenCfg.MaxRefreshes,
	}
}

var errInvalidCredentials = shared.NewError(shared.KindUnauthenticated, "invalid email or password")

// Login authenticates a user and returns a token pair plus the
// role-derived navigation. Credential failures are indistinguishable
// from unknown users in the response; the audit trail keeps the
// difference.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	var tenantRec *identity.Tenant
	tenantID := uuid.Nil
	if input.TenantSlug != "" {
		t, err := s.tenants.FindBySlug(ctx, input.TenantSlug)
		if err != nil {
			logger.L(ctx).Warn("login for unknown tenant", zap.String("slug", input.TenantSlug))
			return nil, errInvalidCredentials
		}
		if !t.CanServe() {
			s.recordAuth(ctx, t.ID, nil, audit.OpLoginFailure, audit.SeverityMedium,
				map[string]any{"email": input.Email, "reason": "tenant_" + string(t.Status)}, input.IP, input.UserAgent)
			return nil, shared.ErrTenantSuspended
		}
		tenantRec = t
		tenantID = t.ID
	}

	user, err := s.users.FindByEmail(ctx, tenantID, input.Email)
	if err != nil {
		s.recordAuth(ctx, tenantID, nil, audit.OpLoginFailure, audit.SeverityMedium,
			map[string]any{"email": input.Email, "reason": "unknown_user"}, input.IP, input.UserAgent)
		return nil, errInvalidCredentials
	}

	if !user.IsActive {
		s.recordAuth(ctx, tenantID, &user.ID, audit.OpLoginFailure, audit.SeverityMedium,
			map[string]any{"reason": "deactivated"}, input.IP, input.UserAgent)
		return nil, errInvalidCredentials
	}
	if user.IsLocked() {
		s.recordAuth(ctx, tenantID, &user.ID, audit.OpLoginFailure, audit.SeverityHigh,
			map[string]any{"reason": "locked", "locked_until": user.LockedUntil}, input.IP, input.UserAgent)
		return nil, shared.NewError(shared.KindUnauthenticated, "account is temporarily locked")
	}

	if !user.CheckPassword(input.Password) {
		user.RecordLoginFailure()
		if err := s.users.Save(ctx, user); err != nil {
			logger.L(ctx).Error("failed to persist login failure", zap.Error(err))
		}
		s.recordAuth(ctx, tenantID, &user.ID, audit.OpLoginFailure, audit.SeverityMedium,
			map[string]any{"reason": "bad_password", "failed_attempts": user.FailedAttempts}, input.IP, input.UserAgent)
		return nil, errInvalidCredentials
	}

	pair, err := s.jwt.GenerateTokenPair(auth.GenerateTokenInput{
		TenantID: user.TenantID,
		UserID:   user.ID,
		Role:     string(user.Role),
	})
	if err != nil {
		logger.L(ctx).Error("failed to generate token pair", zap.Error(err))
		return nil, shared.WrapError(shared.KindInternal, "failed to issue tokens", err)
	}

	user.RecordLoginSuccess(input.IP)
	if err := s.users.Save(ctx, user); err != nil {
		// The login already succeeded; losing the stamp is logged, not
		// surfaced.
		logger.L(ctx).Error("failed to persist login success", zap.Error(err))
	}

	s.recordAuth(ctx, tenantID, &user.ID, audit.OpLoginSuccess, audit.SeverityLow,
		map[string]any{"role": string(user.Role)}, input.IP, input.UserAgent)

	result := &LoginResult{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             pair.TokenType,
		User:                  userInfo(user),
		Navigation:            s.nav.Resolve(user.Role),
	}
	if tenantRec != nil {
		result.Tenant = &TenantInfo{
			ID:     tenantRec.ID,
			Slug:   tenantRec.Slug,
			Name:   tenantRec.Name,
			Plan:   tenantRec.Plan,
			Status: tenantRec.Status,
		}
	}
	return result, nil
}

// RefreshToken rotates a token pair. The rotated pair keeps the
// session ID of the original login, so revoking the session still
// kills every descendant token.
func (s *AuthService) RefreshToken(ctx context.Context, input RefreshTokenInput) (*RefreshTokenResult, error) {
	claims, err := s.jwt.ValidateRefreshToken(input.RefreshToken)
	if err != nil {
		if err == auth.ErrExpiredToken {
			return nil, shared.ErrTokenExpired
		}
		return nil, shared.ErrTokenInvalid
	}

	if revoked, err := s.sessions.IsRevoked(ctx, claims.SessionID); err != nil {
		logger.L(ctx).Error("session revocation check failed", zap.Error(err))
	} else if revoked {
		return nil, shared.ErrTokenInvalid
	}

	if s.maxRefreshes > 0 && claims.RefreshCount >= s.maxRefreshes {
		return nil, shared.NewError(shared.KindTokenInvalid, "session exceeded its refresh limit, log in again")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, shared.ErrTokenInvalid
	}
	if !user.IsActive || user.IsLocked() {
		return nil, shared.ErrTokenInvalid
	}

	if user.TenantID != nil {
		t, err := s.tenants.FindByID(ctx, *user.TenantID)
		if err != nil {
			return nil, shared.ErrTokenInvalid
		}
		if !t.CanServe() {
			return nil, shared.ErrTenantSuspended
		}
	}

	pair, err := s.jwt.GenerateTokenPair(auth.GenerateTokenInput{
		TenantID:     user.TenantID,
		UserID:       user.ID,
		Role:         string(user.Role),
		SessionID:    claims.SessionID,
		RefreshCount: claims.RefreshCount + 1,
	})
	if err != nil {
		return nil, shared.WrapError(shared.KindInternal, "failed to rotate tokens", err)
	}

	tenantID := uuid.Nil
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}
	s.recordAuth(ctx, tenantID, &user.ID, audit.OpTokenRefresh, audit.SeverityLow, nil, input.IP, input.UserAgent)

	return &RefreshTokenResult{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             pair.TokenType,
	}, nil
}

// Logout revokes the session, invalidating both tokens of the pair and
// any rotated descendants at once.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	if err := s.sessions.Revoke(ctx, input.SessionID, s.refreshTTL); err != nil {
		return shared.WrapError(shared.KindCacheUnavailable, "failed to revoke session", err)
	}

	tenantID := uuid.Nil
	if input.TenantID != nil {
		tenantID = *input.TenantID
	}
	s.recordAuth(ctx, tenantID, &input.UserID, audit.OpLogout, audit.SeverityLow, nil, input.IP, input.UserAgent)
	return nil
}

// GetCurrentUser returns the current principal's projection with its
// navigation.
func (s *AuthService) GetCurrentUser(ctx context.Context, input GetCurrentUserInput) (*CurrentUserResult, error) {
	user, err := s.users.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	return &CurrentUserResult{
		User:       userInfo(user),
		Navigation: s.nav.Resolve(user.Role),
	}, nil
}

// Navigation resolves the navigation for a role without a user lookup,
// for the navigation endpoint.
func (s *AuthService) Navigation(role identity.Role) NavigationResult {
	return s.nav.Resolve(role)
}

func (s *AuthService) recordAuth(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID, op audit.Operation, sev audit.Severity, details map[string]any, ip, userAgent string) {
	if s.recorder == nil {
		return
	}
	resourceID := ""
	if userID != nil {
		resourceID = userID.String()
	}
	e := audit.NewEntry(tenantID, op, "auth.session", resourceID)
	e.UserID = userID
	e.Details = details
	e.IPAddress = ip
	e.UserAgent = userAgent
	e.Severity = sev
	if err := s.recorder.Record(ctx, e); err != nil {
		logger.L(ctx).Error("failed to record auth audit entry", zap.Error(err))
	}
}

func userInfo(u *identity.User) UserInfo {
	return UserInfo{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		LastLoginAt: u.LastLoginAt,
	}
}
