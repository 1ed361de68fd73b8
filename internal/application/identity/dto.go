package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/identity"
)

// LoginInput contains the input for user login. TenantSlug is resolved
// by the transport layer from the request host; an empty slug selects
// the platform-staff login path.
type LoginInput struct {
	TenantSlug string
	Email      string
	Password   string
	IP         string
	UserAgent  string
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
	User                  UserInfo
	Tenant                *TenantInfo
	Navigation            NavigationResult
}

// UserInfo is the user projection returned to clients.
type UserInfo struct {
	ID          uuid.UUID
	TenantID    *uuid.UUID
	Email       string
	Role        identity.Role
	IsActive    bool
	LastLoginAt *time.Time
}

// TenantInfo is the tenant projection returned on login.
type TenantInfo struct {
	ID     uuid.UUID
	Slug   string
	Name   string
	Plan   string
	Status identity.TenantStatus
}

// RefreshTokenInput contains the input for token refresh.
type RefreshTokenInput struct {
	RefreshToken string
	IP           string
	UserAgent    string
}

// RefreshTokenResult contains the rotated token pair.
type RefreshTokenResult struct {
	AccessToken           string
	RefreshToken          string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
	TokenType             string
}

// LogoutInput contains the input for user logout.
type LogoutInput struct {
	UserID    uuid.UUID
	TenantID  *uuid.UUID
	SessionID string
	IP        string
	UserAgent string
}

// GetCurrentUserInput contains the input for the current-user
// projection.
type GetCurrentUserInput struct {
	UserID uuid.UUID
}

// CurrentUserResult contains the current user's information.
type CurrentUserResult struct {
	User       UserInfo
	Navigation NavigationResult
}
