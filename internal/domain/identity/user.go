package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
)

// Role is the authorization role carried on a user. The role string is
// the single authoritative permission model; group membership is
// derived from it (see navigation resolution).
type Role string

const (
	RolePlatformAdmin Role = "platform_admin"
	RoleTenantOwner   Role = "tenant_owner"
	RoleAccountant    Role = "accountant"
	RoleCFO           Role = "cfo"
	RoleTenantMember  Role = "tenant_member"
)

// IsPlatformStaff reports whether the role belongs to platform
// operations staff rather than a tenant.
func (r Role) IsPlatformStaff() bool {
	return r == RolePlatformAdmin
}

const maxFailedAttempts = 5

// User belongs to exactly one tenant; platform staff carry a nil
// TenantID.
type User struct {
	shared.BaseEntity
	TenantID       *uuid.UUID
	Email          string
	PasswordHash   string
	Role           Role
	IsActive       bool
	LastLoginAt    *time.Time
	LastLoginIP    string
	FailedAttempts int
	LockedUntil    *time.Time
}

// NewUser creates an active tenant user with a hashed password.
func NewUser(tenantID uuid.UUID, email, password string, role Role) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &User{
		BaseEntity:   shared.NewBaseEntity(),
		TenantID:     &tenantID,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}, nil
}

// CheckPassword verifies a candidate password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// IsLocked reports whether the account is temporarily locked out.
func (u *User) IsLocked() bool {
	return u.LockedUntil != nil && u.LockedUntil.After(time.Now())
}

// RecordLoginFailure increments the failure counter and locks the
// account for 15 minutes once the threshold is reached.
func (u *User) RecordLoginFailure() {
	u.FailedAttempts++
	if u.FailedAttempts >= maxFailedAttempts {
		until := time.Now().Add(15 * time.Minute)
		u.LockedUntil = &until
	}
}

// RecordLoginSuccess resets lockout state and stamps the login.
func (u *User) RecordLoginSuccess(ip string) {
	now := time.Now()
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	u.LastLoginIP = ip
}

// UserRepository provides access to user records. Lookups by ID run
// unscoped because the principal resolver must find platform staff;
// tenant membership is checked by the caller.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*User, error)
	Save(ctx context.Context, u *User) error
}
