package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/identity"
)

// TenantRecord is the persistence model for the Tenant entity. The
// tenants table is the partition directory and is itself unscoped.
type TenantRecord struct {
	BaseModel
	Slug       string                `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name       string                `gorm:"type:varchar(200);not null"`
	Plan       string                `gorm:"type:varchar(50);not null;default:'standard'"`
	MaxUsers   int                   `gorm:"not null;default:5"`
	MaxStorage int64                 `gorm:"not null;default:0"`
	FeatureSet string                `gorm:"type:text"` // comma-separated
	Status     identity.TenantStatus `gorm:"type:varchar(20);not null;default:'active';index"`
}

// TableName returns the table name for GORM.
func (TenantRecord) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant entity.
func (m *TenantRecord) ToDomain() *identity.Tenant {
	var features []string
	if m.FeatureSet != "" {
		features = strings.Split(m.FeatureSet, ",")
	}
	return &identity.Tenant{
		BaseEntity: m.BaseModel.ToDomain(),
		Slug:       m.Slug,
		Name:       m.Name,
		Plan:       m.Plan,
		MaxUsers:   m.MaxUsers,
		MaxStorage: m.MaxStorage,
		FeatureSet: features,
		Status:     m.Status,
	}
}

// FromDomain populates the persistence model from a domain Tenant.
func (m *TenantRecord) FromDomain(t *identity.Tenant) {
	m.FromDomainBaseEntity(t.BaseEntity)
	m.Slug = t.Slug
	m.Name = t.Name
	m.Plan = t.Plan
	m.MaxUsers = t.MaxUsers
	m.MaxStorage = t.MaxStorage
	m.FeatureSet = strings.Join(t.FeatureSet, ",")
	m.Status = t.Status
}

// TenantRecordFromDomain creates a persistence model from a domain Tenant.
func TenantRecordFromDomain(t *identity.Tenant) *TenantRecord {
	m := &TenantRecord{}
	m.FromDomain(t)
	return m
}

// UserModel is the persistence model for the User entity. TenantID is
// nullable: platform staff have no home tenant, so the users table is
// deliberately outside row-level isolation and the principal resolver
// reads it unscoped.
type UserModel struct {
	BaseModel
	TenantID       *uuid.UUID    `gorm:"type:uuid;index:idx_users_tenant_email,unique"`
	Email          string        `gorm:"type:varchar(200);not null;index:idx_users_tenant_email,unique"`
	PasswordHash   string        `gorm:"type:varchar(255);not null"`
	Role           identity.Role `gorm:"type:varchar(50);not null;default:'tenant_member'"`
	IsActive       bool          `gorm:"not null;default:true"`
	LastLoginAt    *time.Time
	LastLoginIP    string `gorm:"type:varchar(45)"`
	FailedAttempts int    `gorm:"not null;default:0"`
	LockedUntil    *time.Time
}

// TableName returns the table name for GORM.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain User entity.
func (m *UserModel) ToDomain() *identity.User {
	return &identity.User{
		BaseEntity:     m.BaseModel.ToDomain(),
		TenantID:       m.TenantID,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		Role:           m.Role,
		IsActive:       m.IsActive,
		LastLoginAt:    m.LastLoginAt,
		LastLoginIP:    m.LastLoginIP,
		FailedAttempts: m.FailedAttempts,
		LockedUntil:    m.LockedUntil,
	}
}

// FromDomain populates the persistence model from a domain User.
func (m *UserModel) FromDomain(u *identity.User) {
	m.FromDomainBaseEntity(u.BaseEntity)
	m.TenantID = u.TenantID
	m.Email = u.Email
	m.PasswordHash = u.PasswordHash
	m.Role = u.Role
	m.IsActive = u.IsActive
	m.LastLoginAt = u.LastLoginAt
	m.LastLoginIP = u.LastLoginIP
	m.FailedAttempts = u.FailedAttempts
	m.LockedUntil = u.LockedUntil
}

// UserModelFromDomain creates a persistence model from a domain User.
func UserModelFromDomain(u *identity.User) *UserModel {
	m := &UserModel{}
	m.FromDomain(u)
	return m
}
