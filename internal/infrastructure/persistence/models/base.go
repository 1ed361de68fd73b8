// Package models holds the GORM persistence models and their
// conversions to and from domain entities. Models never leave the
// persistence layer.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/shared"
)

// BaseModel provides the common persistence fields.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// ToDomain converts BaseModel to the domain BaseEntity.
func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomainBaseEntity populates BaseModel from the domain BaseEntity.
func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	m.ID = e.ID
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// TenantModel is the base for every tenant-scoped table. The five
// administrative columns here are what the isolation callbacks, the RLS
// policies and the audit triggers key on; tenant_id is immutable after
// insert.
type TenantModel struct {
	BaseModel
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedByID *uuid.UUID `gorm:"type:uuid;index"`
	UpdatedByID *uuid.UUID `gorm:"type:uuid"`
}

// GetTenantID returns the owning tenant.
func (m *TenantModel) GetTenantID() uuid.UUID { return m.TenantID }

// ToDomainTenantEntity converts to the domain TenantEntity.
func (m *TenantModel) ToDomainTenantEntity() shared.TenantEntity {
	return shared.TenantEntity{
		BaseEntity:  m.ToDomain(),
		TenantID:    m.TenantID,
		CreatedByID: m.CreatedByID,
		UpdatedByID: m.UpdatedByID,
	}
}

// FromDomainTenantEntity populates from the domain TenantEntity.
func (m *TenantModel) FromDomainTenantEntity(e shared.TenantEntity) {
	m.FromDomainBaseEntity(e.BaseEntity)
	m.TenantID = e.TenantID
	m.CreatedByID = e.CreatedByID
	m.UpdatedByID = e.UpdatedByID
}
