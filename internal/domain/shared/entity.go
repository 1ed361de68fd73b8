package shared

import (
	"time"

	"github.com/google/uuid"
)

// Entity is the base interface for all domain entities.
type Entity interface {
	GetID() uuid.UUID
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

// BaseEntity provides common fields for all entities.
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetID returns the entity ID.
func (e *BaseEntity) GetID() uuid.UUID { return e.ID }

// GetCreatedAt returns the creation timestamp.
func (e *BaseEntity) GetCreatedAt() time.Time { return e.CreatedAt }

// GetUpdatedAt returns the last update timestamp.
func (e *BaseEntity) GetUpdatedAt() time.Time { return e.UpdatedAt }

// NewBaseEntity creates a new base entity with a generated ID.
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
}

// TenantEntity extends BaseEntity with the five administrative columns
// every tenant-scoped table carries. TenantID is never nil on persisted
// rows and is immutable after insert.
type TenantEntity struct {
	BaseEntity
	TenantID    uuid.UUID
	CreatedByID *uuid.UUID
	UpdatedByID *uuid.UUID
}

// GetTenantID returns the owning tenant.
func (e *TenantEntity) GetTenantID() uuid.UUID { return e.TenantID }

// TenantScoped is implemented by every entity subject to row-level
// tenant isolation.
type TenantScoped interface {
	Entity
	GetTenantID() uuid.UUID
}
