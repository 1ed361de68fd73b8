package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/shared"
)

// TenantStatus represents the lifecycle status of a tenant.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusExpired   TenantStatus = "expired"
)

// Tenant is an isolated customer organization, the unit of data
// partitioning. Tenants are soft-deactivated, never hard-deleted while
// they own data.
type Tenant struct {
	shared.BaseEntity
	Slug       string
	Name       string
	Plan       string
	MaxUsers   int
	MaxStorage int64
	FeatureSet []string
	Status     TenantStatus
}

// NewTenant creates an active tenant.
func NewTenant(slug, name, plan string) *Tenant {
	return &Tenant{
		BaseEntity: shared.NewBaseEntity(),
		Slug:       slug,
		Name:       name,
		Plan:       plan,
		Status:     TenantStatusActive,
	}
}

// CanServe reports whether requests for this tenant may be processed.
func (t *Tenant) CanServe() bool {
	return t.Status == TenantStatusActive || t.Status == TenantStatusTrial
}

// Suspend freezes the tenant. Suspended tenants reject all
// authenticated requests with TenantSuspended.
func (t *Tenant) Suspend() {
	t.Status = TenantStatusSuspended
	t.UpdatedAt = time.Now()
}

// Activate restores a suspended or trial tenant.
func (t *Tenant) Activate() {
	t.Status = TenantStatusActive
	t.UpdatedAt = time.Now()
}

// TenantRepository provides access to tenant records. Tenants are not
// themselves tenant-scoped; lookups run unscoped.
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	Save(ctx context.Context, t *Tenant) error
}
