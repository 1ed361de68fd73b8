package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTenantRepository implements identity.TenantRepository. The
// tenants table is the partition directory itself and carries no
// tenant_id, so nothing here is scoped.
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a tenant repository.
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID loads a tenant by ID.
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.Tenant, error) {
	var m models.TenantRecord
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapError(shared.KindDataStoreUnavailable, "failed to load tenant", err)
	}
	return m.ToDomain(), nil
}

// FindBySlug loads a tenant by its host slug.
func (r *GormTenantRepository) FindBySlug(ctx context.Context, slug string) (*identity.Tenant, error) {
	var m models.TenantRecord
	if err := r.db.WithContext(ctx).First(&m, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapError(shared.KindDataStoreUnavailable, "failed to load tenant", err)
	}
	return m.ToDomain(), nil
}

// Save upserts a tenant record.
func (r *GormTenantRepository) Save(ctx context.Context, t *identity.Tenant) error {
	m := models.TenantRecordFromDomain(t)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return shared.WrapError(shared.KindDataStoreUnavailable, "failed to save tenant", err)
	}
	return nil
}

var _ identity.TenantRepository = (*GormTenantRepository)(nil)
