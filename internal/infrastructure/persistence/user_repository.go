package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/identity"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/models"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/tenant"
	"gorm.io/gorm"
)

// GormUserRepository implements identity.UserRepository. User lookups
// run with the tenant filter bypassed: principal resolution happens
// before any tenant scope exists, and platform staff have no tenant at
// all. Tenant membership is enforced by the callers, not here.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a user repository.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// FindByID loads a user by ID.
func (r *GormUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	var m models.UserModel
	if err := r.db.WithContext(tenant.WithBypass(ctx)).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapError(shared.KindDataStoreUnavailable, "failed to load user", err)
	}
	return m.ToDomain(), nil
}

// FindByEmail loads a user by tenant and email, for login. A Nil
// tenant ID selects platform staff, whose tenant_id column is NULL.
func (r *GormUserRepository) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) (*identity.User, error) {
	var m models.UserModel
	q := r.db.WithContext(tenant.WithBypass(ctx))
	var err error
	if tenantID == uuid.Nil {
		err = q.First(&m, "tenant_id IS NULL AND email = ?", email).Error
	} else {
		err = q.First(&m, "tenant_id = ? AND email = ?", tenantID, email).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapError(shared.KindDataStoreUnavailable, "failed to load user", err)
	}
	return m.ToDomain(), nil
}

// Save upserts a user record.
func (r *GormUserRepository) Save(ctx context.Context, u *identity.User) error {
	m := models.UserModelFromDomain(u)
	if err := r.db.WithContext(tenant.WithBypass(ctx)).Save(m).Error; err != nil {
		return shared.WrapError(shared.KindDataStoreUnavailable, "failed to save user", err)
	}
	return nil
}

var _ identity.UserRepository = (*GormUserRepository)(nil)
