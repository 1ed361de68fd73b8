package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/models"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/tenant"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/txctx"
	"github.com/saasbooks/backend/internal/tenantctx"
	"gorm.io/gorm"
)

// AuditStore is the GORM implementation of audit.Store. Entries join
// the caller's transaction when one is attached to the context, so a
// rolled-back write leaves no audit entry behind. Violations always use
// a fresh connection: the evidence must survive the rollback that
// triggered it.
type AuditStore struct {
	db             *gorm.DB
	sensitiveReads bool
}

// NewAuditStore creates the audit store.
func NewAuditStore(db *gorm.DB, sensitiveReads bool) *AuditStore {
	return &AuditStore{db: db, sensitiveReads: sensitiveReads}
}

// conn returns the transaction from ctx, or a bypass-scoped fresh
// connection. Audit tables carry tenant_id as data, not as an isolation
// predicate; the entry's own TenantID is authoritative.
func (s *AuditStore) conn(ctx context.Context) *gorm.DB {
	return txctx.TxFrom(ctx, s.db.WithContext(tenant.WithBypass(ctx)))
}

// Record writes one audit entry.
func (s *AuditStore) Record(ctx context.Context, e *audit.Entry) error {
	var m models.AuditLogEntryModel
	if err := m.FromDomain(e); err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if err := s.conn(ctx).Create(&m).Error; err != nil {
		return shared.WrapError(shared.KindDataStoreUnavailable, "failed to record audit entry", err)
	}
	return nil
}

// RecordRead writes a READ_SENSITIVE entry when sensitive-read auditing
// is enabled; otherwise it is a no-op.
func (s *AuditStore) RecordRead(ctx context.Context, resourceType, resourceID, purpose string) error {
	if !s.sensitiveReads {
		return nil
	}
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		return err
	}
	e := audit.NewEntry(tc.TenantID, audit.OpReadSensitive, resourceType, resourceID)
	if tc.UserID != uuid.Nil {
		uid := tc.UserID
		e.UserID = &uid
	}
	e.Severity = audit.SeverityMedium
	e.Details = map[string]any{"purpose": purpose}
	return s.Record(ctx, e)
}

// RecordViolation writes to the security-event stream, never inside the
// caller's transaction.
func (s *AuditStore) RecordViolation(ctx context.Context, v *audit.Violation) error {
	var m models.AuditViolationModel
	if err := m.FromDomain(v); err != nil {
		return fmt.Errorf("failed to encode violation: %w", err)
	}
	if err := s.db.WithContext(tenant.WithBypass(ctx)).Create(&m).Error; err != nil {
		return shared.WrapError(shared.KindDataStoreUnavailable, "failed to record violation", err)
	}
	return nil
}

// Find returns audit entries matching the query, newest first.
func (s *AuditStore) Find(ctx context.Context, q audit.Query) (shared.Paginated[audit.Entry], error) {
	db := s.db.WithContext(tenant.WithBypass(ctx)).Model(&models.AuditLogEntryModel{})

	if q.TenantID != uuid.Nil {
		db = db.Where("tenant_id = ?", q.TenantID)
	}
	if q.Operation != "" {
		db = db.Where("operation = ?", string(q.Operation))
	}
	if q.ResourceType != "" {
		db = db.Where("resource_type = ?", q.ResourceType)
	}
	if q.UserID != nil {
		db = db.Where("user_id = ?", *q.UserID)
	}
	if q.From != nil {
		db = db.Where("timestamp >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("timestamp < ?", *q.To)
	}
	for field, value := range q.DetailFilters {
		db = db.Where("details ->> ? = ?", field, value)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return shared.Paginated[audit.Entry]{}, shared.WrapError(shared.KindDataStoreUnavailable, "failed to count audit entries", err)
	}

	var rows []models.AuditLogEntryModel
	if err := db.Order("timestamp DESC").
		Offset(q.Filter.Offset()).
		Limit(q.Filter.Limit()).
		Find(&rows).Error; err != nil {
		return shared.Paginated[audit.Entry]{}, shared.WrapError(shared.KindDataStoreUnavailable, "failed to query audit entries", err)
	}

	entries := make([]audit.Entry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return shared.NewPaginated(entries, total, q.Filter.Page, q.Filter.PageSize), nil
}

// FindViolations returns security events for a tenant, newest first.
// A nil tenant ID returns the platform-wide stream.
func (s *AuditStore) FindViolations(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[audit.Violation], error) {
	db := s.db.WithContext(tenant.WithBypass(ctx)).Model(&models.AuditViolationModel{})
	if tenantID != uuid.Nil {
		db = db.Where("tenant_id = ?", tenantID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return shared.Paginated[audit.Violation]{}, shared.WrapError(shared.KindDataStoreUnavailable, "failed to count violations", err)
	}

	var rows []models.AuditViolationModel
	if err := db.Order("timestamp DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&rows).Error; err != nil {
		return shared.Paginated[audit.Violation]{}, shared.WrapError(shared.KindDataStoreUnavailable, "failed to query violations", err)
	}

	violations := make([]audit.Violation, len(rows))
	for i := range rows {
		violations[i] = *rows[i].ToDomain()
	}
	return shared.NewPaginated(violations, total, filter.Page, filter.PageSize), nil
}

// ResolveViolation marks a violation handled and returns the updated
// record. The lookup is scoped to the caller's tenant, so a violation
// belonging to another tenant reads as missing; platform staff resolve
// across tenants.
func (s *AuditStore) ResolveViolation(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID) (*audit.Violation, error) {
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		return nil, err
	}
	scoped := func() *gorm.DB {
		db := s.db.WithContext(tenant.WithBypass(ctx)).Where("id = ?", id)
		if !tc.PlatformStaff {
			db = db.Where("tenant_id = ?", tc.TenantID)
		}
		return db
	}

	var m models.AuditViolationModel
	if err := scoped().First(&m).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, shared.ErrNotFound
		}
		return nil, shared.WrapError(shared.KindDataStoreUnavailable, "failed to load violation", err)
	}

	now := time.Now()
	updates := map[string]any{
		"resolved":    true,
		"resolved_by": resolvedBy,
		"resolved_at": now,
	}
	if err := scoped().Model(&models.AuditViolationModel{}).Updates(updates).Error; err != nil {
		return nil, shared.WrapError(shared.KindDataStoreUnavailable, "failed to resolve violation", err)
	}

	m.Resolved = true
	m.ResolvedBy = &resolvedBy
	m.ResolvedAt = &now
	return m.ToDomain(), nil
}

var _ audit.Store = (*AuditStore)(nil)
