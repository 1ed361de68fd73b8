package dal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/cache"
	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/txctx"
	"github.com/saasbooks/backend/internal/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultBulkBatch is the insert batch size for BulkInsert.
const defaultBulkBatch = 500

// tenantOwned is satisfied by every tenant-scoped persistence model.
type tenantOwned interface {
	GetTenantID() uuid.UUID
}

// WriteOptions describes the audit entry and cache effects of a write.
type WriteOptions struct {
	ResourceType string
	ResourceID   string
	Details      map[string]any
	Severity     audit.Severity

	// InvalidateKeys maps cache namespace to keys to drop after commit.
	InvalidateKeys map[string][]string
	// InvalidateNamespaces drops whole namespaces after commit.
	InvalidateNamespaces []string
}

// Insert creates one row. The model's tenant_id is stamped from the
// ambient context; a caller-supplied differing tenant is rejected with
// TenantMismatch and recorded as a violation.
func (d *DAL) Insert(ctx context.Context, model any, opts WriteOptions) error {
	if err := d.guardTenant(ctx, model, opts); err != nil {
		return err
	}
	return d.write(ctx, audit.OpCreate, opts, func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
}

// Update saves the model's current state. The tenant predicate on the
// UPDATE means a row owned by another tenant is simply not matched.
func (d *DAL) Update(ctx context.Context, model any, opts WriteOptions) error {
	if err := d.guardTenant(ctx, model, opts); err != nil {
		return err
	}
	return d.write(ctx, audit.OpUpdate, opts, func(tx *gorm.DB) error {
		res := tx.Save(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// Delete removes the row. Cross-tenant deletes match nothing and
// return NotFound.
func (d *DAL) Delete(ctx context.Context, model any, opts WriteOptions) error {
	return d.write(ctx, audit.OpDelete, opts, func(tx *gorm.DB) error {
		res := tx.Delete(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// BulkInsert creates many rows in batches inside one transaction, with
// a single audit entry covering the batch.
func (d *DAL) BulkInsert(ctx context.Context, models any, opts WriteOptions) error {
	return d.write(ctx, audit.OpCreate, opts, func(tx *gorm.DB) error {
		return tx.CreateInBatches(models, defaultBulkBatch).Error
	})
}

// write runs fn and the matching audit entry in one transaction, then
// flushes queued cache invalidations only after commit.
func (d *DAL) write(ctx context.Context, op audit.Operation, opts WriteOptions, fn func(tx *gorm.DB) error) error {
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		return shared.ErrNoContext
	}

	queue := cache.NewInvalidationQueue()
	err = d.db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := fn(tx); err != nil {
			return err
		}

		entry := audit.NewEntry(tc.TenantID, op, opts.ResourceType, opts.ResourceID)
		if tc.UserID != uuid.Nil {
			uid := tc.UserID
			entry.UserID = &uid
		}
		entry.Details = opts.Details
		if opts.Severity != "" {
			entry.Severity = opts.Severity
		}
		if err := d.recorder.Record(txctx.WithTx(ctx, tx), entry); err != nil {
			return fmt.Errorf("failed to record audit entry: %w", err)
		}

		for ns, keys := range opts.InvalidateKeys {
			queue.Add(ns, keys...)
		}
		for _, ns := range opts.InvalidateNamespaces {
			queue.AddNamespace(ns)
		}
		return nil
	})
	if err != nil {
		queue.Discard()
		return mapWriteError(err)
	}

	if d.cache != nil {
		queue.Flush(ctx, d.cache)
	}
	return nil
}

// guardTenant rejects models arriving with a foreign tenant_id already
// set, and records the attempt on the violation stream before the error
// returns.
func (d *DAL) guardTenant(ctx context.Context, model any, opts WriteOptions) error {
	owned, ok := model.(tenantOwned)
	if !ok {
		return nil
	}
	supplied := owned.GetTenantID()
	if supplied == uuid.Nil {
		return nil
	}
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		return shared.ErrNoContext
	}
	if supplied == tc.TenantID {
		return nil
	}

	v := audit.NewViolation(tc.TenantID, audit.ViolationUnauthorizedAccess, audit.SeverityHigh,
		"write supplied a tenant_id differing from the authenticated tenant")
	if tc.UserID != uuid.Nil {
		uid := tc.UserID
		v.UserID = &uid
	}
	v.Details = map[string]any{
		"supplied_tenant_id": supplied.String(),
		"resource_type":      opts.ResourceType,
		"resource_id":        opts.ResourceID,
	}
	if rerr := d.recorder.RecordViolation(ctx, v); rerr != nil {
		logger.L(ctx).Error("failed to record tenant mismatch violation", zap.Error(rerr))
	}
	return shared.ErrTenantMismatch
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if shared.KindOf(err) != shared.KindInternal {
		return err
	}
	return shared.WrapError(shared.KindDataStoreUnavailable, "write failed", err)
}
