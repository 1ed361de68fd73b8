// Package dal is the tenant-safe data access layer. Every query it
// builds carries the tenant predicate of the ambient context, every
// write runs in a transaction with its audit entry, and cache
// invalidations are queued until the transaction commits. Repositories
// and services go through here; nothing above this layer ever writes a
// tenant_id predicate by hand.
package dal

import (
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/infrastructure/cache"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/tenant"
)

// DAL bundles the scoped database, the cache and the audit recorder.
type DAL struct {
	db       *tenant.ScopedDB
	cache    *cache.Store
	recorder audit.Recorder
}

// New creates a DAL. The cache may be nil (caching disabled); the
// recorder must not be.
func New(db *tenant.ScopedDB, cacheStore *cache.Store, recorder audit.Recorder) *DAL {
	return &DAL{db: db, cache: cacheStore, recorder: recorder}
}

// DB exposes the scoped database for repositories that need raw access
// (always still subject to the tenant callbacks).
func (d *DAL) DB() *tenant.ScopedDB {
	return d.db
}
