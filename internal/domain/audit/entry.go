// Package audit defines the tamper-resistant audit trail: an
// append-only, tenant-scoped log of every mutation plus flagged
// sensitive reads, and a distinguished stream of security violations.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/shared"
)

// Operation identifies what an audit entry records.
type Operation string

const (
	OpCreate        Operation = "CREATE"
	OpUpdate        Operation = "UPDATE"
	OpDelete        Operation = "DELETE"
	OpReadSensitive Operation = "READ_SENSITIVE"
	OpExport        Operation = "EXPORT"
	OpLoginSuccess  Operation = "LOGIN_SUCCESS"
	OpLoginFailure  Operation = "LOGIN_FAILURE"
	OpLogout        Operation = "LOGOUT"
	OpTokenRefresh  Operation = "TOKEN_REFRESH"
	// OpTenantOverride records platform staff acting on a tenant they
	// do not belong to.
	OpTenantOverride Operation = "TENANT_OVERRIDE"
)

// Severity ranks an entry for compliance triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Entry is one immutable audit record. Mutations carry before/after
// snapshots in Details; deletes carry the old row only.
type Entry struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	UserID       *uuid.UUID
	Operation    Operation
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	UserAgent    string
	Severity     Severity
	Timestamp    time.Time
}

// NewEntry creates an entry stamped with the current time.
func NewEntry(tenantID uuid.UUID, op Operation, resourceType, resourceID string) *Entry {
	return &Entry{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Operation:    op,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Severity:     SeverityLow,
		Timestamp:    time.Now(),
	}
}

// Query filters audit entries for the admin surface and exports.
type Query struct {
	TenantID     uuid.UUID
	Operation    Operation
	ResourceType string
	UserID       *uuid.UUID
	From         *time.Time
	To           *time.Time
	// DetailFilters match against JSON fields inside Details.
	DetailFilters map[string]string
	Filter        shared.Filter
}

// Recorder is the application-level audit hook. Record participates in
// the caller's transaction: a rolled-back write leaves no entry behind.
type Recorder interface {
	// Record writes a mutation entry.
	Record(ctx context.Context, e *Entry) error
	// RecordRead writes a READ_SENSITIVE entry when sensitive-read
	// auditing is enabled; otherwise it is a no-op.
	RecordRead(ctx context.Context, resourceType, resourceID, purpose string) error
	// RecordViolation writes to the violation stream. Violations are
	// recorded outside the failing operation's transaction so the
	// evidence survives the rollback.
	RecordViolation(ctx context.Context, v *Violation) error
}

// Store persists and queries the audit trail.
type Store interface {
	Recorder
	Find(ctx context.Context, q Query) (shared.Paginated[Entry], error)
	FindViolations(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) (shared.Paginated[Violation], error)
	ResolveViolation(ctx context.Context, id uuid.UUID, resolvedBy uuid.UUID) (*Violation, error)
}
