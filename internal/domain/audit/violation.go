package audit

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind classifies a suspected security or compliance breach.
type ViolationKind string

const (
	ViolationUnauthorizedAccess  ViolationKind = "UNAUTHORIZED_ACCESS"
	ViolationDataBreachSuspected ViolationKind = "DATA_BREACH_SUSPECTED"
	ViolationCompliance          ViolationKind = "COMPLIANCE_VIOLATION"
)

// Violation is one record in the security-event stream. Violations are
// created by the principal resolver on authentication anomalies, by the
// tenant middleware on tenant mismatch, or by domain code explicitly.
type Violation struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	UserID      *uuid.UUID
	Kind        ViolationKind
	Severity    Severity
	Description string
	Details     map[string]any
	IPAddress   string
	Resolved    bool
	ResolvedBy  *uuid.UUID
	ResolvedAt  *time.Time
	Timestamp   time.Time
}

// NewViolation creates a violation stamped with the current time.
func NewViolation(tenantID uuid.UUID, kind ViolationKind, severity Severity, description string) *Violation {
	return &Violation{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Kind:        kind,
		Severity:    severity,
		Description: description,
		Timestamp:   time.Now(),
	}
}

// Resolve marks the violation handled.
func (v *Violation) Resolve(by uuid.UUID) {
	now := time.Now()
	v.Resolved = true
	v.ResolvedBy = &by
	v.ResolvedAt = &now
}
