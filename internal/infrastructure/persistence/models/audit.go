package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
)

// AuditLogEntryModel is the persistence model for one audit entry.
// Rows are append-only: no update or delete path exists in the
// repository, and the DDL revokes UPDATE/DELETE from the application
// role. The table is partitioned monthly by timestamp.
type AuditLogEntryModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_tenant_time"`
	UserID       *uuid.UUID `gorm:"type:uuid;index"`
	Operation    string     `gorm:"type:varchar(30);not null;index"`
	ResourceType string     `gorm:"type:varchar(100);not null;index"`
	ResourceID   string     `gorm:"type:varchar(100);not null"`
	Details      string     `gorm:"type:jsonb;default:'{}'"`
	IPAddress    string     `gorm:"type:varchar(45)"`
	UserAgent    string     `gorm:"type:varchar(500)"`
	Severity     string     `gorm:"type:varchar(20);not null;default:'low'"`
	Timestamp    time.Time  `gorm:"not null;index:idx_audit_tenant_time"`
}

// TableName returns the table name for GORM.
func (AuditLogEntryModel) TableName() string {
	return "audit_log_entries"
}

// ToDomain converts the persistence model to a domain Entry.
func (m *AuditLogEntryModel) ToDomain() *audit.Entry {
	e := &audit.Entry{
		ID:           m.ID,
		TenantID:     m.TenantID,
		UserID:       m.UserID,
		Operation:    audit.Operation(m.Operation),
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		IPAddress:    m.IPAddress,
		UserAgent:    m.UserAgent,
		Severity:     audit.Severity(m.Severity),
		Timestamp:    m.Timestamp,
	}
	if m.Details != "" {
		_ = json.Unmarshal([]byte(m.Details), &e.Details)
	}
	return e
}

// FromDomain populates the persistence model from a domain Entry.
func (m *AuditLogEntryModel) FromDomain(e *audit.Entry) error {
	details := "{}"
	if e.Details != nil {
		raw, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = string(raw)
	}
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.UserID = e.UserID
	m.Operation = string(e.Operation)
	m.ResourceType = e.ResourceType
	m.ResourceID = e.ResourceID
	m.Details = details
	m.IPAddress = e.IPAddress
	m.UserAgent = e.UserAgent
	m.Severity = string(e.Severity)
	m.Timestamp = e.Timestamp
	return nil
}

// AuditViolationModel is the persistence model for the security-event
// stream. Unlike audit entries, violations are written outside the
// failing operation's transaction so the evidence survives a rollback.
type AuditViolationModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	UserID      *uuid.UUID `gorm:"type:uuid;index"`
	Kind        string     `gorm:"type:varchar(40);not null;index"`
	Severity    string     `gorm:"type:varchar(20);not null;default:'medium'"`
	Description string     `gorm:"type:text;not null"`
	Details     string     `gorm:"type:jsonb;default:'{}'"`
	IPAddress   string     `gorm:"type:varchar(45)"`
	Resolved    bool       `gorm:"not null;default:false;index"`
	ResolvedBy  *uuid.UUID `gorm:"type:uuid"`
	ResolvedAt  *time.Time
	Timestamp   time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM.
func (AuditViolationModel) TableName() string {
	return "audit_violations"
}

// ToDomain converts the persistence model to a domain Violation.
func (m *AuditViolationModel) ToDomain() *audit.Violation {
	v := &audit.Violation{
		ID:          m.ID,
		TenantID:    m.TenantID,
		UserID:      m.UserID,
		Kind:        audit.ViolationKind(m.Kind),
		Severity:    audit.Severity(m.Severity),
		Description: m.Description,
		IPAddress:   m.IPAddress,
		Resolved:    m.Resolved,
		ResolvedBy:  m.ResolvedBy,
		ResolvedAt:  m.ResolvedAt,
		Timestamp:   m.Timestamp,
	}
	if m.Details != "" {
		_ = json.Unmarshal([]byte(m.Details), &v.Details)
	}
	return v
}

// FromDomain populates the persistence model from a domain Violation.
func (m *AuditViolationModel) FromDomain(v *audit.Violation) error {
	details := "{}"
	if v.Details != nil {
		raw, err := json.Marshal(v.Details)
		if err != nil {
			return err
		}
		details = string(raw)
	}
	m.ID = v.ID
	m.TenantID = v.TenantID
	m.UserID = v.UserID
	m.Kind = string(v.Kind)
	m.Severity = string(v.Severity)
	m.Description = v.Description
	m.Details = details
	m.IPAddress = v.IPAddress
	m.Resolved = v.Resolved
	m.ResolvedBy = v.ResolvedBy
	m.ResolvedAt = v.ResolvedAt
	m.Timestamp = v.Timestamp
	return nil
}
