package audit

import (
	"time"

	"github.com/google/uuid"
)

// Framework names a compliance reporting regime.
type Framework string

const (
	FrameworkSOX      Framework = "SOX"
	FrameworkPCI      Framework = "PCI"
	FrameworkGDPR     Framework = "GDPR"
	FrameworkHIPAA    Framework = "HIPAA"
	FrameworkBaselIII Framework = "BASEL_III"
)

// frameworkResourceFamilies maps each framework to the resource-type
// families whose audit activity it reports on.
var frameworkResourceFamilies = map[Framework][]string{
	FrameworkSOX:      {"invoice", "journal_entry", "account", "payment"},
	FrameworkPCI:      {"payment", "card", "bank_account"},
	FrameworkGDPR:     {"user", "contact", "export"},
	FrameworkHIPAA:    {"user", "document"},
	FrameworkBaselIII: {"account", "bank_account", "transaction"},
}

// ResourceFamilies returns the resource types covered by a framework,
// or nil for an unknown framework.
func (f Framework) ResourceFamilies() []string {
	return frameworkResourceFamilies[f]
}

// Valid reports whether f is a known framework.
func (f Framework) Valid() bool {
	_, ok := frameworkResourceFamilies[f]
	return ok
}

// ComplianceReport summarizes audit activity for one tenant, framework
// and period.
type ComplianceReport struct {
	Framework      Framework           `json:"framework"`
	TenantID       uuid.UUID           `json:"tenant_id"`
	PeriodStart    time.Time           `json:"period_start"`
	PeriodEnd      time.Time           `json:"period_end"`
	TotalEntries   int64               `json:"total_entries"`
	ByOperation    map[Operation]int64 `json:"by_operation"`
	ByResourceType map[string]int64    `json:"by_resource_type"`
	Violations     int64               `json:"violations"`
	BySeverity     map[Severity]int64  `json:"by_severity"`
	GeneratedAt    time.Time           `json:"generated_at"`
}
