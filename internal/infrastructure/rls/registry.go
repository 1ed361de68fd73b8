// Package rls generates and manages the PostgreSQL row-level-security
// artifacts for tenant-scoped tables: RLS policies, isolation triggers
// and audit triggers. The database layer is the last line of defense;
// even code that bypasses the DAL cannot cross tenants once these are
// installed.
package rls

import "fmt"

// Table is one tenant-scoped table under RLS management.
type Table struct {
	// Name is the SQL table name.
	Name string
	// ResourceType names the table in audit entries written by the
	// audit trigger.
	ResourceType string
	// TenantVia marks a table that reaches its tenant transitively
	// through a parent table instead of carrying tenant_id itself.
	TenantVia *Via
}

// Via describes the path from a transitively scoped table to its
// owning tenant: Column references Parent's id, and Parent carries
// tenant_id.
type Via struct {
	Column string
	Parent string
}

// State is the RLS deployment state of a table.
type State string

const (
	// StateUnenabled: row security not enabled.
	StateUnenabled State = "unenabled"
	// StateEnabled: row security and triggers installed, no policy yet.
	StateEnabled State = "enabled"
	// StatePolicied: fully enforced.
	StatePolicied State = "policied"
)

// Registry holds the managed tables. Order is deployment order.
type Registry struct {
	tables []Table
	byName map[string]Table
}

// NewRegistry creates a registry with the given tables.
func NewRegistry(tables ...Table) (*Registry, error) {
	r := &Registry{byName: make(map[string]Table, len(tables))}
	for _, t := range tables {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(t Table) error {
	if t.Name == "" {
		return fmt.Errorf("rls: table name required")
	}
	if !identPattern.MatchString(t.Name) {
		return fmt.Errorf("rls: invalid table name %q", t.Name)
	}
	if _, dup := r.byName[t.Name]; dup {
		return fmt.Errorf("rls: table %q registered twice", t.Name)
	}
	if t.ResourceType == "" {
		t.ResourceType = t.Name
	}
	if v := t.TenantVia; v != nil {
		if !identPattern.MatchString(v.Column) || !identPattern.MatchString(v.Parent) {
			return fmt.Errorf("rls: invalid tenant path on %q", t.Name)
		}
		// The parent must be registered first so its policy exists
		// before any policy composed over it.
		if _, ok := r.byName[v.Parent]; !ok {
			return fmt.Errorf("rls: table %q scoped via unregistered table %q", t.Name, v.Parent)
		}
	}
	r.tables = append(r.tables, t)
	r.byName[t.Name] = t
	return nil
}

// Tables returns the managed tables in deployment order.
func (r *Registry) Tables() []Table {
	out := make([]Table, len(r.tables))
	copy(out, r.tables)
	return out
}

// DefaultRegistry lists the tenant-scoped tables of this deployment.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Table{Name: "invoices"},
		Table{Name: "accounts"},
	)
	if err != nil {
		panic(err)
	}
	return r
}
