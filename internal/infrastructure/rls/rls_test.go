package rls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RejectsInvalidNames(t *testing.T) {
	_, err := NewRegistry(Table{Name: "invoices; DROP TABLE users"})
	assert.Error(t, err)

	_, err = NewRegistry(Table{Name: ""})
	assert.Error(t, err)

	_, err = NewRegistry(Table{Name: "invoices"}, Table{Name: "invoices"})
	assert.Error(t, err)
}

func TestRegistry_DefaultsResourceType(t *testing.T) {
	r, err := NewRegistry(Table{Name: "invoices"})
	require.NoError(t, err)
	assert.Equal(t, "invoices", r.Tables()[0].ResourceType)
}

func TestPolicySQL_FiltersOnSessionTenant(t *testing.T) {
	stmts := PolicySQL(Table{Name: "invoices"})
	require.Len(t, stmts, 2)

	create := stmts[1]
	assert.Contains(t, create, "CREATE POLICY tenant_isolation_invoices ON invoices")
	assert.Contains(t, create, "USING (tenant_id = NULLIF(current_setting('app.current_tenant_id', true), '')::uuid)")
	assert.Contains(t, create, "WITH CHECK (tenant_id = NULLIF(current_setting('app.current_tenant_id', true), '')::uuid)")
}

func TestPolicySQL_UnsetSessionYieldsNoRows(t *testing.T) {
	// missing_ok plus NULLIF: a connection without the variable gets
	// NULL, which compares to nothing, instead of a settings error.
	create := PolicySQL(Table{Name: "invoices"})[1]
	assert.Contains(t, create, "current_setting('app.current_tenant_id', true)")
	assert.NotContains(t, create, "current_setting('app.current_tenant_id')::uuid")
}

func TestPolicySQL_TransitiveTenantPath(t *testing.T) {
	stmts := PolicySQL(Table{
		Name:      "invoice_lines",
		TenantVia: &Via{Column: "invoice_id", Parent: "invoices"},
	})
	require.Len(t, stmts, 2)

	create := stmts[1]
	assert.Contains(t, create, "USING (invoice_id IN (SELECT id FROM invoices WHERE tenant_id = NULLIF(current_setting('app.current_tenant_id', true), '')::uuid))")
	assert.Contains(t, create, "WITH CHECK (invoice_id IN (SELECT id FROM invoices")
}

func TestRegistry_TransitiveTableNeedsRegisteredParent(t *testing.T) {
	_, err := NewRegistry(Table{
		Name:      "invoice_lines",
		TenantVia: &Via{Column: "invoice_id", Parent: "invoices"},
	})
	assert.Error(t, err, "parent must be registered before its dependents")

	r, err := NewRegistry(
		Table{Name: "invoices"},
		Table{Name: "invoice_lines", TenantVia: &Via{Column: "invoice_id", Parent: "invoices"}},
	)
	require.NoError(t, err)

	// No tenant_id column to stamp, so no isolation trigger.
	assert.Empty(t, IsolationTriggerSQL(r.Tables()[1]))
}

func TestIsolationFunctionSQL_EnforcesColumnContract(t *testing.T) {
	assert.Contains(t, IsolationFunctionSQL, "NEW.tenant_id := ctx_tenant", "missing tenant_id must be filled from the session")
	assert.Contains(t, IsolationFunctionSQL, "does not match session tenant", "mismatched tenant_id must be rejected")
	assert.Contains(t, IsolationFunctionSQL, "tenant_id is immutable", "tenant_id changes must be rejected")
}

func TestIsolationTriggerSQL(t *testing.T) {
	stmts := IsolationTriggerSQL(Table{Name: "accounts"})
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "BEFORE INSERT OR UPDATE ON accounts")
	assert.Contains(t, stmts[1], "enforce_tenant_isolation()")
}

func TestAuditTriggerSQL_CarriesResourceType(t *testing.T) {
	stmts := AuditTriggerSQL(Table{Name: "invoices", ResourceType: "ledger.invoice"})
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "AFTER INSERT OR UPDATE OR DELETE ON invoices")
	assert.Contains(t, stmts[1], "record_row_audit('ledger.invoice')")
}

func TestEnableSQL_ForcesRowSecurity(t *testing.T) {
	stmts := EnableSQL(Table{Name: "invoices"})
	assert.Equal(t, "ALTER TABLE invoices ENABLE ROW LEVEL SECURITY;", stmts[0])
	assert.Equal(t, "ALTER TABLE invoices FORCE ROW LEVEL SECURITY;", stmts[1])
}

func TestSetupScript_OrdersTriggersBeforePolicy(t *testing.T) {
	r, err := NewRegistry(Table{Name: "invoices"})
	require.NoError(t, err)

	script := SetupScript(r)
	trigger := strings.Index(script, "CREATE TRIGGER trg_invoices_tenant_isolation")
	policy := strings.Index(script, "CREATE POLICY tenant_isolation_invoices")
	require.Positive(t, trigger)
	require.Positive(t, policy)
	assert.Less(t, trigger, policy, "isolation trigger must be installed before the policy")
}

func TestDropScript_ReversesSetup(t *testing.T) {
	r, err := NewRegistry(Table{Name: "invoices"}, Table{Name: "accounts"})
	require.NoError(t, err)

	script := DropScript(r)
	accounts := strings.Index(script, "ON accounts")
	invoices := strings.Index(script, "ON invoices")
	require.Positive(t, accounts)
	require.Positive(t, invoices)
	assert.Less(t, accounts, invoices, "drop must run in reverse registration order")

	policy := strings.Index(script, "DROP POLICY IF EXISTS tenant_isolation_accounts")
	trigger := strings.Index(script, "DROP TRIGGER IF EXISTS trg_accounts_tenant_isolation")
	assert.Less(t, policy, trigger, "policy must be dropped before its isolation trigger")
}

func TestClassify_StateMachine(t *testing.T) {
	tests := []struct {
		name string
		st   TableStatus
		want State
	}{
		{"nothing installed", TableStatus{}, StateUnenabled},
		{"row security only", TableStatus{RowSecurity: true}, StateEnabled},
		{"security and triggers", TableStatus{RowSecurity: true, IsolationTrigger: true, AuditTrigger: true}, StateEnabled},
		{"fully policied", TableStatus{RowSecurity: true, IsolationTrigger: true, AuditTrigger: true, Policy: true}, StatePolicied},
		{"policy without isolation trigger is broken", TableStatus{RowSecurity: true, Policy: true}, StateUnenabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.st))
		})
	}
}
