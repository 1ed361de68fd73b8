package rls

import (
	"fmt"
	"regexp"
	"strings"
)

// identPattern whitelists SQL identifiers; table names are interpolated
// into DDL and never parameterizable.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// tenantSettingExpr reads the session tenant inside a policy.
const tenantSettingExpr = "NULLIF(current_setting('app.current_tenant_id', true), '')::uuid"

// IsolationFunctionSQL is the shared trigger function enforcing the
// tenant_id column contract: filled from the session variable when
// missing, rejected on mismatch, immutable after insert.
const IsolationFunctionSQL = `CREATE OR REPLACE FUNCTION enforce_tenant_isolation() RETURNS trigger AS $$
DECLARE
    ctx_tenant uuid;
BEGIN
    BEGIN
        ctx_tenant := NULLIF(current_setting('app.current_tenant_id', true), '')::uuid;
    EXCEPTION WHEN others THEN
        ctx_tenant := NULL;
    END;

    IF TG_OP = 'INSERT' THEN
        IF NEW.tenant_id IS NULL THEN
            IF ctx_tenant IS NULL THEN
                RAISE EXCEPTION 'tenant_id missing and no tenant session variable set'
                    USING ERRCODE = '42501';
            END IF;
            NEW.tenant_id := ctx_tenant;
        ELSIF ctx_tenant IS NOT NULL AND NEW.tenant_id <> ctx_tenant THEN
            RAISE EXCEPTION 'tenant_id % does not match session tenant %', NEW.tenant_id, ctx_tenant
                USING ERRCODE = '42501';
        END IF;
    ELSIF TG_OP = 'UPDATE' THEN
        IF NEW.tenant_id IS DISTINCT FROM OLD.tenant_id THEN
            RAISE EXCEPTION 'tenant_id is immutable' USING ERRCODE = '42501';
        END IF;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

// AuditFunctionSQL is the shared trigger function appending row change
// records to the audit trail, attributed from the session variables.
const AuditFunctionSQL = `CREATE OR REPLACE FUNCTION record_row_audit() RETURNS trigger AS $$
DECLARE
    ctx_tenant uuid;
    ctx_user uuid;
    entry_details jsonb;
BEGIN
    ctx_tenant := NULLIF(current_setting('app.current_tenant_id', true), '')::uuid;
    ctx_user := NULLIF(current_setting('app.current_user_id', true), '')::uuid;

    IF TG_OP = 'INSERT' THEN
        entry_details := jsonb_build_object('after', to_jsonb(NEW));
    ELSIF TG_OP = 'UPDATE' THEN
        entry_details := jsonb_build_object('before', to_jsonb(OLD), 'after', to_jsonb(NEW));
    ELSE
        entry_details := jsonb_build_object('before', to_jsonb(OLD));
    END IF;

    INSERT INTO audit_log_entries
        (id, tenant_id, user_id, operation, resource_type, resource_id, details, severity, timestamp)
    VALUES
        (gen_random_uuid(),
         COALESCE(ctx_tenant, CASE WHEN TG_OP = 'DELETE' THEN OLD.tenant_id ELSE NEW.tenant_id END),
         ctx_user,
         CASE TG_OP WHEN 'INSERT' THEN 'CREATE' WHEN 'UPDATE' THEN 'UPDATE' ELSE 'DELETE' END,
         TG_ARGV[0],
         CASE WHEN TG_OP = 'DELETE' THEN OLD.id::text ELSE NEW.id::text END,
         entry_details,
         'low',
         now());

    IF TG_OP = 'DELETE' THEN
        RETURN OLD;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;`

// EnableSQL turns row security on for a table. FORCE applies the
// policy to the table owner too.
func EnableSQL(t Table) []string {
	return []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY;", t.Name),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY;", t.Name),
	}
}

// DisableSQL turns row security off.
func DisableSQL(t Table) []string {
	return []string{
		fmt.Sprintf("ALTER TABLE %s NO FORCE ROW LEVEL SECURITY;", t.Name),
		fmt.Sprintf("ALTER TABLE %s DISABLE ROW LEVEL SECURITY;", t.Name),
	}
}

// IsolationTriggerSQL installs the isolation trigger on a table.
// Transitively scoped tables have no tenant_id column to stamp; their
// parent's trigger covers the chain.
func IsolationTriggerSQL(t Table) []string {
	if t.TenantVia != nil {
		return nil
	}
	name := isolationTriggerName(t)
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", name, t.Name),
		fmt.Sprintf("CREATE TRIGGER %s BEFORE INSERT OR UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION enforce_tenant_isolation();",
			name, t.Name),
	}
}

// AuditTriggerSQL installs the audit trigger on a table.
func AuditTriggerSQL(t Table) []string {
	name := auditTriggerName(t)
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", name, t.Name),
		fmt.Sprintf("CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION record_row_audit('%s');",
			name, t.Name, t.ResourceType),
	}
}

// PolicySQL installs the tenant isolation policy. The USING clause
// filters reads, the WITH CHECK clause constrains writes to the same
// predicate. Transitively scoped tables compose the predicate through
// their parent so it still resolves to the owning tenant.
//
// current_setting runs with missing_ok so a connection without the
// session variable does not error; the NULL it yields compares to
// nothing, so such a connection sees no rows.
func PolicySQL(t Table) []string {
	name := policyName(t)
	pred := "tenant_id = " + tenantSettingExpr
	if v := t.TenantVia; v != nil {
		pred = fmt.Sprintf("%s IN (SELECT id FROM %s WHERE tenant_id = %s)",
			v.Column, v.Parent, tenantSettingExpr)
	}
	return []string{
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s;", name, t.Name),
		fmt.Sprintf("CREATE POLICY %s ON %s FOR ALL USING (%s) WITH CHECK (%s);",
			name, t.Name, pred, pred),
	}
}

// DropSQL removes the policy and triggers, then disables row security,
// reversing Setup exactly.
func DropSQL(t Table) []string {
	stmts := []string{
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s;", policyName(t), t.Name),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", auditTriggerName(t), t.Name),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s;", isolationTriggerName(t), t.Name),
	}
	return append(stmts, DisableSQL(t)...)
}

// SetupScript emits the full deployment script for the registry, also
// used for the versioned migration artifact.
func SetupScript(r *Registry) string {
	var b strings.Builder
	b.WriteString(IsolationFunctionSQL)
	b.WriteString("\n\n")
	b.WriteString(AuditFunctionSQL)
	b.WriteString("\n\n")
	for _, t := range r.Tables() {
		for _, stmt := range EnableSQL(t) {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
		for _, stmt := range IsolationTriggerSQL(t) {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
		for _, stmt := range AuditTriggerSQL(t) {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
		for _, stmt := range PolicySQL(t) {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// DropScript emits the full teardown script for the registry.
func DropScript(r *Registry) string {
	var b strings.Builder
	tables := r.Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		for _, stmt := range DropSQL(tables[i]) {
			b.WriteString(stmt)
			b.WriteString("\n")
		}
	}
	b.WriteString("DROP FUNCTION IF EXISTS record_row_audit();\n")
	b.WriteString("DROP FUNCTION IF EXISTS enforce_tenant_isolation();\n")
	return b.String()
}

func policyName(t Table) string {
	return "tenant_isolation_" + t.Name
}

func isolationTriggerName(t Table) string {
	return "trg_" + t.Name + "_tenant_isolation"
}

func auditTriggerName(t Table) string {
	return "trg_" + t.Name + "_audit"
}
