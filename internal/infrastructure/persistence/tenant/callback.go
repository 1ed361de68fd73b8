package tenant

import (
	"context"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/tenantctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type systemKey struct{}

// WithBypass marks ctx as exempt from tenant filtering and stamping.
// Reserved for platform-level access that legitimately spans tenants:
// the tenant directory, principal resolution, the audit trail itself.
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemKey{}, true)
}

func isSystemContext(ctx context.Context) bool {
	v, _ := ctx.Value(systemKey{}).(bool)
	return v
}

// RegisterCallbacks installs the tenant predicate and stamping hooks on
// db. Idempotent: re-registering replaces the previous hooks.
func RegisterCallbacks(db *gorm.DB) {
	_ = db.Callback().Query().Before("gorm:query").Register("tenant:before_query", addTenantFilter)
	_ = db.Callback().Update().Before("gorm:update").Register("tenant:before_update", addTenantFilter)
	_ = db.Callback().Delete().Before("gorm:delete").Register("tenant:before_delete", addTenantFilter)
	_ = db.Callback().Row().Before("gorm:row").Register("tenant:before_row", addTenantFilter)
	_ = db.Callback().Create().Before("gorm:create").Register("tenant:before_create", stampTenant)
}

// RemoveCallbacks removes the tenant hooks. Test use only.
func RemoveCallbacks(db *gorm.DB) {
	_ = db.Callback().Query().Remove("tenant:before_query")
	_ = db.Callback().Update().Remove("tenant:before_update")
	_ = db.Callback().Delete().Remove("tenant:before_delete")
	_ = db.Callback().Row().Remove("tenant:before_row")
	_ = db.Callback().Create().Remove("tenant:before_create")
}

// tenantField returns the tenant_id field of the statement's model, or
// nil when the model is not tenant-scoped (or no model is known, as in
// raw Row queries, where the caller is responsible for scoping).
func tenantField(db *gorm.DB) *schema.Field {
	if db.Statement.Schema == nil {
		return nil
	}
	return db.Statement.Schema.LookUpField("tenant_id")
}

// addTenantFilter injects WHERE tenant_id = ? into queries, updates and
// deletes against tenant-scoped models. No installed tenant context
// fails the statement before SQL is built.
func addTenantFilter(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil || isSystemContext(ctx) {
		return
	}
	field := tenantField(db)
	if field == nil {
		return
	}
	if hasTenantCondition(db) {
		return
	}

	tc, err := tenantctx.Current(ctx)
	if err != nil {
		_ = db.AddError(ErrTenantRequired)
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: clause.CurrentTable, Name: field.DBName},
				Value:  tc.TenantID,
			},
		},
	})
}

// stampTenant fills tenant_id and created_by_id on inserts of
// tenant-scoped models from the installed context. A row arriving with
// a different tenant already set is rejected, not silently rewritten.
func stampTenant(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil || isSystemContext(ctx) {
		return
	}
	field := tenantField(db)
	if field == nil {
		return
	}

	tc, err := tenantctx.Current(ctx)
	if err != nil {
		_ = db.AddError(ErrTenantRequired)
		return
	}

	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := stampOne(db, field, rv.Index(i), tc.TenantID); err != nil {
				_ = db.AddError(err)
				return
			}
		}
	default:
		if err := stampOne(db, field, rv, tc.TenantID); err != nil {
			_ = db.AddError(err)
		}
	}
}

func stampOne(db *gorm.DB, field *schema.Field, rv reflect.Value, tenantID uuid.UUID) error {
	current, zero := field.ValueOf(db.Statement.Context, rv)
	if !zero {
		if existing, ok := current.(uuid.UUID); ok && existing != uuid.Nil && existing != tenantID {
			return shared.ErrTenantMismatch
		}
	}
	if err := field.Set(db.Statement.Context, rv, tenantID); err != nil {
		return err
	}
	if creator := db.Statement.Schema.LookUpField("created_by_id"); creator != nil {
		if _, zero := creator.ValueOf(db.Statement.Context, rv); zero {
			if tc, err := tenantctx.Current(db.Statement.Context); err == nil && tc.UserID != uuid.Nil {
				_ = creator.Set(db.Statement.Context, rv, tc.UserID)
			}
		}
	}
	return nil
}

// hasTenantCondition reports whether a tenant_id predicate is already
// present, so repository-level scopes are not duplicated.
func hasTenantCondition(db *gorm.DB) bool {
	if db.Statement.Unscoped {
		return true
	}
	if whereClause, ok := db.Statement.Clauses["WHERE"]; ok {
		if where, ok := whereClause.Expression.(clause.Where); ok {
			for _, expr := range where.Exprs {
				if exprContainsTenant(expr) {
					return true
				}
			}
		}
	}
	if sql := db.Statement.SQL.String(); sql != "" && strings.Contains(sql, "tenant_id") {
		return true
	}
	return false
}

func exprContainsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == "tenant_id"
		}
	case clause.IN:
		if col, ok := e.Column.(clause.Column); ok {
			return col.Name == "tenant_id"
		}
	case clause.Expr:
		return strings.Contains(e.SQL, "tenant_id")
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if exprContainsTenant(cond) {
				return true
			}
		}
	case clause.OrConditions:
		for _, cond := range e.Exprs {
			if exprContainsTenant(cond) {
				return true
			}
		}
	}
	return false
}
