package rls

import (
	"context"
	"fmt"

	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TableStatus reports where one table sits in the deployment state
// machine.
type TableStatus struct {
	Table            string
	State            State
	RowSecurity      bool
	IsolationTrigger bool
	AuditTrigger     bool
	Policy           bool
}

// Enforcer applies and inspects the RLS artifacts on a live database.
type Enforcer struct {
	db       *gorm.DB
	registry *Registry
}

// NewEnforcer creates an enforcer over the registry's tables.
func NewEnforcer(db *gorm.DB, registry *Registry) *Enforcer {
	return &Enforcer{db: db, registry: registry}
}

// Setup installs functions, row security, triggers and policies for
// every registered table. Per table the order is fixed: enable, then
// triggers, then policy, so at no point does a policy exist without the
// isolation trigger behind it.
func (e *Enforcer) Setup(ctx context.Context) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(IsolationFunctionSQL).Error; err != nil {
			return fmt.Errorf("failed to create isolation function: %w", err)
		}
		if err := tx.Exec(AuditFunctionSQL).Error; err != nil {
			return fmt.Errorf("failed to create audit function: %w", err)
		}
		for _, t := range e.registry.Tables() {
			stmts := EnableSQL(t)
			stmts = append(stmts, IsolationTriggerSQL(t)...)
			stmts = append(stmts, AuditTriggerSQL(t)...)
			stmts = append(stmts, PolicySQL(t)...)
			for _, stmt := range stmts {
				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("failed to set up %s: %w", t.Name, err)
				}
			}
			logger.L(ctx).Info("row-level security installed", zap.String("table", t.Name))
		}
		return nil
	})
}

// Drop removes the artifacts in reverse order.
func (e *Enforcer) Drop(ctx context.Context) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tables := e.registry.Tables()
		for i := len(tables) - 1; i >= 0; i-- {
			for _, stmt := range DropSQL(tables[i]) {
				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("failed to drop RLS from %s: %w", tables[i].Name, err)
				}
			}
			logger.L(ctx).Info("row-level security removed", zap.String("table", tables[i].Name))
		}
		if err := tx.Exec("DROP FUNCTION IF EXISTS record_row_audit();").Error; err != nil {
			return err
		}
		return tx.Exec("DROP FUNCTION IF EXISTS enforce_tenant_isolation();").Error
	})
}

// Status inspects the catalog and classifies each table.
func (e *Enforcer) Status(ctx context.Context) ([]TableStatus, error) {
	db := e.db.WithContext(ctx)
	out := make([]TableStatus, 0, len(e.registry.Tables()))

	for _, t := range e.registry.Tables() {
		var st TableStatus
		st.Table = t.Name

		row := db.Raw(
			"SELECT COALESCE(relrowsecurity, false) FROM pg_class WHERE relname = ? AND relkind = 'r'",
			t.Name,
		).Row()
		if err := row.Scan(&st.RowSecurity); err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", t.Name, err)
		}

		var trigCount int64
		if t.TenantVia != nil {
			// No tenant_id column to stamp; the parent's trigger
			// covers the chain.
			st.IsolationTrigger = true
		} else {
			if err := db.Raw(
				"SELECT count(*) FROM pg_trigger WHERE tgname = ? AND tgrelid = ?::regclass",
				isolationTriggerName(t), t.Name,
			).Scan(&trigCount).Error; err != nil {
				return nil, fmt.Errorf("failed to inspect triggers on %s: %w", t.Name, err)
			}
			st.IsolationTrigger = trigCount > 0
		}

		if err := db.Raw(
			"SELECT count(*) FROM pg_trigger WHERE tgname = ? AND tgrelid = ?::regclass",
			auditTriggerName(t), t.Name,
		).Scan(&trigCount).Error; err != nil {
			return nil, fmt.Errorf("failed to inspect triggers on %s: %w", t.Name, err)
		}
		st.AuditTrigger = trigCount > 0

		var policyCount int64
		if err := db.Raw(
			"SELECT count(*) FROM pg_policies WHERE tablename = ? AND policyname = ?",
			t.Name, policyName(t),
		).Scan(&policyCount).Error; err != nil {
			return nil, fmt.Errorf("failed to inspect policies on %s: %w", t.Name, err)
		}
		st.Policy = policyCount > 0

		st.State = classify(st)
		out = append(out, st)
	}
	return out, nil
}

// classify maps raw catalog facts onto the state machine. A policy
// without its isolation trigger is a broken deployment and reports as
// unenabled so operators re-run setup.
func classify(st TableStatus) State {
	switch {
	case st.Policy && st.IsolationTrigger && st.RowSecurity:
		return StatePolicied
	case st.RowSecurity && st.IsolationTrigger:
		return StateEnabled
	case st.Policy && !st.IsolationTrigger:
		return StateUnenabled
	case st.RowSecurity:
		return StateEnabled
	default:
		return StateUnenabled
	}
}
