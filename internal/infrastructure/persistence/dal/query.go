package dal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/cache"
	"github.com/saasbooks/backend/internal/infrastructure/logger"
	"github.com/saasbooks/backend/internal/tenantctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Relation declares a prefetch for WithRelated. To-one relations are
// satisfied with a join on the main query; to-many relations run as one
// batched IN follow-up each, so a query with K relations issues at most
// 1+K statements regardless of row count.
type Relation struct {
	Name   string
	ToMany bool
}

// orderColumnPattern whitelists sortable column names. Order-by input
// reaches SQL unparameterized, so it never passes through raw.
var orderColumnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type condition struct {
	query string
	args  []any
}

// Query builds tenant-scoped reads for one model type.
type Query[M any] struct {
	d         *DAL
	conds     []condition
	relations []Relation

	cacheNS  string
	cacheKey string
	cacheTTL time.Duration
}

// NewQuery starts a query for model M.
func NewQuery[M any](d *DAL) *Query[M] {
	return &Query[M]{d: d}
}

// Where adds a condition. The tenant predicate is never expressed here;
// the scoping callbacks add it.
func (q *Query[M]) Where(query string, args ...any) *Query[M] {
	q.conds = append(q.conds, condition{query: query, args: args})
	return q
}

// WithRelated declares relations to prefetch.
func (q *Query[M]) WithRelated(rels ...Relation) *Query[M] {
	q.relations = append(q.relations, rels...)
	return q
}

// WithCache serves the result through the tenant-partitioned cache.
// The key must encode everything that varies the result except the
// tenant, which the cache adds itself.
func (q *Query[M]) WithCache(ns, key string, ttl time.Duration) *Query[M] {
	q.cacheNS = ns
	q.cacheKey = key
	q.cacheTTL = ttl
	return q
}

// read runs fn inside a transaction so the SET LOCAL session variables
// cover the statements. A plain pooled connection would evaluate the
// row policies with the variables unset.
func (q *Query[M]) read(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return q.d.db.Transaction(ctx, fn)
}

func (q *Query[M]) apply(tx *gorm.DB) *gorm.DB {
	for _, c := range q.conds {
		tx = tx.Where(c.query, c.args...)
	}
	for _, rel := range q.relations {
		if rel.ToMany {
			tx = tx.Preload(rel.Name)
		} else {
			tx = tx.Joins(rel.Name)
		}
	}
	return tx
}

// Find returns the row with the given ID. A row owned by another
// tenant is indistinguishable from a missing one in the response, but
// the attempt lands on the violation stream when the row exists under
// a different owner.
func (q *Query[M]) Find(ctx context.Context, id uuid.UUID) (*M, error) {
	load := func(ctx context.Context) (*M, error) {
		var m M
		err := q.read(ctx, func(tx *gorm.DB) error {
			return q.apply(tx).First(&m, "id = ?", id).Error
		})
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				q.flagForeignRead(ctx, id)
				return nil, shared.ErrNotFound
			}
			return nil, mapReadError(err, "query failed")
		}
		return &m, nil
	}

	if q.cached() {
		return cache.GetJSON(ctx, q.d.cache, q.cacheNS, q.cacheKey, q.cacheTTL, load)
	}
	return load(ctx)
}

// flagForeignRead records an UNAUTHORIZED_ACCESS violation when a row
// the scoped query missed actually exists under another tenant. The
// caller still gets NotFound; the security stream keeps the
// difference. Runs after the read transaction so the evidence is not
// tied to it.
func (q *Query[M]) flagForeignRead(ctx context.Context, id uuid.UUID) {
	tc, err := tenantctx.Current(ctx)
	if err != nil {
		return
	}

	var owner struct{ TenantID uuid.UUID }
	var m M
	tx := q.d.db.Unscoped(ctx).Model(&m).Select("tenant_id").Where("id = ?", id).Take(&owner)
	if tx.Error != nil || owner.TenantID == uuid.Nil || owner.TenantID == tc.TenantID {
		return
	}

	table := tx.Statement.Table
	v := audit.NewViolation(tc.TenantID, audit.ViolationUnauthorizedAccess, audit.SeverityHigh,
		fmt.Sprintf("read of %s %s owned by another tenant", table, id))
	if tc.UserID != uuid.Nil {
		uid := tc.UserID
		v.UserID = &uid
	}
	v.Details = map[string]any{
		"resource_type": table,
		"resource_id":   id.String(),
	}
	if rerr := q.d.recorder.RecordViolation(ctx, v); rerr != nil {
		logger.L(ctx).Error("failed to record cross-tenant read violation", zap.Error(rerr))
	}
}

// List returns a page of rows matching the conditions.
func (q *Query[M]) List(ctx context.Context, filter shared.Filter) (shared.Paginated[M], error) {
	load := func(ctx context.Context) (shared.Paginated[M], error) {
		order, err := orderClause(filter)
		if err != nil {
			return shared.Paginated[M]{}, err
		}

		var total int64
		var items []M
		err = q.read(ctx, func(tx *gorm.DB) error {
			db := q.apply(tx)

			var model M
			if err := db.Session(&gorm.Session{}).Model(&model).Count(&total).Error; err != nil {
				return err
			}
			return db.Order(order).
				Offset(filter.Offset()).
				Limit(filter.Limit()).
				Find(&items).Error
		})
		if err != nil {
			return shared.Paginated[M]{}, mapReadError(err, "list failed")
		}
		return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
	}

	if q.cached() {
		return cache.GetJSON(ctx, q.d.cache, q.cacheNS, q.cacheKey, q.cacheTTL, load)
	}
	return load(ctx)
}

// AggregateFunc names a SQL aggregate.
type AggregateFunc string

const (
	AggCount AggregateFunc = "COUNT"
	AggSum   AggregateFunc = "SUM"
	AggAvg   AggregateFunc = "AVG"
	AggMin   AggregateFunc = "MIN"
	AggMax   AggregateFunc = "MAX"
)

// Aggregate computes one aggregate over the matching rows. Monetary
// sums come back as decimals, never floats.
func (q *Query[M]) Aggregate(ctx context.Context, fn AggregateFunc, column string) (decimal.Decimal, error) {
	if column != "*" && !orderColumnPattern.MatchString(column) {
		return decimal.Zero, shared.NewError(shared.KindValidationFailed, fmt.Sprintf("invalid aggregate column %q", column))
	}
	switch fn {
	case AggCount, AggSum, AggAvg, AggMin, AggMax:
	default:
		return decimal.Zero, shared.NewError(shared.KindValidationFailed, fmt.Sprintf("invalid aggregate function %q", fn))
	}

	var out decimal.NullDecimal
	expr := fmt.Sprintf("%s(%s)", fn, column)
	err := q.read(ctx, func(tx *gorm.DB) error {
		var model M
		return q.apply(tx).Model(&model).Select(expr).Scan(&out).Error
	})
	if err != nil {
		return decimal.Zero, mapReadError(err, "aggregate failed")
	}
	if !out.Valid {
		return decimal.Zero, nil
	}
	return out.Decimal, nil
}

func (q *Query[M]) cached() bool {
	return q.d.cache != nil && q.cacheNS != ""
}

func mapReadError(err error, msg string) error {
	if shared.KindOf(err) != shared.KindInternal {
		return err
	}
	return shared.WrapError(shared.KindDataStoreUnavailable, msg, err)
}

func orderClause(filter shared.Filter) (string, error) {
	col := filter.OrderBy
	if col == "" {
		col = "created_at"
	}
	if !orderColumnPattern.MatchString(col) {
		return "", shared.NewError(shared.KindValidationFailed, fmt.Sprintf("invalid order column %q", col))
	}
	dir := strings.ToUpper(filter.OrderDir)
	if dir != "ASC" && dir != "DESC" {
		dir = "DESC"
	}
	return col + " " + dir, nil
}
