package dal_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/saasbooks/backend/internal/domain/audit"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/cache"
	"github.com/saasbooks/backend/internal/infrastructure/config"
	"github.com/saasbooks/backend/internal/infrastructure/persistence"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/dal"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/models"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/tenant"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/txctx"
	"github.com/saasbooks/backend/internal/tenantctx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type dalFixture struct {
	dal   *dal.DAL
	raw   *gorm.DB
	store *persistence.AuditStore
	cache *cache.Store
}

func setupDAL(t *testing.T, withCache bool) *dalFixture {
	// A named shared-memory database: the violation recorder opens a
	// second connection while a transaction is in flight, and plain
	// ":memory:" would hand it a separate empty database.
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.AccountModel{},
		&models.InvoiceModel{},
		&models.AuditLogEntryModel{},
		&models.AuditViolationModel{},
	))

	scoped := tenant.NewScopedDB(db)
	auditStore := persistence.NewAuditStore(db, false)

	var cacheStore *cache.Store
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cacheStore = cache.NewStore(client, &config.CacheConfig{
			CompressionThresholdBytes: 8192,
			CircuitCooldown:           time.Second,
		})
	}

	return &dalFixture{
		dal: dal.New(scoped, cacheStore, auditStore),
		// Verification reads bypass the tenant callbacks that
		// NewScopedDB registered on db.
		raw:   db.WithContext(tenant.WithBypass(context.Background())),
		store: auditStore,
		cache: cacheStore,
	}
}

func userContext(tenantID, userID uuid.UUID) context.Context {
	return tenantctx.With(context.Background(), &tenantctx.TenantContext{
		TenantID: tenantID,
		UserID:   userID,
		Role:     "accountant",
	})
}

func newAccount(code string) *models.AccountModel {
	return &models.AccountModel{
		TenantModel: models.TenantModel{BaseModel: models.BaseModel{ID: uuid.New()}},
		Code:        code,
		Name:        "Accounts Receivable",
		Type:        "asset",
		Balance:     decimal.Zero,
		Currency:    "USD",
		IsActive:    true,
	}
}

func newInvoice(number string, accountID uuid.UUID, amount string) *models.InvoiceModel {
	return &models.InvoiceModel{
		TenantModel: models.TenantModel{BaseModel: models.BaseModel{ID: uuid.New()}},
		Number:      number,
		AccountID:   accountID,
		Amount:      decimal.RequireFromString(amount),
		TaxAmount:   decimal.Zero,
		Currency:    "USD",
		Status:      "draft",
	}
}

func seedInvoice(t *testing.T, f *dalFixture, ctx context.Context, number, amount string) *models.InvoiceModel {
	acct := newAccount("1100-" + number)
	require.NoError(t, f.dal.Insert(ctx, acct, dal.WriteOptions{ResourceType: "accounts", ResourceID: acct.ID.String()}))
	inv := newInvoice(number, acct.ID, amount)
	require.NoError(t, f.dal.Insert(ctx, inv, dal.WriteOptions{ResourceType: "invoices", ResourceID: inv.ID.String()}))
	return inv
}

func TestInsert_StampsTenantAndWritesAuditEntry(t *testing.T) {
	f := setupDAL(t, false)
	tenantID := uuid.New()
	userID := uuid.New()
	ctx := userContext(tenantID, userID)

	acct := newAccount("1100")
	inv := newInvoice("INV-001", acct.ID, "125.50")
	require.NoError(t, f.dal.Insert(ctx, acct, dal.WriteOptions{ResourceType: "accounts", ResourceID: acct.ID.String()}))
	require.NoError(t, f.dal.Insert(ctx, inv, dal.WriteOptions{
		ResourceType: "invoices",
		ResourceID:   inv.ID.String(),
		Details:      map[string]any{"number": "INV-001"},
	}))

	var row models.InvoiceModel
	require.NoError(t, f.raw.First(&row, "id = ?", inv.ID).Error)
	assert.Equal(t, tenantID, row.TenantID)
	require.NotNil(t, row.CreatedByID)
	assert.Equal(t, userID, *row.CreatedByID)

	var entries []models.AuditLogEntryModel
	require.NoError(t, f.raw.Where("resource_type = ?", "invoices").Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "CREATE", entries[0].Operation)
	assert.Equal(t, tenantID, entries[0].TenantID)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, userID, *entries[0].UserID)
}

func TestInsert_WithoutContextFailsClosed(t *testing.T) {
	f := setupDAL(t, false)

	err := f.dal.Insert(context.Background(), newAccount("1100"), dal.WriteOptions{ResourceType: "accounts"})
	assert.ErrorIs(t, err, shared.ErrNoContext)

	var count int64
	require.NoError(t, f.raw.Model(&models.AccountModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInsert_ForeignTenantRejectedAndViolationRecorded(t *testing.T) {
	f := setupDAL(t, false)
	ctx := userContext(uuid.New(), uuid.New())

	acct := newAccount("1100")
	acct.TenantID = uuid.New() // not the ambient tenant
	err := f.dal.Insert(ctx, acct, dal.WriteOptions{ResourceType: "accounts", ResourceID: acct.ID.String()})
	assert.ErrorIs(t, err, shared.ErrTenantMismatch)

	var violations []models.AuditViolationModel
	require.NoError(t, f.raw.Find(&violations).Error)
	require.Len(t, violations, 1)
	assert.Equal(t, "UNAUTHORIZED_ACCESS", violations[0].Kind)
	assert.False(t, violations[0].Resolved)

	var count int64
	require.NoError(t, f.raw.Model(&models.AccountModel{}).Count(&count).Error)
	assert.Zero(t, count, "rejected insert must not persist the row")
}

func TestList_ReturnsOnlyAmbientTenantRows(t *testing.T) {
	f := setupDAL(t, false)
	ctxA := userContext(uuid.New(), uuid.New())
	ctxB := userContext(uuid.New(), uuid.New())

	seedInvoice(t, f, ctxA, "INV-A1", "10.00")
	seedInvoice(t, f, ctxA, "INV-A2", "20.00")
	seedInvoice(t, f, ctxB, "INV-B1", "99.00")

	page, err := dal.NewQuery[models.InvoiceModel](f.dal).List(ctxA, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	for _, inv := range page.Items {
		assert.NotEqual(t, "INV-B1", inv.Number)
	}
}

func TestFind_CrossTenantLooksLikeMissing(t *testing.T) {
	f := setupDAL(t, false)
	ctxA := userContext(uuid.New(), uuid.New())
	ctxB := userContext(uuid.New(), uuid.New())

	inv := seedInvoice(t, f, ctxA, "INV-A1", "10.00")

	got, err := dal.NewQuery[models.InvoiceModel](f.dal).Find(ctxA, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-A1", got.Number)

	_, err = dal.NewQuery[models.InvoiceModel](f.dal).Find(ctxB, inv.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = dal.NewQuery[models.InvoiceModel](f.dal).Find(ctxB, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound, "cross-tenant and missing must be indistinguishable")
}

func TestFind_CrossTenantLeavesViolation(t *testing.T) {
	f := setupDAL(t, false)
	tenantB := uuid.New()
	userB := uuid.New()
	ctxA := userContext(uuid.New(), uuid.New())
	ctxB := userContext(tenantB, userB)

	inv := seedInvoice(t, f, ctxA, "INV-A1", "10.00")

	_, err := dal.NewQuery[models.InvoiceModel](f.dal).Find(ctxB, inv.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	var violations []models.AuditViolationModel
	require.NoError(t, f.raw.Find(&violations).Error)
	require.Len(t, violations, 1, "a read of another tenant's row must land on the violation stream")
	v := violations[0]
	assert.Equal(t, "UNAUTHORIZED_ACCESS", v.Kind)
	assert.Equal(t, "high", v.Severity)
	assert.Equal(t, tenantB, v.TenantID, "the violation belongs to the caller's tenant")
	require.NotNil(t, v.UserID)
	assert.Equal(t, userB, *v.UserID)

	// A genuinely missing row is just missing.
	_, err = dal.NewQuery[models.InvoiceModel](f.dal).Find(ctxB, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	var count int64
	require.NoError(t, f.raw.Model(&models.AuditViolationModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestList_WithoutContextFailsClosed(t *testing.T) {
	f := setupDAL(t, false)

	_, err := dal.NewQuery[models.InvoiceModel](f.dal).List(context.Background(), shared.DefaultFilter())
	assert.ErrorIs(t, err, shared.ErrNoContext)
}

func TestUpdate_CrossTenantMatchesNothing(t *testing.T) {
	f := setupDAL(t, false)
	ctxA := userContext(uuid.New(), uuid.New())
	ctxB := userContext(uuid.New(), uuid.New())

	inv := seedInvoice(t, f, ctxA, "INV-A1", "10.00")

	foreign := *inv
	foreign.TenantID = uuid.Nil // cleared so the guard defers to the predicate
	foreign.Notes = "tampered"
	err := f.dal.Update(ctxB, &foreign, dal.WriteOptions{ResourceType: "invoices", ResourceID: inv.ID.String()})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	var row models.InvoiceModel
	require.NoError(t, f.raw.First(&row, "id = ?", inv.ID).Error)
	assert.Empty(t, row.Notes)
}

func TestDelete_WritesAuditEntryAndRespectsTenant(t *testing.T) {
	f := setupDAL(t, false)
	ctxA := userContext(uuid.New(), uuid.New())
	ctxB := userContext(uuid.New(), uuid.New())

	inv := seedInvoice(t, f, ctxA, "INV-A1", "10.00")

	err := f.dal.Delete(ctxB, &models.InvoiceModel{TenantModel: models.TenantModel{BaseModel: models.BaseModel{ID: inv.ID}}},
		dal.WriteOptions{ResourceType: "invoices", ResourceID: inv.ID.String()})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, f.dal.Delete(ctxA, &models.InvoiceModel{TenantModel: models.TenantModel{BaseModel: models.BaseModel{ID: inv.ID}}},
		dal.WriteOptions{ResourceType: "invoices", ResourceID: inv.ID.String()}))

	var entries []models.AuditLogEntryModel
	require.NoError(t, f.raw.Where("operation = ?", "DELETE").Find(&entries).Error)
	assert.Len(t, entries, 1)
}

func TestBulkInsert_SingleAuditEntry(t *testing.T) {
	f := setupDAL(t, false)
	ctx := userContext(uuid.New(), uuid.New())

	acct := newAccount("1100")
	require.NoError(t, f.dal.Insert(ctx, acct, dal.WriteOptions{ResourceType: "accounts", ResourceID: acct.ID.String()}))

	batch := []*models.InvoiceModel{
		newInvoice("INV-1", acct.ID, "1.00"),
		newInvoice("INV-2", acct.ID, "2.00"),
		newInvoice("INV-3", acct.ID, "3.00"),
	}
	require.NoError(t, f.dal.BulkInsert(ctx, batch, dal.WriteOptions{
		ResourceType: "invoices",
		ResourceID:   "bulk",
		Details:      map[string]any{"count": len(batch)},
	}))

	var count int64
	require.NoError(t, f.raw.Model(&models.InvoiceModel{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	var entries []models.AuditLogEntryModel
	require.NoError(t, f.raw.Where("resource_type = ? AND operation = ?", "invoices", "CREATE").Find(&entries).Error)
	assert.Len(t, entries, 1)
}

func TestAuditEntry_RolledBackWithTransaction(t *testing.T) {
	f := setupDAL(t, false)
	ctx := userContext(uuid.New(), uuid.New())

	err := f.dal.DB().Transaction(ctx, func(tx *gorm.DB) error {
		entry := audit.NewEntry(tenantctx.TenantID(ctx), audit.OpUpdate, "invoices", "x")
		if err := f.store.Record(txctx.WithTx(ctx, tx), entry); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, f.raw.Model(&models.AuditLogEntryModel{}).Count(&count).Error)
	assert.Zero(t, count, "audit entry must not survive the rollback")
}

func TestViolation_SurvivesRollback(t *testing.T) {
	f := setupDAL(t, false)
	ctx := userContext(uuid.New(), uuid.New())

	err := f.dal.DB().Transaction(ctx, func(tx *gorm.DB) error {
		v := audit.NewViolation(tenantctx.TenantID(ctx), audit.ViolationUnauthorizedAccess, audit.SeverityHigh, "cross-tenant write blocked")
		if err := f.store.RecordViolation(ctx, v); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, f.raw.Model(&models.AuditViolationModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "violation evidence must survive the rollback")
}

func TestAggregate_SumAsDecimal(t *testing.T) {
	f := setupDAL(t, false)
	ctxA := userContext(uuid.New(), uuid.New())
	ctxB := userContext(uuid.New(), uuid.New())

	seedInvoice(t, f, ctxA, "INV-A1", "10.10")
	seedInvoice(t, f, ctxA, "INV-A2", "20.20")
	seedInvoice(t, f, ctxB, "INV-B1", "500.00")

	sum, err := dal.NewQuery[models.InvoiceModel](f.dal).Aggregate(ctxA, dal.AggSum, "amount")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("30.30")), "got %s", sum)

	count, err := dal.NewQuery[models.InvoiceModel](f.dal).Aggregate(ctxA, dal.AggCount, "*")
	require.NoError(t, err)
	assert.True(t, count.Equal(decimal.NewFromInt(2)))
}

func TestAggregate_RejectsUnsafeInput(t *testing.T) {
	f := setupDAL(t, false)
	ctx := userContext(uuid.New(), uuid.New())

	_, err := dal.NewQuery[models.InvoiceModel](f.dal).Aggregate(ctx, dal.AggSum, "amount); DROP TABLE invoices;--")
	assert.ErrorIs(t, err, shared.ErrValidationFailed)

	_, err = dal.NewQuery[models.InvoiceModel](f.dal).Aggregate(ctx, "EXPLODE", "amount")
	assert.ErrorIs(t, err, shared.ErrValidationFailed)
}

func TestWithRelated_PrefetchesAssociations(t *testing.T) {
	f := setupDAL(t, false)
	ctx := userContext(uuid.New(), uuid.New())

	acct := newAccount("1100")
	require.NoError(t, f.dal.Insert(ctx, acct, dal.WriteOptions{ResourceType: "accounts", ResourceID: acct.ID.String()}))
	inv := newInvoice("INV-1", acct.ID, "10.00")
	require.NoError(t, f.dal.Insert(ctx, inv, dal.WriteOptions{ResourceType: "invoices", ResourceID: inv.ID.String()}))

	got, err := dal.NewQuery[models.InvoiceModel](f.dal).
		WithRelated(dal.Relation{Name: "Account"}).
		Find(ctx, inv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Account)
	assert.Equal(t, "1100", got.Account.Code)

	accts, err := dal.NewQuery[models.AccountModel](f.dal).
		WithRelated(dal.Relation{Name: "Invoices", ToMany: true}).
		List(ctx, shared.DefaultFilter())
	require.NoError(t, err)
	require.Len(t, accts.Items, 1)
	assert.Len(t, accts.Items[0].Invoices, 1)
}

func TestWithCache_ReadThroughAndPostCommitInvalidation(t *testing.T) {
	f := setupDAL(t, true)
	ctx := userContext(uuid.New(), uuid.New())

	seedInvoice(t, f, ctx, "INV-1", "10.00")

	listCached := func() shared.Paginated[models.InvoiceModel] {
		page, err := dal.NewQuery[models.InvoiceModel](f.dal).
			WithCache("invoices", "list:p1", time.Minute).
			List(ctx, shared.DefaultFilter())
		require.NoError(t, err)
		return page
	}

	assert.Equal(t, int64(1), listCached().Total)

	// A write that does not invalidate leaves the cached page stale.
	acct := newAccount("2100")
	require.NoError(t, f.dal.Insert(ctx, acct, dal.WriteOptions{ResourceType: "accounts", ResourceID: acct.ID.String()}))
	inv := newInvoice("INV-2", acct.ID, "20.00")
	require.NoError(t, f.dal.Insert(ctx, inv, dal.WriteOptions{ResourceType: "invoices", ResourceID: inv.ID.String()}))
	assert.Equal(t, int64(1), listCached().Total, "stale until invalidated")

	// A write declaring its cache effect refreshes the page post-commit.
	inv3 := newInvoice("INV-3", acct.ID, "30.00")
	require.NoError(t, f.dal.Insert(ctx, inv3, dal.WriteOptions{
		ResourceType:         "invoices",
		ResourceID:           inv3.ID.String(),
		InvalidateNamespaces: []string{"invoices"},
	}))
	assert.Equal(t, int64(3), listCached().Total)
}

func TestWithCache_FailedWriteDoesNotInvalidate(t *testing.T) {
	f := setupDAL(t, true)
	ctx := userContext(uuid.New(), uuid.New())

	seedInvoice(t, f, ctx, "INV-1", "10.00")

	page, err := dal.NewQuery[models.InvoiceModel](f.dal).
		WithCache("invoices", "list:p1", time.Minute).
		List(ctx, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	// Duplicate primary key forces a rollback after the queue was built.
	dup := newInvoice("INV-DUP", page.Items[0].AccountID, "1.00")
	dup.ID = page.Items[0].ID
	err = f.dal.Insert(ctx, dup, dal.WriteOptions{
		ResourceType:         "invoices",
		ResourceID:           dup.ID.String(),
		InvalidateNamespaces: []string{"invoices"},
	})
	require.Error(t, err)

	page, err = dal.NewQuery[models.InvoiceModel](f.dal).
		WithCache("invoices", "list:p1", time.Minute).
		List(ctx, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total, "cache entry must survive the rolled-back write")
}

// wireInvoice is a minimal scoped model for statement-level assertions.
type wireInvoice struct {
	ID       uuid.UUID `gorm:"primaryKey"`
	TenantID uuid.UUID
	Number   string
}

func TestFind_ReadsInsideSessionVarTransaction(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	scoped := tenant.NewScopedDB(db)
	d := dal.New(scoped, nil, persistence.NewAuditStore(db, false))

	tenantID := uuid.New()
	userID := uuid.New()
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\(\$1, \$2, true\)`).
		WithArgs("app.current_tenant_id", tenantID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT set_config\(\$1, \$2, true\)`).
		WithArgs("app.current_user_id", userID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SELECT set_config\(\$1, \$2, true\)`).
		WithArgs("app.current_user_role", "accountant").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "wire_invoices" WHERE id = \$1 AND "wire_invoices"\."tenant_id" = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "number"}).
			AddRow(id.String(), tenantID.String(), "INV-7"))
	mock.ExpectCommit()

	got, err := dal.NewQuery[wireInvoice](d).Find(userContext(tenantID, userID), id)
	require.NoError(t, err)
	assert.Equal(t, "INV-7", got.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}
