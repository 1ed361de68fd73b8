package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/ledger"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/dal"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/models"
)

// invoiceCacheNS is the cache namespace for invoice reads; writes
// invalidate the whole namespace.
const invoiceCacheNS = "invoices"

// invoiceListTTL bounds staleness for cached invoice pages.
const invoiceListTTL = 5 * time.Minute

// DALInvoiceRepository implements ledger.InvoiceRepository on the DAL:
// tenant scoping, audit entries and cache maintenance all come from
// there.
type DALInvoiceRepository struct {
	dal *dal.DAL
}

// NewDALInvoiceRepository creates an invoice repository.
func NewDALInvoiceRepository(d *dal.DAL) *DALInvoiceRepository {
	return &DALInvoiceRepository{dal: d}
}

// FindByID loads one invoice with its account.
func (r *DALInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	m, err := dal.NewQuery[models.InvoiceModel](r.dal).
		WithRelated(dal.Relation{Name: "Account"}).
		Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// List returns a page of invoices, served through the cache.
func (r *DALInvoiceRepository) List(ctx context.Context, filter shared.Filter) (shared.Paginated[ledger.Invoice], error) {
	page, err := dal.NewQuery[models.InvoiceModel](r.dal).
		WithCache(invoiceCacheNS, listCacheKey(filter), invoiceListTTL).
		List(ctx, filter)
	if err != nil {
		return shared.Paginated[ledger.Invoice]{}, err
	}

	items := make([]ledger.Invoice, len(page.Items))
	for i := range page.Items {
		items[i] = *page.Items[i].ToDomain()
	}
	return shared.Paginated[ledger.Invoice]{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}, nil
}

// Save inserts or updates an invoice with its audit entry.
func (r *DALInvoiceRepository) Save(ctx context.Context, inv *ledger.Invoice) error {
	m := models.InvoiceModelFromDomain(inv)
	opts := dal.WriteOptions{
		ResourceType:         "invoices",
		ResourceID:           inv.ID.String(),
		Details:              map[string]any{"number": inv.Number, "status": string(inv.Status)},
		InvalidateNamespaces: []string{invoiceCacheNS},
	}
	if inv.CreatedAt.Equal(inv.UpdatedAt) {
		return r.dal.Insert(ctx, m, opts)
	}
	return r.dal.Update(ctx, m, opts)
}

// Delete removes an invoice.
func (r *DALInvoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m := &models.InvoiceModel{TenantModel: models.TenantModel{BaseModel: models.BaseModel{ID: id}}}
	return r.dal.Delete(ctx, m, dal.WriteOptions{
		ResourceType:         "invoices",
		ResourceID:           id.String(),
		InvalidateNamespaces: []string{invoiceCacheNS},
	})
}

var _ ledger.InvoiceRepository = (*DALInvoiceRepository)(nil)
