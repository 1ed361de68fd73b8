package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/ledger"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/dal"
	"github.com/saasbooks/backend/internal/infrastructure/persistence/models"
)

const accountCacheNS = "accounts"

const accountListTTL = 10 * time.Minute

// DALAccountRepository implements ledger.AccountRepository on the DAL.
type DALAccountRepository struct {
	dal *dal.DAL
}

// NewDALAccountRepository creates an account repository.
func NewDALAccountRepository(d *dal.DAL) *DALAccountRepository {
	return &DALAccountRepository{dal: d}
}

// FindByID loads one account.
func (r *DALAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	m, err := dal.NewQuery[models.AccountModel](r.dal).Find(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

// FindByCode loads one account by its chart code.
func (r *DALAccountRepository) FindByCode(ctx context.Context, code string) (*ledger.Account, error) {
	page, err := dal.NewQuery[models.AccountModel](r.dal).
		Where("code = ?", code).
		List(ctx, shared.Filter{Page: 1, PageSize: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, shared.ErrNotFound
	}
	return page.Items[0].ToDomain(), nil
}

// List returns a page of accounts, served through the cache.
func (r *DALAccountRepository) List(ctx context.Context, filter shared.Filter) (shared.Paginated[ledger.Account], error) {
	page, err := dal.NewQuery[models.AccountModel](r.dal).
		WithCache(accountCacheNS, listCacheKey(filter), accountListTTL).
		List(ctx, filter)
	if err != nil {
		return shared.Paginated[ledger.Account]{}, err
	}

	items := make([]ledger.Account, len(page.Items))
	for i := range page.Items {
		items[i] = *page.Items[i].ToDomain()
	}
	return shared.Paginated[ledger.Account]{
		Items:      items,
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
	}, nil
}

// Save inserts or updates an account with its audit entry.
func (r *DALAccountRepository) Save(ctx context.Context, a *ledger.Account) error {
	m := models.AccountModelFromDomain(a)
	opts := dal.WriteOptions{
		ResourceType:         "accounts",
		ResourceID:           a.ID.String(),
		Details:              map[string]any{"code": a.Code, "type": string(a.Type)},
		InvalidateNamespaces: []string{accountCacheNS},
	}
	if a.CreatedAt.Equal(a.UpdatedAt) {
		return r.dal.Insert(ctx, m, opts)
	}
	return r.dal.Update(ctx, m, opts)
}

// listCacheKey encodes the filter parameters that vary a cached page.
// The tenant is deliberately absent: the cache adds it.
func listCacheKey(f shared.Filter) string {
	return fmt.Sprintf("list:%d:%d:%s:%s", f.Page, f.PageSize, f.OrderBy, f.OrderDir)
}

var _ ledger.AccountRepository = (*DALAccountRepository)(nil)
