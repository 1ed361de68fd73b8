// Package ledger holds the sample accounting entities used by the
// tenant-isolation stack: invoices and ledger accounts. They are
// ordinary tenant-scoped aggregates; every other tenant-scoped table in
// the system follows the same shape.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the invoice lifecycle state.
type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "draft"
	InvoiceStatusIssued InvoiceStatus = "issued"
	InvoiceStatusPaid   InvoiceStatus = "paid"
	InvoiceStatusVoided InvoiceStatus = "voided"
)

// Invoice is a tenant-scoped receivable document.
type Invoice struct {
	shared.TenantEntity
	Number     string
	AccountID  uuid.UUID
	Amount     decimal.Decimal
	TaxAmount  decimal.Decimal
	Currency   string
	Status     InvoiceStatus
	IssuedAt   *time.Time
	DueAt      *time.Time
	CustomerID *uuid.UUID
	Notes      string
}

// NewInvoice creates a draft invoice.
func NewInvoice(number string, accountID uuid.UUID, amount decimal.Decimal, currency string) *Invoice {
	return &Invoice{
		TenantEntity: shared.TenantEntity{BaseEntity: shared.NewBaseEntity()},
		Number:       number,
		AccountID:    accountID,
		Amount:       amount,
		Currency:     currency,
		Status:       InvoiceStatusDraft,
	}
}

// Total returns amount plus tax.
func (i *Invoice) Total() decimal.Decimal {
	return i.Amount.Add(i.TaxAmount)
}

// Issue moves a draft invoice to issued.
func (i *Invoice) Issue(due time.Time) error {
	if i.Status != InvoiceStatusDraft {
		return shared.NewError(shared.KindConflict, "only draft invoices can be issued")
	}
	now := time.Now()
	i.Status = InvoiceStatusIssued
	i.IssuedAt = &now
	i.DueAt = &due
	i.UpdatedAt = now
	return nil
}

// AccountType classifies a ledger account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Account is one node of a tenant's chart of accounts.
type Account struct {
	shared.TenantEntity
	Code     string
	Name     string
	Type     AccountType
	Balance  decimal.Decimal
	Currency string
	ParentID *uuid.UUID
	IsActive bool
}

// NewAccount creates an active account with a zero balance.
func NewAccount(code, name string, typ AccountType, currency string) *Account {
	return &Account{
		TenantEntity: shared.TenantEntity{BaseEntity: shared.NewBaseEntity()},
		Code:         code,
		Name:         name,
		Type:         typ,
		Currency:     currency,
		IsActive:     true,
	}
}

// InvoiceRepository provides tenant-scoped access to invoices.
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	List(ctx context.Context, filter shared.Filter) (shared.Paginated[Invoice], error)
	Save(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountRepository provides tenant-scoped access to ledger accounts.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByCode(ctx context.Context, code string) (*Account, error)
	List(ctx context.Context, filter shared.Filter) (shared.Paginated[Account], error)
	Save(ctx context.Context, a *Account) error
}
