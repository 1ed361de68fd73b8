package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/saasbooks/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice entity.
type InvoiceModel struct {
	TenantModel
	Number     string               `gorm:"type:varchar(50);not null;index"`
	AccountID  uuid.UUID            `gorm:"type:uuid;not null;index"`
	Amount     decimal.Decimal      `gorm:"type:decimal(20,4);not null"`
	TaxAmount  decimal.Decimal      `gorm:"type:decimal(20,4);not null;default:0"`
	Currency   string               `gorm:"type:varchar(10);not null;default:'USD'"`
	Status     ledger.InvoiceStatus `gorm:"type:varchar(20);not null;default:'draft';index"`
	IssuedAt   *time.Time
	DueAt      *time.Time `gorm:"index"`
	CustomerID *uuid.UUID `gorm:"type:uuid;index"`
	Notes      string     `gorm:"type:text"`

	Account *AccountModel `gorm:"foreignKey:AccountID" json:"-"`
}

// TableName returns the table name for GORM.
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *ledger.Invoice {
	return &ledger.Invoice{
		TenantEntity: m.ToDomainTenantEntity(),
		Number:       m.Number,
		AccountID:    m.AccountID,
		Amount:       m.Amount,
		TaxAmount:    m.TaxAmount,
		Currency:     m.Currency,
		Status:       m.Status,
		IssuedAt:     m.IssuedAt,
		DueAt:        m.DueAt,
		CustomerID:   m.CustomerID,
		Notes:        m.Notes,
	}
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *ledger.Invoice) {
	m.FromDomainTenantEntity(inv.TenantEntity)
	m.Number = inv.Number
	m.AccountID = inv.AccountID
	m.Amount = inv.Amount
	m.TaxAmount = inv.TaxAmount
	m.Currency = inv.Currency
	m.Status = inv.Status
	m.IssuedAt = inv.IssuedAt
	m.DueAt = inv.DueAt
	m.CustomerID = inv.CustomerID
	m.Notes = inv.Notes
}

// InvoiceModelFromDomain creates a persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *ledger.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// AccountModel is the persistence model for the Account entity.
type AccountModel struct {
	TenantModel
	Code     string             `gorm:"type:varchar(50);not null;index"`
	Name     string             `gorm:"type:varchar(200);not null"`
	Type     ledger.AccountType `gorm:"type:varchar(20);not null;index"`
	Balance  decimal.Decimal    `gorm:"type:decimal(20,4);not null;default:0"`
	Currency string             `gorm:"type:varchar(10);not null;default:'USD'"`
	ParentID *uuid.UUID         `gorm:"type:uuid;index"`
	IsActive bool               `gorm:"not null;default:true"`

	Invoices []InvoiceModel `gorm:"foreignKey:AccountID" json:"-"`
}

// TableName returns the table name for GORM.
func (AccountModel) TableName() string {
	return "accounts"
}

// ToDomain converts the persistence model to a domain Account.
func (m *AccountModel) ToDomain() *ledger.Account {
	return &ledger.Account{
		TenantEntity: m.ToDomainTenantEntity(),
		Code:         m.Code,
		Name:         m.Name,
		Type:         m.Type,
		Balance:      m.Balance,
		Currency:     m.Currency,
		ParentID:     m.ParentID,
		IsActive:     m.IsActive,
	}
}

// FromDomain populates the persistence model from a domain Account.
func (m *AccountModel) FromDomain(a *ledger.Account) {
	m.FromDomainTenantEntity(a.TenantEntity)
	m.Code = a.Code
	m.Name = a.Name
	m.Type = a.Type
	m.Balance = a.Balance
	m.Currency = a.Currency
	m.ParentID = a.ParentID
	m.IsActive = a.IsActive
}

// AccountModelFromDomain creates a persistence model from a domain Account.
func AccountModelFromDomain(a *ledger.Account) *AccountModel {
	m := &AccountModel{}
	m.FromDomain(a)
	return m
}
