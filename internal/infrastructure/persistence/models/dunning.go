package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/dunning"
)

// InvoiceModel is a receivable in the accounts-receivable store
type InvoiceModel struct {
	BaseModel
	AccountID  uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount     decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	AmountPaid decimal.Decimal       `gorm:"type:decimal(18,2);not null;default:0"`
	DueDate    time.Time             `gorm:"not null"`
	Status     dunning.InvoiceStatus `gorm:"type:varchar(20);not null;index"`
	PaidAt     *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *dunning.Invoice {
	return &dunning.Invoice{
		ID:         m.ID,
		AccountID:  m.AccountID,
		Amount:     m.Amount,
		AmountPaid: m.AmountPaid,
		DueDate:    m.DueDate.UTC(),
		Status:     m.Status,
		PaidAt:     m.PaidAt,
	}
}

// DunningLogModel is one append-only dunning transition.
// (account_id, sequence) is unique; only reversed_at is ever updated.
type DunningLogModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_dunning_logs_account_sequence,priority:1"`
	Sequence      int64     `gorm:"not null;uniqueIndex:idx_dunning_logs_account_sequence,priority:2"`
	DunningLevel  int       `gorm:"not null"`
	PreviousLevel int       `gorm:"not null"`
	Action        string    `gorm:"type:varchar(40);not null"`
	Description   string    `gorm:"type:text"`
	ExecutedAt    time.Time `gorm:"not null"`
	ReversedAt    *time.Time
}

// TableName returns the table name for GORM
func (DunningLogModel) TableName() string {
	return "dunning_logs"
}

// ToDomain converts the persistence model to a domain Log
func (m *DunningLogModel) ToDomain() *dunning.Log {
	return &dunning.Log{
		ID:            m.ID,
		AccountID:     m.AccountID,
		Sequence:      m.Sequence,
		Level:         m.DunningLevel,
		PreviousLevel: m.PreviousLevel,
		Action:        m.Action,
		Description:   m.Description,
		ExecutedAt:    m.ExecutedAt.UTC(),
		ReversedAt:    m.ReversedAt,
	}
}

// DunningLogModelFromDomain creates a persistence model from a domain Log
func DunningLogModelFromDomain(l *dunning.Log) *DunningLogModel {
	return &DunningLogModel{
		ID:            l.ID,
		AccountID:     l.AccountID,
		Sequence:      l.Sequence,
		DunningLevel:  l.Level,
		PreviousLevel: l.PreviousLevel,
		Action:        l.Action,
		Description:   l.Description,
		ExecutedAt:    l.ExecutedAt,
		ReversedAt:    l.ReversedAt,
	}
}

// AccessOverrideModel forces an account's access state
type AccessOverrideModel struct {
	ID        uuid.UUID               `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex"`
	State     dunning.AccessStateName `gorm:"type:varchar(20);not null"`
	Reason    string                  `gorm:"type:text;not null"`
	ExpiresAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AccessOverrideModel) TableName() string {
	return "access_overrides"
}

// ToDomain converts the persistence model to a domain Override
func (m *AccessOverrideModel) ToDomain() *dunning.Override {
	return &dunning.Override{
		ID:        m.ID,
		AccountID: m.AccountID,
		State:     m.State,
		Reason:    m.Reason,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

// AccessOverrideModelFromDomain creates a persistence model from a domain Override
func AccessOverrideModelFromDomain(o *dunning.Override) *AccessOverrideModel {
	return &AccessOverrideModel{
		ID:        o.ID,
		AccountID: o.AccountID,
		State:     o.State,
		Reason:    o.Reason,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: o.CreatedAt,
	}
}
