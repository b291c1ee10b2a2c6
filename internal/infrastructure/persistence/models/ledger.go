package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/settlement"
)

// TransactionRecordModel is one row of the earnings feed.
// Settled flips once, together with settlement_id, when a settlement consumes it.
type TransactionRecordModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PartnerID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_transaction_records_unsettled,priority:1"`
	TenantID      uuid.UUID       `gorm:"type:uuid;not null"`
	GrossAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentMethod string          `gorm:"type:varchar(30);not null"`
	OccurredAt    time.Time       `gorm:"not null;index:idx_transaction_records_unsettled,priority:3"`
	Settled       bool            `gorm:"not null;default:false;index:idx_transaction_records_unsettled,priority:2"`
	SettlementID  *uuid.UUID      `gorm:"type:uuid;index"`
	CreatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TransactionRecordModel) TableName() string {
	return "transaction_records"
}

// ToDomain converts the persistence model to a domain TransactionRecord
func (m *TransactionRecordModel) ToDomain() settlement.TransactionRecord {
	return settlement.TransactionRecord{
		ID:            m.ID,
		PartnerID:     m.PartnerID,
		TenantID:      m.TenantID,
		GrossAmount:   m.GrossAmount,
		PaymentMethod: m.PaymentMethod,
		OccurredAt:    m.OccurredAt.UTC(),
		Settled:       m.Settled,
		SettlementID:  m.SettlementID,
	}
}

// TransactionRecordModelFromDomain creates a persistence model from a domain record
func TransactionRecordModelFromDomain(r settlement.TransactionRecord) *TransactionRecordModel {
	return &TransactionRecordModel{
		ID:            r.ID,
		PartnerID:     r.PartnerID,
		TenantID:      r.TenantID,
		GrossAmount:   r.GrossAmount,
		PaymentMethod: r.PaymentMethod,
		OccurredAt:    r.OccurredAt.UTC(),
		Settled:       r.Settled,
		SettlementID:  r.SettlementID,
	}
}
