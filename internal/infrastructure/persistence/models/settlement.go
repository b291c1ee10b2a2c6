package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/settlement"
)

// SettlementModel is the persistence model for the Settlement aggregate.
// At most one non-cancelled settlement exists per partner and exact window;
// PostgreSQL additionally rejects overlapping windows with an exclusion constraint.
type SettlementModel struct {
	AggregateModel
	PartnerID         uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_settlements_active_period,where:status <> 'cancelled'"`
	PeriodStart       time.Time         `gorm:"not null;uniqueIndex:idx_settlements_active_period"`
	PeriodEnd         time.Time         `gorm:"not null;uniqueIndex:idx_settlements_active_period"`
	TotalGross        decimal.Decimal   `gorm:"type:decimal(18,2);not null"`
	TotalPlatformFee  decimal.Decimal   `gorm:"type:decimal(18,2);not null"`
	TotalPartnerNet   decimal.Decimal   `gorm:"type:decimal(18,2);not null"`
	TransactionCount  int               `gorm:"not null"`
	Status            settlement.Status `gorm:"type:varchar(20);not null;index"`
	PaidAt            *time.Time
	LastFailureReason string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SettlementModel) TableName() string {
	return "settlements"
}

// ToDomain converts the persistence model to a domain Settlement
func (m *SettlementModel) ToDomain() *settlement.Settlement {
	return &settlement.Settlement{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		PartnerID:         m.PartnerID,
		Period:            settlement.Period{Start: m.PeriodStart.UTC(), End: m.PeriodEnd.UTC()},
		TotalGross:        m.TotalGross,
		TotalPlatformFee:  m.TotalPlatformFee,
		TotalPartnerNet:   m.TotalPartnerNet,
		TransactionCount:  m.TransactionCount,
		Status:            m.Status,
		PaidAt:            m.PaidAt,
		LastFailureReason: m.LastFailureReason,
	}
}

// SettlementModelFromDomain creates a persistence model from a domain Settlement
func SettlementModelFromDomain(s *settlement.Settlement) *SettlementModel {
	m := &SettlementModel{
		PartnerID:         s.PartnerID,
		PeriodStart:       s.Period.Start,
		PeriodEnd:         s.Period.End,
		TotalGross:        s.TotalGross,
		TotalPlatformFee:  s.TotalPlatformFee,
		TotalPartnerNet:   s.TotalPartnerNet,
		TransactionCount:  s.TransactionCount,
		Status:            s.Status,
		PaidAt:            s.PaidAt,
		LastFailureReason: s.LastFailureReason,
	}
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	return m
}
