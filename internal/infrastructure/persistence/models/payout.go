package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/settlement"
)

// PayoutModel is the persistence model for a payout attempt.
// The destination is snapshotted so later destination changes do not
// rewrite history.
type PayoutModel struct {
	BaseModel
	SettlementID       uuid.UUID               `gorm:"type:uuid;not null;index"`
	PartnerID          uuid.UUID               `gorm:"type:uuid;not null;index"`
	Amount             decimal.Decimal         `gorm:"type:decimal(18,2);not null"`
	PayoutMethod       string                  `gorm:"type:varchar(30);not null"`
	Channel            string                  `gorm:"type:varchar(50)"`
	DestinationMethod  string                  `gorm:"type:varchar(30)"`
	DestinationAccount string                  `gorm:"type:varchar(200)"`
	DestinationHolder  string                  `gorm:"type:varchar(200)"`
	ClientReference    string                  `gorm:"type:varchar(64);not null;uniqueIndex"`
	ProviderReference  string                  `gorm:"type:varchar(128);index"`
	Status             settlement.PayoutStatus `gorm:"type:varchar(20);not null;index"`
	FailureReason      string                  `gorm:"type:text"`
	ExecutedAt         *time.Time
}

// TableName returns the table name for GORM
func (PayoutModel) TableName() string {
	return "payouts"
}

// ToDomain converts the persistence model to a domain Payout
func (m *PayoutModel) ToDomain() *settlement.Payout {
	return &settlement.Payout{
		BaseEntity:   m.BaseModel.ToDomain(),
		SettlementID: m.SettlementID,
		PartnerID:    m.PartnerID,
		Amount:       m.Amount,
		PayoutMethod: m.PayoutMethod,
		Channel:      m.Channel,
		Destination: settlement.Destination{
			Method:           m.DestinationMethod,
			AccountReference: m.DestinationAccount,
			HolderName:       m.DestinationHolder,
		},
		ClientReference:   m.ClientReference,
		ProviderReference: m.ProviderReference,
		Status:            m.Status,
		FailureReason:     m.FailureReason,
		ExecutedAt:        m.ExecutedAt,
	}
}

// PayoutModelFromDomain creates a persistence model from a domain Payout
func PayoutModelFromDomain(p *settlement.Payout) *PayoutModel {
	m := &PayoutModel{
		SettlementID:       p.SettlementID,
		PartnerID:          p.PartnerID,
		Amount:             p.Amount,
		PayoutMethod:       p.PayoutMethod,
		Channel:            p.Channel,
		DestinationMethod:  p.Destination.Method,
		DestinationAccount: p.Destination.AccountReference,
		DestinationHolder:  p.Destination.HolderName,
		ClientReference:    p.ClientReference,
		ProviderReference:  p.ProviderReference,
		Status:             p.Status,
		FailureReason:      p.FailureReason,
		ExecutedAt:         p.ExecutedAt,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}
