package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/shared"
)

// Event type names
const (
	EventTypeSettlementGenerated = "settlement.generated"
	EventTypeSettlementPaid      = "settlement.paid"
	EventTypePayoutFailed        = "payout.failed"
	aggregateTypeSettlement      = "Settlement"
)

// SettlementGeneratedEvent is raised when a new settlement is persisted
type SettlementGeneratedEvent struct {
	shared.BaseDomainEvent
	SettlementID     uuid.UUID       `json:"settlement_id"`
	PartnerID        uuid.UUID       `json:"partner_id"`
	PeriodStart      time.Time       `json:"period_start"`
	PeriodEnd        time.Time       `json:"period_end"`
	TotalGross       decimal.Decimal `json:"total_gross"`
	TotalPlatformFee decimal.Decimal `json:"total_platform_fee"`
	TotalPartnerNet  decimal.Decimal `json:"total_partner_net"`
	TransactionCount int             `json:"transaction_count"`
}

// NewSettlementGeneratedEvent creates a new SettlementGeneratedEvent
func NewSettlementGeneratedEvent(s *Settlement) *SettlementGeneratedEvent {
	return &SettlementGeneratedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent(EventTypeSettlementGenerated, aggregateTypeSettlement, s.ID, s.PartnerID, s.CreatedAt),
		SettlementID:     s.ID,
		PartnerID:        s.PartnerID,
		PeriodStart:      s.Period.Start,
		PeriodEnd:        s.Period.End,
		TotalGross:       s.TotalGross,
		TotalPlatformFee: s.TotalPlatformFee,
		TotalPartnerNet:  s.TotalPartnerNet,
		TransactionCount: s.TransactionCount,
	}
}

// SettlementPaidEvent is raised when a settlement's payout is confirmed
type SettlementPaidEvent struct {
	shared.BaseDomainEvent
	SettlementID      uuid.UUID       `json:"settlement_id"`
	PartnerID         uuid.UUID       `json:"partner_id"`
	PayoutID          uuid.UUID       `json:"payout_id"`
	Amount            decimal.Decimal `json:"amount"`
	PayoutMethod      string          `json:"payout_method"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	PaidAt            time.Time       `json:"paid_at"`
}

// NewSettlementPaidEvent creates a new SettlementPaidEvent
func NewSettlementPaidEvent(s *Settlement, p *Payout) *SettlementPaidEvent {
	paidAt := s.UpdatedAt
	if s.PaidAt != nil {
		paidAt = *s.PaidAt
	}
	e := &SettlementPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSettlementPaid, aggregateTypeSettlement, s.ID, s.PartnerID, paidAt),
		SettlementID:    s.ID,
		PartnerID:       s.PartnerID,
		Amount:          s.TotalPartnerNet,
		PaidAt:          paidAt,
	}
	if p != nil {
		e.PayoutID = p.ID
		e.PayoutMethod = p.PayoutMethod
		e.ProviderReference = p.ProviderReference
	}
	return e
}

// PayoutFailedEvent is raised when a payout attempt ends in definite failure
type PayoutFailedEvent struct {
	shared.BaseDomainEvent
	SettlementID uuid.UUID       `json:"settlement_id"`
	PayoutID     uuid.UUID       `json:"payout_id"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
}

// NewPayoutFailedEvent creates a new PayoutFailedEvent
func NewPayoutFailedEvent(p *Payout) *PayoutFailedEvent {
	return &PayoutFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePayoutFailed, "Payout", p.ID, p.PartnerID, p.UpdatedAt),
		SettlementID:    p.SettlementID,
		PayoutID:        p.ID,
		Amount:          p.Amount,
		Reason:          p.FailureReason,
	}
}
