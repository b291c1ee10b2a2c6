package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/shared"
)

// PayoutMethodManual marks payouts recorded without calling the provider
const PayoutMethodManual = "manual"

// PayoutStatus represents the lifecycle state of a payout
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var payoutTransitions = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:    {PayoutStatusProcessing, PayoutStatusPaid, PayoutStatusFailed},
	PayoutStatusProcessing: {PayoutStatusPaid, PayoutStatusFailed},
	PayoutStatusPaid:       nil,
	PayoutStatusFailed:     nil,
}

// IsValid checks if the status is a known payout status
func (s PayoutStatus) IsValid() bool {
	_, ok := payoutTransitions[s]
	return ok
}

// String returns the string representation of PayoutStatus
func (s PayoutStatus) String() string {
	return string(s)
}

// IsTerminal returns true for paid and failed
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusFailed
}

// CanTransitionTo reports whether the table allows s -> next
func (s PayoutStatus) CanTransitionTo(next PayoutStatus) bool {
	for _, allowed := range payoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Destination is where a partner's money is sent
type Destination struct {
	Method           string `json:"method"`
	AccountReference string `json:"account_reference"`
	HolderName       string `json:"holder_name,omitempty"`
}

// Validate checks the destination is usable for a transfer
func (d Destination) Validate() error {
	if d.Method == "" || d.AccountReference == "" {
		return shared.NewDomainError(shared.CodeDestinationMissing, "payout destination requires method and account reference")
	}
	return nil
}

// Payout records a money transfer executed against a settlement
type Payout struct {
	shared.BaseEntity
	SettlementID      uuid.UUID       `json:"settlement_id"`
	PartnerID         uuid.UUID       `json:"partner_id"`
	Amount            decimal.Decimal `json:"amount"`
	PayoutMethod      string          `json:"payout_method"`
	Channel           string          `json:"channel,omitempty"`
	Destination       Destination     `json:"destination"`
	ClientReference   string          `json:"client_reference"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	Status            PayoutStatus    `json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	ExecutedAt        *time.Time      `json:"executed_at,omitempty"`
}

// NewPayout creates a pending payout for a settlement that is being paid out.
// The settlement must already be claimed (processing); the payout amount is its net.
func NewPayout(s *Settlement, method string, dest Destination, now time.Time) (*Payout, error) {
	if s == nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "settlement is required")
	}
	if s.Status != StatusProcessing && s.Status != StatusPending {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("cannot create payout for settlement %s in status %s", s.ID, s.Status))
	}
	if method == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "payout method is required")
	}
	p := &Payout{
		BaseEntity:   shared.NewBaseEntityAt(now),
		SettlementID: s.ID,
		PartnerID:    s.PartnerID,
		Amount:       s.TotalPartnerNet,
		PayoutMethod: method,
		Destination:  dest,
		Status:       PayoutStatusPending,
	}
	p.ClientReference = p.ID.String()
	return p, nil
}

func (p *Payout) transition(next PayoutStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("payout %s cannot move from %s to %s", p.ID, p.Status, next))
	}
	p.Status = next
	p.Touch(now)
	return nil
}

// MarkProcessing records that the provider is about to be called
func (p *Payout) MarkProcessing(now time.Time) error {
	return p.transition(PayoutStatusProcessing, now)
}

// MarkPaid records a confirmed transfer
func (p *Payout) MarkPaid(providerReference string, now time.Time) error {
	if err := p.transition(PayoutStatusPaid, now); err != nil {
		return err
	}
	if providerReference != "" {
		p.ProviderReference = providerReference
	}
	executed := now
	p.ExecutedAt = &executed
	p.FailureReason = ""
	return nil
}

// MarkFailed records a definite failure with its reason
func (p *Payout) MarkFailed(reason string, now time.Time) error {
	if err := p.transition(PayoutStatusFailed, now); err != nil {
		return err
	}
	p.FailureReason = reason
	return nil
}

// QueryReference is the identifier used to ask the provider about this payout
func (p *Payout) QueryReference() string {
	if p.ProviderReference != "" {
		return p.ProviderReference
	}
	return p.ClientReference
}
