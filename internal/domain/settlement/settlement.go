package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/shared"
)

// Status represents the lifecycle state of a settlement
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusCompleted  Status = "completed" // downstream bookkeeping, never written by payouts
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// statusTransitions is the exhaustive table of allowed moves
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusPaid, StatusPending},
	StatusPaid:       {StatusCompleted},
	StatusFailed:     {StatusPending, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// IsValid checks if the status is a known settlement status
func (s Status) IsValid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true when no further payout work is possible
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the table allows s -> next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllStatuses lists every settlement status
func AllStatuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusPaid, StatusCompleted, StatusFailed, StatusCancelled}
}

// Settlement is the aggregate root consolidating a partner's transactions for a period
type Settlement struct {
	shared.BaseAggregateRoot
	PartnerID         uuid.UUID       `json:"partner_id"`
	Period            Period          `json:"period"`
	TotalGross        decimal.Decimal `json:"total_gross"`
	TotalPlatformFee  decimal.Decimal `json:"total_platform_fee"`
	TotalPartnerNet   decimal.Decimal `json:"total_partner_net"`
	TransactionCount  int             `json:"transaction_count"`
	Status            Status          `json:"status"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	LastFailureReason string          `json:"last_failure_reason,omitempty"`
}

// NewSettlement creates a pending settlement from a computed statement
func NewSettlement(partnerID uuid.UUID, period Period, stmt Statement, now time.Time) (*Settlement, error) {
	if partnerID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "partner ID cannot be empty")
	}
	if !stmt.TotalPartnerNet.Equal(stmt.TotalGross.Sub(stmt.TotalPlatformFee)) {
		return nil, shared.NewDomainError(shared.CodeDataInconsistency, "partner net must equal gross minus platform fee")
	}
	if stmt.TransactionCount < 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "transaction count cannot be negative")
	}

	s := &Settlement{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(now),
		PartnerID:         partnerID,
		Period:            period,
		TotalGross:        stmt.TotalGross,
		TotalPlatformFee:  stmt.TotalPlatformFee,
		TotalPartnerNet:   stmt.TotalPartnerNet,
		TransactionCount:  stmt.TransactionCount,
		Status:            StatusPending,
	}
	s.AddDomainEvent(NewSettlementGeneratedEvent(s))
	return s, nil
}

// IsEmpty reports whether the settlement covers no transactions
func (s *Settlement) IsEmpty() bool {
	return s.TransactionCount == 0
}

func (s *Settlement) transition(next Status, now time.Time) error {
	if !s.Status.CanTransitionTo(next) {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("settlement %s cannot move from %s to %s", s.ID, s.Status, next))
	}
	s.Status = next
	s.Touch(now)
	s.IncrementVersion()
	return nil
}

// StartProcessing claims a pending settlement for payout
func (s *Settlement) StartProcessing(now time.Time) error {
	if s.Status != StatusPending {
		return shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("settlement %s is %s, only pending settlements can be paid out", s.ID, s.Status))
	}
	return s.transition(StatusProcessing, now)
}

// MarkPaid completes a processing settlement
func (s *Settlement) MarkPaid(payout *Payout, now time.Time) error {
	if err := s.transition(StatusPaid, now); err != nil {
		return err
	}
	paidAt := now
	s.PaidAt = &paidAt
	s.LastFailureReason = ""
	s.AddDomainEvent(NewSettlementPaidEvent(s, payout))
	return nil
}

// RevertToPending returns a processing settlement to pending after a failed payout,
// keeping the reason visible for reporting.
func (s *Settlement) RevertToPending(reason string, now time.Time) error {
	if err := s.transition(StatusPending, now); err != nil {
		return err
	}
	s.LastFailureReason = reason
	return nil
}
