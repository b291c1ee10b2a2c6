package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/shared"
)

// Filter narrows settlement list queries
type Filter struct {
	shared.Filter
	PartnerID  *uuid.UUID
	Statuses   []Status
	PeriodFrom *time.Time // settlements starting at or after
	PeriodTo   *time.Time // settlements ending at or before
}

// PayoutFilter narrows payout list queries
type PayoutFilter struct {
	shared.Filter
	PartnerID    *uuid.UUID
	SettlementID *uuid.UUID
	Statuses     []PayoutStatus
}

// SettlementRepository persists Settlement aggregates
type SettlementRepository interface {
	// FindByID finds a settlement by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Settlement, error)

	// FindActiveByPeriod finds the non-cancelled settlement with exactly these bounds
	FindActiveByPeriod(ctx context.Context, partnerID uuid.UUID, period Period) (*Settlement, error)

	// FindOverlapping finds non-cancelled settlements of the partner whose window overlaps period
	FindOverlapping(ctx context.Context, partnerID uuid.UUID, period Period) ([]Settlement, error)

	// FindAll finds settlements matching the filter
	FindAll(ctx context.Context, filter Filter) ([]Settlement, error)

	// Count counts settlements matching the filter
	Count(ctx context.Context, filter Filter) (int64, error)

	// Create inserts a new settlement. A concurrent insert for the same
	// partner and period surfaces as shared.ErrConcurrencyConflict, an
	// overlapping window as shared.ErrInvalidPeriod.
	Create(ctx context.Context, s *Settlement) error

	// SaveWithLock updates the settlement if nobody changed it since it was loaded
	SaveWithLock(ctx context.Context, s *Settlement) error
}

// PayoutRepository persists payouts
type PayoutRepository interface {
	// FindByID finds a payout by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Payout, error)

	// FindBySettlement returns every payout attempt for a settlement, oldest first
	FindBySettlement(ctx context.Context, settlementID uuid.UUID) ([]Payout, error)

	// FindAll finds payouts matching the filter
	FindAll(ctx context.Context, filter PayoutFilter) ([]Payout, error)

	// Count counts payouts matching the filter
	Count(ctx context.Context, filter PayoutFilter) (int64, error)

	// Create inserts a new payout
	Create(ctx context.Context, p *Payout) error

	// Save updates an existing payout
	Save(ctx context.Context, p *Payout) error
}

// LedgerSource is the external transaction feed
type LedgerSource interface {
	// FetchUnsettled returns the partner's unsettled records with occurred_at in period
	FetchUnsettled(ctx context.Context, partnerID uuid.UUID, period Period) ([]TransactionRecord, error)

	// MarkSettled flips the records to settled. If any record was already
	// settled it returns shared.ErrConcurrencyConflict and marks nothing.
	MarkSettled(ctx context.Context, transactionIDs []uuid.UUID, settlementID uuid.UUID) error
}

// FeeScheduleProvider reads partner fee configuration
type FeeScheduleProvider interface {
	// GetFeeSchedule returns shared.ErrNotFound when the partner has no schedule
	GetFeeSchedule(ctx context.Context, partnerID uuid.UUID) (*FeeSchedule, error)
}

// DestinationResolver finds where a partner is paid
type DestinationResolver interface {
	// GetDestination returns shared.ErrNotFound when the partner has no destination
	GetDestination(ctx context.Context, partnerID uuid.UUID) (*Destination, error)
}
