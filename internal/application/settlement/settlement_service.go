package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/metrics"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
)

// maxGenerateAttempts bounds how often Generate re-reads after losing a race
const maxGenerateAttempts = 3

var errSkipEmpty = errors.New("empty period skipped")

// SettlementConfig holds the aggregator policy
type SettlementConfig struct {
	// CreateEmpty creates an auditable zero-amount settlement for periods
	// without transactions unless the request says otherwise.
	CreateEmpty bool
}

// SettlementService consolidates ledger records into settlements
type SettlementService struct {
	settlements settlement.SettlementRepository
	payouts     settlement.PayoutRepository
	fees        settlement.FeeScheduleProvider
	txScope     TransactionScope
	events      shared.EventPublisher
	clock       shared.Clock
	config      SettlementConfig
	logger      *zap.Logger
}

// NewSettlementService creates a new SettlementService
func NewSettlementService(
	settlements settlement.SettlementRepository,
	payouts settlement.PayoutRepository,
	fees settlement.FeeScheduleProvider,
	txScope TransactionScope,
	events shared.EventPublisher,
	clock shared.Clock,
	config SettlementConfig,
	logger *zap.Logger,
) *SettlementService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettlementService{
		settlements: settlements,
		payouts:     payouts,
		fees:        fees,
		txScope:     txScope,
		events:      events,
		clock:       clock,
		config:      config,
		logger:      logger,
	}
}

// Generate returns the settlement for the partner period, creating it from the
// partner's unsettled records when none exists. Repeating the call for the same
// period returns the same settlement and consumes nothing.
func (s *SettlementService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "settlement", "generate")
	defer span.End()
	start := time.Now()

	if req.PartnerID == uuid.Nil {
		err := shared.NewDomainError(shared.CodeInvalidInput, "partner ID is required")
		telemetry.RecordError(span, err)
		metrics.ObserveSettlementGenerate(metrics.ResultError, time.Since(start))
		return nil, err
	}
	period, err := settlement.NewPeriod(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		telemetry.RecordError(span, err)
		metrics.ObserveSettlementGenerate(metrics.ResultError, time.Since(start))
		return nil, err
	}

	skipEmpty := !s.config.CreateEmpty
	if req.SkipEmpty != nil {
		skipEmpty = *req.SkipEmpty
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPartnerID, req.PartnerID.String(),
		telemetry.SpanAttrPeriod, period.String(),
	)

	var result *GenerateResult
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("settlement.generate", nil), func(c context.Context) {
		result, err = s.generate(c, req.PartnerID, period, skipEmpty)
	})

	outcome := metrics.ResultSuccess
	switch {
	case err != nil:
		outcome = metrics.ResultError
		telemetry.RecordError(span, err)
	case result.Skipped:
		outcome = metrics.ResultSkipped
	case !result.Created:
		outcome = metrics.ResultExisting
	}
	metrics.ObserveSettlementGenerate(outcome, time.Since(start))
	if err != nil {
		return nil, err
	}

	if result.Settlement != nil {
		telemetry.SetAttributes(span,
			telemetry.SpanAttrSettlementID, result.Settlement.ID.String(),
			"created", result.Created,
		)
	}
	return result, nil
}

func (s *SettlementService) generate(ctx context.Context, partnerID uuid.UUID, period settlement.Period, skipEmpty bool) (*GenerateResult, error) {
	var lastConflict error
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		existing, err := s.findExisting(ctx, partnerID, period)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &GenerateResult{Settlement: existing}, nil
		}

		schedule, err := s.feeSchedule(ctx, partnerID)
		if err != nil {
			return nil, err
		}

		created, err := s.createFromLedger(ctx, partnerID, period, schedule, skipEmpty)
		switch {
		case err == nil:
			s.afterCreate(ctx, created)
			return &GenerateResult{Settlement: created, Created: true}, nil
		case errors.Is(err, errSkipEmpty):
			s.logger.Info("Skipped settlement for empty period",
				zap.String("partner_id", partnerID.String()),
				zap.String("period", period.String()),
			)
			return &GenerateResult{Skipped: true}, nil
		case errors.Is(err, shared.ErrConcurrencyConflict):
			// another writer settled this period or some of its records; re-read its result
			s.logger.Info("Lost settlement race, resolving winner",
				zap.String("partner_id", partnerID.String()),
				zap.String("period", period.String()),
				zap.Int("attempt", attempt),
			)
			lastConflict = err
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("failed to resolve concurrent settlement for %s: %w", period, lastConflict)
}

// findExisting returns the active settlement with exactly these bounds, nil
// when there is none, or InvalidPeriod when a different window overlaps.
func (s *SettlementService) findExisting(ctx context.Context, partnerID uuid.UUID, period settlement.Period) (*settlement.Settlement, error) {
	existing, err := s.settlements.FindActiveByPeriod(ctx, partnerID, period)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up settlement: %w", err)
	}

	overlapping, err := s.settlements.FindOverlapping(ctx, partnerID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to check overlapping settlements: %w", err)
	}
	for _, o := range overlapping {
		if !o.Period.Equal(period) {
			return nil, shared.NewDomainError(shared.CodeInvalidPeriod,
				fmt.Sprintf("period %s overlaps settlement %s covering %s", period, o.ID, o.Period))
		}
	}
	return nil, nil
}

func (s *SettlementService) feeSchedule(ctx context.Context, partnerID uuid.UUID) (*settlement.FeeSchedule, error) {
	schedule, err := s.fees.GetFeeSchedule(ctx, partnerID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.WrapDomainError(shared.CodeDataInconsistency,
			fmt.Sprintf("partner %s has no fee schedule", partnerID), err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fee schedule: %w", err)
	}
	return schedule, nil
}

// createFromLedger computes and persists the statement, marking the consumed
// records settled in the same transaction.
func (s *SettlementService) createFromLedger(
	ctx context.Context,
	partnerID uuid.UUID,
	period settlement.Period,
	schedule *settlement.FeeSchedule,
	skipEmpty bool,
) (*settlement.Settlement, error) {
	var created *settlement.Settlement
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		records, err := repos.Ledger().FetchUnsettled(ctx, partnerID, period)
		if err != nil {
			return shared.WrapDomainError(shared.CodeDataInconsistency, "failed to read ledger", err)
		}
		if len(records) == 0 && skipEmpty {
			return errSkipEmpty
		}

		stmt, err := settlement.ComputeStatement(records, schedule)
		if err != nil {
			return err
		}
		st, err := settlement.NewSettlement(partnerID, period, stmt, s.clock.Now())
		if err != nil {
			return err
		}
		if err := repos.Settlements().Create(ctx, st); err != nil {
			return err
		}
		if len(records) > 0 {
			if err := repos.Ledger().MarkSettled(ctx, settlement.TransactionIDs(records), st.ID); err != nil {
				return err
			}
		}
		created = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *SettlementService) afterCreate(ctx context.Context, st *settlement.Settlement) {
	s.logger.Info("Settlement generated",
		zap.String("settlement_id", st.ID.String()),
		zap.String("partner_id", st.PartnerID.String()),
		zap.String("period", st.Period.String()),
		zap.String("total_gross", st.TotalGross.String()),
		zap.String("total_partner_net", st.TotalPartnerNet.String()),
		zap.Int("transaction_count", st.TransactionCount),
	)
	metrics.AddSettledAmounts(st.TotalGross.InexactFloat64(), st.TotalPlatformFee.InexactFloat64(), st.TotalPartnerNet.InexactFloat64())
	publishEvents(ctx, s.events, s.logger, st)
}

// GetSettlement returns a settlement by ID
func (s *SettlementService) GetSettlement(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	return s.settlements.FindByID(ctx, id)
}

// GetSettlementDetail returns a settlement with every payout attempt made against it
func (s *SettlementService) GetSettlementDetail(ctx context.Context, id uuid.UUID) (*SettlementDetail, error) {
	st, err := s.settlements.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	payouts, err := s.payouts.FindBySettlement(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payouts: %w", err)
	}
	return &SettlementDetail{Settlement: st, Payouts: payouts}, nil
}

// ListSettlements returns a page of settlements matching the filter
func (s *SettlementService) ListSettlements(ctx context.Context, filter settlement.Filter) (shared.Paginated[settlement.Settlement], error) {
	filter.Filter = filter.Filter.Normalize()
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return shared.Paginated[settlement.Settlement]{}, shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("unknown settlement status %q", status))
		}
	}

	items, err := s.settlements.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[settlement.Settlement]{}, fmt.Errorf("failed to list settlements: %w", err)
	}
	total, err := s.settlements.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[settlement.Settlement]{}, fmt.Errorf("failed to count settlements: %w", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// publishEvents publishes and clears the aggregate's pending events. The
// state change is already committed, so a publish failure is only logged.
func publishEvents(ctx context.Context, publisher shared.EventPublisher, logger *zap.Logger, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if publisher == nil || len(events) == 0 {
		return
	}
	if err := publisher.Publish(ctx, events...); err != nil {
		logger.Warn("Failed to publish domain events",
			zap.String("aggregate_id", agg.GetID().String()),
			zap.Error(err),
		)
	}
}
