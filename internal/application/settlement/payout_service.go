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

// PayoutConfig bounds provider interaction
type PayoutConfig struct {
	// Timeout bounds a single provider call
	Timeout time.Duration
	// ReconcileAttempts is how many status queries resolve an unknown outcome
	ReconcileAttempts int
	// ReconcileInterval is the wait between status queries
	ReconcileInterval time.Duration
}

// DefaultPayoutConfig returns the default provider bounds
func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		Timeout:           30 * time.Second,
		ReconcileAttempts: 3,
		ReconcileInterval: 2 * time.Second,
	}
}

// PayoutService executes and reconciles payouts against settlements
type PayoutService struct {
	settlements  settlement.SettlementRepository
	payouts      settlement.PayoutRepository
	destinations settlement.DestinationResolver
	provider     settlement.PayoutProvider
	txScope      TransactionScope
	events       shared.EventPublisher
	clock        shared.Clock
	config       PayoutConfig
	logger       *zap.Logger
}

// NewPayoutService creates a new PayoutService
func NewPayoutService(
	settlements settlement.SettlementRepository,
	payouts settlement.PayoutRepository,
	destinations settlement.DestinationResolver,
	provider settlement.PayoutProvider,
	txScope TransactionScope,
	events shared.EventPublisher,
	clock shared.Clock,
	config PayoutConfig,
	logger *zap.Logger,
) *PayoutService {
	defaults := DefaultPayoutConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ReconcileAttempts <= 0 {
		config.ReconcileAttempts = defaults.ReconcileAttempts
	}
	if config.ReconcileInterval < 0 {
		config.ReconcileInterval = 0
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayoutService{
		settlements:  settlements,
		payouts:      payouts,
		destinations: destinations,
		provider:     provider,
		txScope:      txScope,
		events:       events,
		clock:        clock,
		config:       config,
		logger:       logger,
	}
}

// ExecutePayout pays a pending settlement through the provider.
//
// The settlement is claimed (pending -> processing) and committed before the
// provider is called, so a concurrent call fails with InvalidState instead of
// paying twice. A definite failure returns the settlement to pending; an
// unknown outcome leaves both records processing until ReconcilePayout
// resolves them.
func (s *PayoutService) ExecutePayout(ctx context.Context, settlementID uuid.UUID) (*settlement.Payout, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payout", "execute")
	defer span.End()
	start := time.Now()
	telemetry.SetAttributes(span, telemetry.SpanAttrSettlementID, settlementID.String())

	var (
		payout *settlement.Payout
		err    error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("payout.execute", nil), func(c context.Context) {
		payout, err = s.execute(c, settlementID)
	})

	metrics.ObservePayout(payoutOutcome(payout, err), time.Since(start))
	if err != nil {
		telemetry.RecordError(span, err)
		return payout, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPayoutID, payout.ID.String(),
		telemetry.SpanAttrPayoutStatus, payout.Status.String(),
	)
	return payout, nil
}

func (s *PayoutService) execute(ctx context.Context, settlementID uuid.UUID) (*settlement.Payout, error) {
	st, err := s.settlements.FindByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if st.Status != settlement.StatusPending {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("settlement %s is %s, only pending settlements can be paid out", st.ID, st.Status))
	}
	if !st.TotalPartnerNet.IsPositive() {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("settlement %s has nothing to transfer (net %s), mark it paid manually", st.ID, st.TotalPartnerNet))
	}

	// claim
	if err := st.StartProcessing(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.settlements.SaveWithLock(ctx, st); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, shared.WrapDomainError(shared.CodeInvalidState,
				fmt.Sprintf("settlement %s is already being paid out", st.ID), err)
		}
		return nil, fmt.Errorf("failed to claim settlement: %w", err)
	}

	// From here on the settlement is ours; writes must not be abandoned
	// because the caller went away.
	bg := context.WithoutCancel(ctx)

	dest, err := s.destinations.GetDestination(ctx, st.PartnerID)
	if err == nil {
		err = dest.Validate()
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || shared.ErrorCode(err) == shared.CodeDestinationMissing {
			err = shared.WrapDomainError(shared.CodeDataInconsistency,
				fmt.Sprintf("partner %s has no usable payout destination", st.PartnerID), err)
		} else {
			err = fmt.Errorf("failed to resolve payout destination: %w", err)
		}
		return nil, errors.Join(err, s.revertClaim(bg, st, "payout destination missing"))
	}

	payout, err := settlement.NewPayout(st, dest.Method, *dest, s.clock.Now())
	if err != nil {
		return nil, errors.Join(err, s.revertClaim(bg, st, "payout could not be created"))
	}
	if err := s.payouts.Create(bg, payout); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create payout: %w", err), s.revertClaim(bg, st, "payout could not be recorded"))
	}
	if err := payout.MarkProcessing(s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.payouts.Save(bg, payout); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to mark payout processing: %w", err), s.failPayout(bg, st, payout, "payout could not be recorded"))
	}

	s.logger.Info("Submitting payout",
		zap.String("settlement_id", st.ID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.String("amount", payout.Amount.String()),
		zap.String("method", payout.PayoutMethod),
	)

	result, err := s.transfer(ctx, payout)
	switch {
	case err == nil && result.Status == settlement.ProviderStatusPaid:
		return s.finalizePaid(bg, st, payout, result.Reference)
	case err == nil && result.Status == settlement.ProviderStatusFailed:
		return s.finalizeFailed(bg, st, payout, providerReason(result.FailureReason, "transfer failed at provider"))
	case errors.Is(err, settlement.ErrProviderRejected):
		return s.finalizeFailed(bg, st, payout, err.Error())
	case err == nil:
		// accepted but not final
		if result.Reference != "" {
			payout.ProviderReference = result.Reference
			if saveErr := s.payouts.Save(bg, payout); saveErr != nil {
				s.logger.Warn("Failed to record provider reference",
					zap.String("payout_id", payout.ID.String()),
					zap.Error(saveErr),
				)
			}
		}
		return s.reconcile(bg, st, payout, nil, false)
	default:
		s.logger.Warn("Payout outcome unknown, querying provider",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(err),
		)
		return s.reconcile(bg, st, payout, err, false)
	}
}

func (s *PayoutService) transfer(ctx context.Context, payout *settlement.Payout) (*settlement.TransferResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	result, err := s.provider.Transfer(callCtx, settlement.TransferRequest{
		ClientReference: payout.ClientReference,
		Amount:          payout.Amount,
		Destination:     payout.Destination,
		Description:     fmt.Sprintf("settlement %s", payout.SettlementID),
	})
	if err == nil && result == nil {
		err = fmt.Errorf("%w: empty transfer response", settlement.ErrProviderUnavailable)
	}
	if err != nil && callCtx.Err() != nil && !errors.Is(err, settlement.ErrProviderTimeout) {
		err = fmt.Errorf("%w: %v", settlement.ErrProviderTimeout, err)
	}
	metrics.ObserveProviderCall("transfer", callResult(err), time.Since(start))
	return result, err
}

func (s *PayoutService) queryStatus(ctx context.Context, reference string) (settlement.ProviderStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	status, err := s.provider.QueryStatus(callCtx, reference)
	metrics.ObserveProviderCall("query_status", callResult(err), time.Since(start))
	return status, err
}

// reconcile asks the provider what happened to a transfer whose outcome is
// unknown and finalizes the payout when the answer is definite.
//
// Right after a timed-out transfer the request may still be in flight, so a
// not-found answer only fails the payout when notFoundIsFinal is set and the
// last query of the round still did not find it.
func (s *PayoutService) reconcile(ctx context.Context, st *settlement.Settlement, payout *settlement.Payout, cause error, notFoundIsFinal bool) (*settlement.Payout, error) {
	lastErr := cause
	notFound := false
	for attempt := 1; attempt <= s.config.ReconcileAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.config.ReconcileInterval); err != nil {
				break
			}
		}

		status, err := s.queryStatus(ctx, payout.QueryReference())
		notFound = errors.Is(err, settlement.ErrProviderNotFound)
		switch {
		case notFound:
			lastErr = err
			s.logger.Info("Transfer not known to provider yet",
				zap.String("payout_id", payout.ID.String()),
				zap.Int("attempt", attempt),
			)
			continue
		case err != nil:
			lastErr = err
			s.logger.Warn("Payout status query failed",
				zap.String("payout_id", payout.ID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		case status == settlement.ProviderStatusPaid:
			return s.finalizePaid(ctx, st, payout, payout.ProviderReference)
		case status == settlement.ProviderStatusFailed:
			return s.finalizeFailed(ctx, st, payout, "provider reported the transfer as failed")
		default:
			lastErr = fmt.Errorf("provider reports transfer %s as %s", payout.QueryReference(), status)
		}
	}

	if notFound && notFoundIsFinal {
		return s.finalizeFailed(ctx, st, payout, "transfer was never received by the provider")
	}

	s.logger.Warn("Payout outcome still unknown after reconciliation",
		zap.String("payout_id", payout.ID.String()),
		zap.String("settlement_id", st.ID.String()),
		zap.Int("attempts", s.config.ReconcileAttempts),
	)
	msg := fmt.Sprintf("outcome of payout %s is unknown, reconcile it later", payout.ID)
	if lastErr == nil {
		return payout, shared.NewDomainError(shared.CodeOutcomeUnknown, msg)
	}
	return payout, shared.WrapDomainError(shared.CodeOutcomeUnknown, msg, lastErr)
}

func (s *PayoutService) finalizePaid(ctx context.Context, st *settlement.Settlement, payout *settlement.Payout, reference string) (*settlement.Payout, error) {
	if reference == "" {
		reference = payout.ClientReference
	}
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := s.clock.Now()
		if err := payout.MarkPaid(reference, now); err != nil {
			return err
		}
		if err := repos.Payouts().Save(ctx, payout); err != nil {
			return fmt.Errorf("failed to save payout: %w", err)
		}
		if err := st.MarkPaid(payout, now); err != nil {
			return err
		}
		return repos.Settlements().SaveWithLock(ctx, st)
	})
	if err != nil {
		return payout, fmt.Errorf("failed to record paid payout %s: %w", payout.ID, err)
	}

	s.logger.Info("Payout paid",
		zap.String("settlement_id", st.ID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.String("provider_reference", payout.ProviderReference),
	)
	publishEvents(ctx, s.events, s.logger, st)
	return payout, nil
}

func (s *PayoutService) finalizeFailed(ctx context.Context, st *settlement.Settlement, payout *settlement.Payout, reason string) (*settlement.Payout, error) {
	if err := s.failPayout(ctx, st, payout, reason); err != nil {
		return payout, fmt.Errorf("failed to record failed payout %s: %w", payout.ID, err)
	}

	s.logger.Warn("Payout failed",
		zap.String("settlement_id", st.ID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.String("reason", reason),
	)
	s.publish(ctx, settlement.NewPayoutFailedEvent(payout))
	publishEvents(ctx, s.events, s.logger, st)
	return payout, shared.NewDomainError(shared.CodeProviderError,
		fmt.Sprintf("payout %s failed: %s", payout.ID, reason))
}

func (s *PayoutService) failPayout(ctx context.Context, st *settlement.Settlement, payout *settlement.Payout, reason string) error {
	return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := s.clock.Now()
		if err := payout.MarkFailed(reason, now); err != nil {
			return err
		}
		if err := repos.Payouts().Save(ctx, payout); err != nil {
			return fmt.Errorf("failed to save payout: %w", err)
		}
		if err := st.RevertToPending(reason, now); err != nil {
			return err
		}
		return repos.Settlements().SaveWithLock(ctx, st)
	})
}

func (s *PayoutService) revertClaim(ctx context.Context, st *settlement.Settlement, reason string) error {
	if err := st.RevertToPending(reason, s.clock.Now()); err != nil {
		return err
	}
	if err := s.settlements.SaveWithLock(ctx, st); err != nil {
		s.logger.Error("Failed to release settlement claim",
			zap.String("settlement_id", st.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to release settlement %s: %w", st.ID, err)
	}
	return nil
}

// ReconcilePayout resolves a payout left processing by an unknown outcome.
// Payouts already paid or failed are returned unchanged. A transfer the
// provider still does not know after every query is failed, which returns
// the settlement to pending.
func (s *PayoutService) ReconcilePayout(ctx context.Context, payoutID uuid.UUID) (*settlement.Payout, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payout", "reconcile")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPayoutID, payoutID.String())
	start := time.Now()

	payout, err := s.payouts.FindByID(ctx, payoutID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if payout.Status.IsTerminal() {
		return payout, nil
	}

	st, err := s.settlements.FindByID(ctx, payout.SettlementID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load settlement of payout %s: %w", payout.ID, err)
	}
	if st.Status != settlement.StatusProcessing {
		err := shared.NewDomainError(shared.CodeDataInconsistency,
			fmt.Sprintf("payout %s is %s but settlement %s is %s", payout.ID, payout.Status, st.ID, st.Status))
		telemetry.RecordError(span, err)
		return nil, err
	}
	if payout.Status == settlement.PayoutStatusPending {
		// the provider may never have been called; only a status query can tell
		if err := payout.MarkProcessing(s.clock.Now()); err != nil {
			return nil, err
		}
	}

	payout, err = s.reconcile(context.WithoutCancel(ctx), st, payout, nil, true)
	metrics.ObservePayout(payoutOutcome(payout, err), time.Since(start))
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return payout, err
}

// MarkSettlementPaidManually records a payment made outside the provider.
// The payout is stored with method "manual" and the caller's channel.
func (s *PayoutService) MarkSettlementPaidManually(ctx context.Context, req ManualPaymentRequest) (*settlement.Payout, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payout", "mark_paid_manually")
	defer span.End()
	start := time.Now()
	telemetry.SetAttributes(span, telemetry.SpanAttrSettlementID, req.SettlementID.String())

	if req.Channel == "" {
		err := shared.NewDomainError(shared.CodeInvalidInput, "payment channel is required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	var (
		st     *settlement.Settlement
		payout *settlement.Payout
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		st, err = repos.Settlements().FindByID(ctx, req.SettlementID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := st.StartProcessing(now); err != nil {
			return err
		}
		if err := repos.Settlements().SaveWithLock(ctx, st); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				return shared.WrapDomainError(shared.CodeInvalidState,
					fmt.Sprintf("settlement %s is already being paid out", st.ID), err)
			}
			return err
		}

		payout, err = settlement.NewPayout(st, settlement.PayoutMethodManual, settlement.Destination{}, now)
		if err != nil {
			return err
		}
		payout.Channel = req.Channel
		if err := payout.MarkPaid(req.Reference, now); err != nil {
			return err
		}
		if err := repos.Payouts().Create(ctx, payout); err != nil {
			return fmt.Errorf("failed to create payout: %w", err)
		}
		if err := st.MarkPaid(payout, now); err != nil {
			return err
		}
		return repos.Settlements().SaveWithLock(ctx, st)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		metrics.ObservePayout(metrics.ResultError, time.Since(start))
		return nil, err
	}

	metrics.ObservePayout(metrics.PayoutResultManual, time.Since(start))
	s.logger.Info("Settlement marked paid manually",
		zap.String("settlement_id", st.ID.String()),
		zap.String("payout_id", payout.ID.String()),
		zap.String("channel", payout.Channel),
	)
	publishEvents(ctx, s.events, s.logger, st)
	return payout, nil
}

// GetPayout returns a payout by ID
func (s *PayoutService) GetPayout(ctx context.Context, id uuid.UUID) (*settlement.Payout, error) {
	return s.payouts.FindByID(ctx, id)
}

// ListPayouts returns a page of payouts matching the filter
func (s *PayoutService) ListPayouts(ctx context.Context, filter settlement.PayoutFilter) (shared.Paginated[settlement.Payout], error) {
	filter.Filter = filter.Filter.Normalize()
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return shared.Paginated[settlement.Payout]{}, shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("unknown payout status %q", status))
		}
	}

	items, err := s.payouts.FindAll(ctx, filter)
	if err != nil {
		return shared.Paginated[settlement.Payout]{}, fmt.Errorf("failed to list payouts: %w", err)
	}
	total, err := s.payouts.Count(ctx, filter)
	if err != nil {
		return shared.Paginated[settlement.Payout]{}, fmt.Errorf("failed to count payouts: %w", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

func (s *PayoutService) publish(ctx context.Context, event shared.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event", zap.String("event_type", event.EventType()), zap.Error(err))
	}
}

func payoutOutcome(p *settlement.Payout, err error) string {
	switch {
	case shared.ErrorCode(err) == shared.CodeOutcomeUnknown:
		return metrics.PayoutResultUnknown
	case p != nil && p.Status == settlement.PayoutStatusFailed:
		return metrics.PayoutResultFailed
	case err != nil:
		return metrics.ResultError
	case p != nil && p.Status == settlement.PayoutStatusPaid:
		return metrics.PayoutResultPaid
	default:
		return metrics.PayoutResultUnknown
	}
}

func callResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, settlement.ErrProviderTimeout):
		return "timeout"
	case errors.Is(err, settlement.ErrProviderRejected):
		return "rejected"
	case errors.Is(err, settlement.ErrProviderNotFound):
		return "not_found"
	default:
		return metrics.ResultError
	}
}

func providerReason(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
