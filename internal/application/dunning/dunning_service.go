package dunning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/metrics"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
)

// maxEvaluateAttempts allows one re-evaluation after losing the sequence race
const maxEvaluateAttempts = 2

// Config holds the dunning policy and batch limits
type Config struct {
	Policy dunning.Policy
	// MaxParallel bounds concurrent evaluations in EvaluateAccounts
	MaxParallel int
}

// DunningService evaluates overdue invoices into dunning levels and access states
type DunningService struct {
	invoices  dunning.InvoiceStore
	logs      dunning.LogRepository
	overrides dunning.OverrideRepository
	locker    dunning.AccountLocker
	txScope   TransactionScope
	events    shared.EventPublisher
	clock     shared.Clock
	config    Config
	logger    *zap.Logger
}

// NewDunningService creates a new DunningService. The policy must be valid.
func NewDunningService(
	invoices dunning.InvoiceStore,
	logs dunning.LogRepository,
	overrides dunning.OverrideRepository,
	locker dunning.AccountLocker,
	txScope TransactionScope,
	events shared.EventPublisher,
	clock shared.Clock,
	config Config,
	logger *zap.Logger,
) (*DunningService, error) {
	if err := config.Policy.Validate(); err != nil {
		return nil, err
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = 8
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DunningService{
		invoices:  invoices,
		logs:      logs,
		overrides: overrides,
		locker:    locker,
		txScope:   txScope,
		events:    events,
		clock:     clock,
		config:    config,
		logger:    logger,
	}, nil
}

// Evaluate recomputes the account's dunning level and records a transition
// when it changed. Evaluations of one account never interleave.
func (s *DunningService) Evaluate(ctx context.Context, accountID uuid.UUID) (*EvaluationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dunning", "evaluate")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAccountID, accountID.String())
	start := time.Now()

	var (
		result *EvaluationResult
		err    error
	)
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("dunning.evaluate", nil), func(c context.Context) {
		result, err = s.evaluateLocked(c, accountID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		metrics.ObserveDunningEvaluate(metrics.ResultError, false, time.Since(start))
		return nil, err
	}

	metrics.ObserveDunningEvaluate(metrics.ResultSuccess, result.Changed, time.Since(start))
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDunningLevel, result.Level,
		"changed", result.Changed,
	)
	return result, nil
}

func (s *DunningService) evaluateLocked(ctx context.Context, accountID uuid.UUID) (*EvaluationResult, error) {
	if accountID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "account ID is required")
	}

	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeLockNotAcquired,
			fmt.Sprintf("account %s is being evaluated by another process", accountID), err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxEvaluateAttempts; attempt++ {
		result, err := s.evaluateOnce(ctx, accountID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		s.logger.Info("Dunning sequence taken concurrently, re-evaluating",
			zap.String("account_id", accountID.String()),
			zap.Int("attempt", attempt),
		)
		lastErr = err
	}
	return nil, fmt.Errorf("failed to record dunning transition for account %s: %w", accountID, lastErr)
}

func (s *DunningService) evaluateOnce(ctx context.Context, accountID uuid.UUID) (*EvaluationResult, error) {
	now := s.clock.Now()

	invoices, err := s.invoices.ListOpenInvoices(ctx, accountID)
	if err != nil {
		return nil, shared.WrapDomainError(shared.CodeDataInconsistency,
			fmt.Sprintf("failed to read invoices of account %s", accountID), err)
	}
	summary := dunning.Summarize(invoices, now)
	level := s.config.Policy.Level(summary)

	latest, err := s.logs.LatestActive(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read dunning history: %w", err)
	}
	current := dunning.LevelNone
	if latest != nil {
		current = latest.Level
	}

	result := &EvaluationResult{
		AccountID:     accountID,
		Level:         level,
		PreviousLevel: current,
		Summary:       summary,
	}
	if level == current {
		state, err := s.resolve(ctx, accountID, level, now)
		if err != nil {
			return nil, err
		}
		result.AccessState = state
		return result, nil
	}

	entry, err := dunning.NewTransition(accountID, latest, level, summary, now)
	if err != nil {
		return nil, err
	}
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.Logs().Append(ctx, entry); err != nil {
			return err
		}
		if level < current {
			reversed, err := repos.Logs().ReverseAbove(ctx, accountID, level, now)
			if err != nil {
				return fmt.Errorf("failed to reverse lifted restrictions: %w", err)
			}
			result.Reversed = reversed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Changed = true
	result.Entry = entry
	state, err := s.resolve(ctx, accountID, level, now)
	if err != nil {
		return nil, err
	}
	result.AccessState = state

	s.logger.Info("Dunning level changed",
		zap.String("account_id", accountID.String()),
		zap.Int("previous_level", current),
		zap.Int("level", level),
		zap.String("action", entry.Action),
		zap.Int64("reversed", result.Reversed),
	)
	metrics.IncDunningTransition(entry.Action)
	if s.events != nil {
		if err := s.events.Publish(ctx, dunning.NewLevelChangedEvent(entry, summary)); err != nil {
			s.logger.Warn("Failed to publish dunning event", zap.Error(err))
		}
	}
	return result, nil
}

// EvaluateAccounts evaluates each distinct account with bounded parallelism.
// A failing account does not stop the batch; its result carries the error.
func (s *DunningService) EvaluateAccounts(ctx context.Context, accountIDs []uuid.UUID) []EvaluationResult {
	ctx, span := telemetry.StartServiceSpan(ctx, "dunning", "evaluate_accounts")
	defer span.End()

	seen := make(map[uuid.UUID]struct{}, len(accountIDs))
	unique := make([]uuid.UUID, 0, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrCount, len(unique))

	results := make([]EvaluationResult, len(unique))
	var g errgroup.Group
	g.SetLimit(s.config.MaxParallel)
	for i, id := range unique {
		g.Go(func() error {
			res, err := s.Evaluate(ctx, id)
			if err != nil {
				results[i] = EvaluationResult{AccountID: id, Error: err.Error()}
				return nil
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// MarkInvoicePaid settles an invoice and re-evaluates its account
func (s *DunningService) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID) (*EvaluationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dunning", "mark_invoice_paid")
	defer span.End()

	inv, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if inv.Status == dunning.InvoiceStatusCanceled {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("invoice %s is canceled", inv.ID))
	}
	if inv.Status != dunning.InvoiceStatusPaid {
		if err := s.invoices.MarkPaid(ctx, invoiceID); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to mark invoice %s paid: %w", invoiceID, err)
		}
		s.logger.Info("Invoice marked paid",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("account_id", inv.AccountID.String()),
		)
	}
	return s.Evaluate(ctx, inv.AccountID)
}

// GetAccessState resolves what the account may currently do
func (s *DunningService) GetAccessState(ctx context.Context, accountID uuid.UUID) (dunning.AccessState, error) {
	latest, err := s.logs.LatestActive(ctx, accountID)
	if err != nil {
		return dunning.AccessState{}, fmt.Errorf("failed to read dunning history: %w", err)
	}
	level := dunning.LevelNone
	if latest != nil {
		level = latest.Level
	}
	return s.resolve(ctx, accountID, level, s.clock.Now())
}

func (s *DunningService) resolve(ctx context.Context, accountID uuid.UUID, level int, now time.Time) (dunning.AccessState, error) {
	override, err := s.overrides.FindByAccount(ctx, accountID)
	if err != nil {
		return dunning.AccessState{}, fmt.Errorf("failed to read access override: %w", err)
	}
	return dunning.ResolveWithOverride(level, override, now), nil
}

// ListLogs returns a page of the account's dunning history, newest first
func (s *DunningService) ListLogs(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (shared.Paginated[dunning.Log], error) {
	filter = filter.Normalize()
	items, err := s.logs.ListByAccount(ctx, accountID, filter)
	if err != nil {
		return shared.Paginated[dunning.Log]{}, fmt.Errorf("failed to list dunning logs: %w", err)
	}
	total, err := s.logs.CountByAccount(ctx, accountID)
	if err != nil {
		return shared.Paginated[dunning.Log]{}, fmt.Errorf("failed to count dunning logs: %w", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// SetAccessOverride replaces the account's override
func (s *DunningService) SetAccessOverride(ctx context.Context, req SetOverrideRequest) (*dunning.Override, error) {
	override, err := dunning.NewOverride(req.AccountID, req.State, req.Reason, req.ExpiresAt, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.overrides.Upsert(ctx, override); err != nil {
		return nil, fmt.Errorf("failed to save access override: %w", err)
	}
	s.logger.Info("Access override set",
		zap.String("account_id", req.AccountID.String()),
		zap.String("state", string(req.State)),
		zap.String("reason", req.Reason),
	)
	return override, nil
}

// ClearAccessOverride removes the account's override
func (s *DunningService) ClearAccessOverride(ctx context.Context, accountID uuid.UUID) error {
	if err := s.overrides.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("failed to clear access override: %w", err)
	}
	s.logger.Info("Access override cleared", zap.String("account_id", accountID.String()))
	return nil
}
