package settlement

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
)

// StatementRenderer renders a settlement statement document
type StatementRenderer interface {
	RenderStatementPDF(st *settlement.Settlement, payouts []settlement.Payout) ([]byte, error)
}

// StatementArchive stores rendered statements
type StatementArchive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// StatementArchiveHandler archives a statement PDF whenever a settlement is
// generated or paid, so the archived copy always reflects the latest state.
type StatementArchiveHandler struct {
	settlements settlement.SettlementRepository
	payouts     settlement.PayoutRepository
	renderer    StatementRenderer
	archive     StatementArchive
	logger      *zap.Logger
}

// NewStatementArchiveHandler creates a new StatementArchiveHandler
func NewStatementArchiveHandler(
	settlements settlement.SettlementRepository,
	payouts settlement.PayoutRepository,
	renderer StatementRenderer,
	archive StatementArchive,
	logger *zap.Logger,
) *StatementArchiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatementArchiveHandler{
		settlements: settlements,
		payouts:     payouts,
		renderer:    renderer,
		archive:     archive,
		logger:      logger,
	}
}

// EventTypes returns the event types this handler processes
func (h *StatementArchiveHandler) EventTypes() []string {
	return []string{settlement.EventTypeSettlementGenerated, settlement.EventTypeSettlementPaid}
}

// Handle renders and uploads the statement of the event's settlement
func (h *StatementArchiveHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	st, err := h.settlements.FindByID(ctx, event.AggregateID())
	if err != nil {
		return fmt.Errorf("failed to load settlement %s: %w", event.AggregateID(), err)
	}
	payouts, err := h.payouts.FindBySettlement(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("failed to load payouts: %w", err)
	}

	body, err := h.renderer.RenderStatementPDF(st, payouts)
	if err != nil {
		return fmt.Errorf("failed to render statement: %w", err)
	}

	key := StatementKey(st)
	if err := h.archive.Put(ctx, key, body, "application/pdf"); err != nil {
		return fmt.Errorf("failed to archive statement: %w", err)
	}

	h.logger.Info("Statement archived",
		zap.String("settlement_id", st.ID.String()),
		zap.String("event_type", event.EventType()),
		zap.String("key", key),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// StatementKey is the archive object key for a settlement's statement in its current status
func StatementKey(st *settlement.Settlement) string {
	return fmt.Sprintf("statements/%s/%s_%s/%s-%s.pdf",
		st.PartnerID,
		st.Period.Start.Format(time.DateOnly),
		st.Period.End.Format(time.DateOnly),
		st.ID,
		st.Status,
	)
}
