package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/metrics"
)

// MetricsHandler counts every published event and writes it to the debug log
type MetricsHandler struct {
	logger *zap.Logger
}

// NewMetricsHandler creates a wildcard subscriber for event metrics
func NewMetricsHandler(logger *zap.Logger) *MetricsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsHandler{logger: logger}
}

// EventTypes returns nil, subscribing to all events
func (h *MetricsHandler) EventTypes() []string {
	return nil
}

// Handle records the event
func (h *MetricsHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	metrics.IncEvent(event.EventType())
	h.logger.Debug("domain event",
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_type", event.AggregateType()),
		zap.String("aggregate_id", event.AggregateID().String()),
		zap.String("account_id", event.AccountID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	)
	return nil
}

var _ shared.EventHandler = (*MetricsHandler)(nil)
