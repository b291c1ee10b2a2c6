package dunning

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/shared"
)

// EventTypeLevelChanged is published for every dunning transition
const EventTypeLevelChanged = "dunning.level_changed"

// LevelChangedEvent is raised when an account moves to a new dunning level
type LevelChangedEvent struct {
	shared.BaseDomainEvent
	LogID          uuid.UUID       `json:"log_id"`
	PreviousLevel  int             `json:"previous_level"`
	Level          int             `json:"level"`
	Action         string          `json:"action"`
	State          AccessStateName `json:"state"`
	OverdueCount   int             `json:"overdue_count"`
	MaxDaysOverdue int             `json:"max_days_overdue"`
	TotalOverdue   decimal.Decimal `json:"total_overdue"`
}

// NewLevelChangedEvent creates a new LevelChangedEvent
func NewLevelChangedEvent(entry *Log, summary OverdueSummary) *LevelChangedEvent {
	return &LevelChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLevelChanged, "DunningLog", entry.ID, entry.AccountID, entry.ExecutedAt),
		LogID:           entry.ID,
		PreviousLevel:   entry.PreviousLevel,
		Level:           entry.Level,
		Action:          entry.Action,
		State:           Resolve(entry.Level).State,
		OverdueCount:    summary.OverdueCount,
		MaxDaysOverdue:  summary.MaxDaysOverdue,
		TotalOverdue:    summary.TotalOverdue,
	}
}
