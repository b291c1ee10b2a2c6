package dunning

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/shared"
)

// Actions recorded on transitions
const (
	ActionEscalatedToWarning  = "escalated_to_warning"
	ActionEscalatedToReadOnly = "escalated_to_read_only"
	ActionEscalatedToBlocked  = "escalated_to_blocked"
	ActionReducedToWarning    = "reduced_to_warning"
	ActionReducedToReadOnly   = "reduced_to_read_only"
	ActionReducedToBlocked    = "reduced_to_blocked"
	ActionRevertedToNormal    = "reverted_to_normal"
)

// Log is one append-only dunning transition of an account
type Log struct {
	ID            uuid.UUID  `json:"id"`
	AccountID     uuid.UUID  `json:"account_id"`
	Sequence      int64      `json:"sequence"`
	Level         int        `json:"dunning_level"`
	PreviousLevel int        `json:"previous_level"`
	Action        string     `json:"action"`
	Description   string     `json:"description,omitempty"`
	ExecutedAt    time.Time  `json:"executed_at"`
	ReversedAt    *time.Time `json:"reversed_at,omitempty"`
}

// IsReversed reports whether the restriction introduced by this entry was lifted
func (l *Log) IsReversed() bool {
	return l.ReversedAt != nil
}

// NewTransition builds the log entry for moving an account from one level to another.
// prev is the account's latest entry, nil when the account has no history.
func NewTransition(accountID uuid.UUID, prev *Log, to int, summary OverdueSummary, now time.Time) (*Log, error) {
	from := LevelNone
	var seq int64 = 1
	if prev != nil {
		from = prev.Level
		seq = prev.Sequence + 1
	}
	if to < LevelNone {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "dunning level cannot be negative")
	}
	if to == from {
		return nil, shared.NewDomainError(shared.CodeInvalidState,
			fmt.Sprintf("account %s is already at dunning level %d", accountID, to))
	}
	return &Log{
		ID:            uuid.New(),
		AccountID:     accountID,
		Sequence:      seq,
		Level:         to,
		PreviousLevel: from,
		Action:        ActionFor(from, to),
		Description:   describe(from, to, summary),
		ExecutedAt:    now,
	}, nil
}

// ActionFor names the transition from -> to
func ActionFor(from, to int) string {
	if to == LevelNone {
		return ActionRevertedToNormal
	}
	escalating := to > from
	switch Resolve(to).State {
	case AccessStateBlocked:
		if escalating {
			return ActionEscalatedToBlocked
		}
		return ActionReducedToBlocked
	case AccessStateReadOnly:
		if escalating {
			return ActionEscalatedToReadOnly
		}
		return ActionReducedToReadOnly
	default:
		if escalating {
			return ActionEscalatedToWarning
		}
		return ActionReducedToWarning
	}
}

func describe(from, to int, summary OverdueSummary) string {
	if to == LevelNone {
		return fmt.Sprintf("level %d -> %d: no overdue invoices", from, to)
	}
	return fmt.Sprintf("level %d -> %d: %d overdue invoice(s), oldest %d day(s) overdue, %s outstanding",
		from, to, summary.OverdueCount, summary.MaxDaysOverdue, summary.TotalOverdue.StringFixed(2))
}
