package dunning

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/dunning"
)

// EvaluationResult is the outcome of evaluating one account
type EvaluationResult struct {
	AccountID     uuid.UUID              `json:"account_id"`
	Level         int                    `json:"dunning_level"`
	PreviousLevel int                    `json:"previous_level"`
	Changed       bool                   `json:"changed"`
	AccessState   dunning.AccessState    `json:"access_state"`
	Summary       dunning.OverdueSummary `json:"summary"`
	Entry         *dunning.Log           `json:"entry,omitempty"`
	// Reversed is the number of earlier entries whose restriction was lifted
	Reversed int64 `json:"reversed"`
	// Error is set in batch results when this account failed
	Error string `json:"error,omitempty"`
}

// SetOverrideRequest forces an account's access state
type SetOverrideRequest struct {
	AccountID uuid.UUID
	State     dunning.AccessStateName
	Reason    string
	ExpiresAt *time.Time
}
