package settlement

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/settlement"
)

// GenerateRequest asks for the settlement of one partner period
type GenerateRequest struct {
	PartnerID   uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	// SkipEmpty overrides the deployment's zero-transaction policy for this call.
	// nil keeps the configured default.
	SkipEmpty *bool
}

// GenerateResult is the outcome of Generate
type GenerateResult struct {
	Settlement *settlement.Settlement `json:"settlement,omitempty"`
	// Created is false when an existing settlement for the period was returned
	Created bool `json:"created"`
	// Skipped is true when the period had no transactions and the caller opted out
	Skipped bool `json:"skipped"`
}

// SettlementDetail is a settlement with its payout attempts
type SettlementDetail struct {
	Settlement *settlement.Settlement `json:"settlement"`
	Payouts    []settlement.Payout    `json:"payouts"`
}

// ManualPaymentRequest records an offline payment of a settlement
type ManualPaymentRequest struct {
	SettlementID uuid.UUID
	// Channel is how the money was actually moved (bank slip, cash, ...)
	Channel   string
	Reference string
}
