package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionRecord is one financial event from the external earnings feed.
// Records are immutable; Settled flips exactly once when a settlement consumes them.
type TransactionRecord struct {
	ID            uuid.UUID       `json:"id"`
	PartnerID     uuid.UUID       `json:"partner_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	GrossAmount   decimal.Decimal `json:"gross_amount"`
	PaymentMethod string          `json:"payment_method"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Settled       bool            `json:"settled"`
	SettlementID  *uuid.UUID      `json:"settlement_id,omitempty"`
}

// TransactionIDs collects record ids in input order
func TransactionIDs(records []TransactionRecord) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
