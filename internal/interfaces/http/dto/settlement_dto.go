package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/shared"
)

// GenerateSettlementRequest asks for the settlement of one partner period.
// The period is half-open: [period_start, period_end).
type GenerateSettlementRequest struct {
	PartnerID   string    `json:"partner_id" binding:"required,uuid"`
	PeriodStart time.Time `json:"period_start" binding:"required"`
	PeriodEnd   time.Time `json:"period_end" binding:"required"`
	// SkipEmpty overrides the deployment's zero-transaction policy
	SkipEmpty *bool `json:"skip_empty"`
}

// ListSettlementsRequest filters the settlement list
type ListSettlementsRequest struct {
	ListRequest
	PartnerID  string    `form:"partner_id" binding:"omitempty,uuid"`
	Status     []string  `form:"status" binding:"omitempty,dive,oneof=pending processing paid completed failed cancelled"`
	PeriodFrom time.Time `form:"period_from"`
	PeriodTo   time.Time `form:"period_to"`
}

// ManualPaymentRequest records money moved outside the provider
type ManualPaymentRequest struct {
	Channel   string `json:"channel" binding:"required,max=50"`
	Reference string `json:"reference" binding:"omitempty,max=100"`
}

// ListPayoutsRequest filters the payout list
type ListPayoutsRequest struct {
	ListRequest
	PartnerID    string   `form:"partner_id" binding:"omitempty,uuid"`
	SettlementID string   `form:"settlement_id" binding:"omitempty,uuid"`
	Status       []string `form:"status" binding:"omitempty,dive,oneof=pending processing paid failed"`
}

// EvaluateAccountsRequest asks for a batch dunning evaluation
type EvaluateAccountsRequest struct {
	AccountIDs []string `json:"account_ids" binding:"required,min=1,max=500,dive,uuid"`
}

// SetAccessOverrideRequest forces an account's access state
type SetAccessOverrideRequest struct {
	State     string     `json:"state" binding:"required,oneof=normal read_only blocked"`
	Reason    string     `json:"reason" binding:"required,max=255"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// BatchEvaluationResponse summarises a batch evaluation
type BatchEvaluationResponse struct {
	Results   any `json:"results"`
	Evaluated int `json:"evaluated"`
	Failed    int `json:"failed"`
}

// ToFilter converts the paging parameters to a repository filter
func (r ListRequest) ToFilter() shared.Filter {
	f := shared.DefaultFilter()
	if r.Page > 0 {
		f.Page = r.Page
	}
	if r.PageSize > 0 {
		f.PageSize = r.PageSize
	}
	if r.OrderBy != "" {
		f.OrderBy = r.OrderBy
	}
	if r.OrderDir != "" {
		f.OrderDir = r.OrderDir
	}
	return f.Normalize()
}

// ParseUUIDs parses a list of already-validated UUID strings
func ParseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
