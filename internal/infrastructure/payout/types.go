package payout

// Provider-side transfer states
const (
	transferStatusQueued     = "queued"
	transferStatusProcessing = "processing"
	transferStatusSucceeded  = "succeeded"
	transferStatusPaid       = "paid"
	transferStatusFailed     = "failed"
	transferStatusRejected   = "rejected"
	transferStatusReturned   = "returned"
)

// Request headers
const (
	headerIdempotencyKey = "Idempotency-Key"
	headerTimestamp      = "X-Payout-Timestamp"
	headerSignature      = "X-Payout-Signature"
)

type transferDestination struct {
	Method           string `json:"method"`
	AccountReference string `json:"account_reference"`
	HolderName       string `json:"holder_name,omitempty"`
}

// transferRequest is the body of POST /v1/transfers.
// Amount is a decimal string so no precision is lost in transit.
type transferRequest struct {
	ClientReference string              `json:"client_reference"`
	Amount          string              `json:"amount"`
	Destination     transferDestination `json:"destination"`
	Description     string              `json:"description,omitempty"`
}

// transferResponse is returned by both POST /v1/transfers and GET /v1/transfers/{ref}
type transferResponse struct {
	Reference       string `json:"reference"`
	ClientReference string `json:"client_reference"`
	Status          string `json:"status"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// errorResponse is the provider's error body
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
