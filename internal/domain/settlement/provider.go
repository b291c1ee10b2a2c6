package settlement

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Provider errors. Rejected is a definite failure; the others leave the
// outcome of a transfer unknown until the provider is queried.
var (
	ErrProviderRejected    = errors.New("payout: transfer rejected by provider")
	ErrProviderTimeout     = errors.New("payout: provider call timed out")
	ErrProviderUnavailable = errors.New("payout: provider unavailable")
	ErrProviderNotFound    = errors.New("payout: transfer not found at provider")
)

// ProviderStatus is the provider's view of a transfer
type ProviderStatus string

const (
	ProviderStatusPaid    ProviderStatus = "paid"
	ProviderStatusPending ProviderStatus = "pending"
	ProviderStatusFailed  ProviderStatus = "failed"
)

// IsFinal returns true when the provider will not change the status again
func (s ProviderStatus) IsFinal() bool {
	return s == ProviderStatusPaid || s == ProviderStatusFailed
}

// TransferRequest asks the provider to move money to a destination.
// ClientReference doubles as the provider-side idempotency key.
type TransferRequest struct {
	ClientReference string
	Amount          decimal.Decimal
	Destination     Destination
	Description     string
}

// TransferResult is the provider's synchronous answer to a transfer
type TransferResult struct {
	Reference     string
	Status        ProviderStatus
	FailureReason string
}

// PayoutProvider is the external transfer service
type PayoutProvider interface {
	// Transfer submits a transfer; an error other than ErrProviderRejected
	// means the transfer may or may not have happened.
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	// QueryStatus looks a transfer up by provider or client reference.
	// Returns ErrProviderNotFound when the provider never received it.
	QueryStatus(ctx context.Context, reference string) (ProviderStatus, error)
}
