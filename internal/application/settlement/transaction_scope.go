package settlement

import (
	"context"

	"github.com/erp/settlement/internal/domain/settlement"
)

// TransactionScope provides transactional access to settlement repositories.
// Everything done through the repositories handed to fn commits or rolls back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes the repositories bound to one transaction.
//
// The ledger is part of the scope because a settlement row and the settled
// flag of the records it consumed must be written atomically.
type TransactionalRepositories interface {
	Settlements() settlement.SettlementRepository
	Payouts() settlement.PayoutRepository
	Ledger() settlement.LedgerSource
}

// NoOpTransactionScope runs fn directly against the given repositories.
// Used by tests and by deployments whose ledger lives outside the database.
type NoOpTransactionScope struct {
	settlements settlement.SettlementRepository
	payouts     settlement.PayoutRepository
	ledger      settlement.LedgerSource
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	settlements settlement.SettlementRepository,
	payouts settlement.PayoutRepository,
	ledger settlement.LedgerSource,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{settlements: settlements, payouts: payouts, ledger: ledger}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Settlements returns the settlement repository.
func (s *NoOpTransactionScope) Settlements() settlement.SettlementRepository { return s.settlements }

// Payouts returns the payout repository.
func (s *NoOpTransactionScope) Payouts() settlement.PayoutRepository { return s.payouts }

// Ledger returns the ledger source.
func (s *NoOpTransactionScope) Ledger() settlement.LedgerSource { return s.ledger }
