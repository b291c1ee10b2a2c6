package dunning

import (
	"context"

	"github.com/erp/settlement/internal/domain/dunning"
)

// TransactionScope provides transactional access to the dunning history.
// Appending a transition and reversing the entries it lifts commit together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories exposes the repositories bound to one transaction
type TransactionalRepositories interface {
	Logs() dunning.LogRepository
}

// NoOpTransactionScope runs fn directly against the given repository
type NoOpTransactionScope struct {
	logs dunning.LogRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(logs dunning.LogRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{logs: logs}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Logs returns the log repository
func (s *NoOpTransactionScope) Logs() dunning.LogRepository { return s.logs }
