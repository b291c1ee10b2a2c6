package dunning

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/erp/settlement/internal/domain/shared"
)

// LogRepository stores the append-only dunning history
type LogRepository interface {
	// LatestActive returns the newest non-reversed entry of the account, or nil when there is none
	LatestActive(ctx context.Context, accountID uuid.UUID) (*Log, error)

	// Append inserts a new entry. A second entry with the same (account, sequence)
	// surfaces as shared.ErrConcurrencyConflict.
	Append(ctx context.Context, entry *Log) error

	// ReverseAbove stamps reversed_at on every non-reversed entry of the account
	// whose level exceeds level. Returns the number of rows reversed.
	ReverseAbove(ctx context.Context, accountID uuid.UUID, level int, at time.Time) (int64, error)

	// ListByAccount returns the account's history, newest first
	ListByAccount(ctx context.Context, accountID uuid.UUID, filter shared.Filter) ([]Log, error)

	// CountByAccount counts the account's entries
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
}

// OverrideRepository stores manual access overrides, at most one per account
type OverrideRepository interface {
	// FindByAccount returns the account's override, or nil
	FindByAccount(ctx context.Context, accountID uuid.UUID) (*Override, error)

	// Upsert replaces the account's override
	Upsert(ctx context.Context, o *Override) error

	// DeleteByAccount removes the account's override; a missing override is not an error
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) error
}

// InvoiceStore is the external accounts-receivable store
type InvoiceStore interface {
	// ListOpenInvoices returns the account's unpaid, non-canceled invoices
	ListOpenInvoices(ctx context.Context, accountID uuid.UUID) ([]Invoice, error)

	// MarkPaid settles an invoice in full
	MarkPaid(ctx context.Context, invoiceID uuid.UUID) error

	// FindByID finds an invoice by ID
	FindByID(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)
}

// AccountLocker serializes work per account across processes
type AccountLocker interface {
	// Lock blocks until the account's lock is held or ctx ends.
	// The returned function releases it.
	Lock(ctx context.Context, accountID uuid.UUID) (unlock func(), err error)
}
