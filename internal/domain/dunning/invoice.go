package dunning

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus mirrors the accounts-receivable store's invoice states
type InvoiceStatus string

const (
	InvoiceStatusPending       InvoiceStatus = "pending"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusOverdue       InvoiceStatus = "overdue"
	InvoiceStatusPartiallyPaid InvoiceStatus = "partially_paid"
	InvoiceStatusCanceled      InvoiceStatus = "canceled"
)

// IsValid checks if the status is a known invoice status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusPaid, InvoiceStatusOverdue,
		InvoiceStatusPartiallyPaid, InvoiceStatusCanceled:
		return true
	}
	return false
}

// IsOpen returns true while money is still owed
func (s InvoiceStatus) IsOpen() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusOverdue || s == InvoiceStatusPartiallyPaid
}

// Invoice is a receivable owed by a partner or tenant account
type Invoice struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  uuid.UUID       `json:"account_id"`
	Amount     decimal.Decimal `json:"amount"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	DueDate    time.Time       `json:"due_date"`
	Status     InvoiceStatus   `json:"status"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
}

// IsOverdue is derived: past due and not settled. The stored status is not trusted.
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.Status.IsOpen() && now.After(i.DueDate)
}

// DaysOverdue returns whole days past the due date, 0 when not overdue
func (i *Invoice) DaysOverdue(now time.Time) int {
	if !i.IsOverdue(now) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// Outstanding is the unpaid part of the invoice
func (i *Invoice) Outstanding() decimal.Decimal {
	rest := i.Amount.Sub(i.AmountPaid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// OverdueSummary aggregates an account's overdue invoices
type OverdueSummary struct {
	OverdueCount   int             `json:"overdue_count"`
	MaxDaysOverdue int             `json:"max_days_overdue"`
	TotalOverdue   decimal.Decimal `json:"total_overdue"`
}

// HasOverdue reports whether at least one invoice is overdue
func (s OverdueSummary) HasOverdue() bool {
	return s.OverdueCount > 0
}

// Summarize computes the overdue summary of invoices at now, ignoring canceled ones
func Summarize(invoices []Invoice, now time.Time) OverdueSummary {
	summary := OverdueSummary{TotalOverdue: decimal.Zero}
	for i := range invoices {
		inv := &invoices[i]
		if !inv.IsOverdue(now) {
			continue
		}
		summary.OverdueCount++
		summary.TotalOverdue = summary.TotalOverdue.Add(inv.Outstanding())
		if days := inv.DaysOverdue(now); days > summary.MaxDaysOverdue {
			summary.MaxDaysOverdue = days
		}
	}
	return summary
}
