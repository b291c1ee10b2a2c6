package dunning

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/settlement/internal/domain/shared"
)

var testNow = time.Date(2024, 3, 21, 12, 0, 0, 0, time.UTC)

func invoiceDue(daysAgo int, status InvoiceStatus, amount string) Invoice {
	return Invoice{
		ID:         uuid.New(),
		AccountID:  uuid.New(),
		Amount:     decimal.RequireFromString(amount),
		AmountPaid: decimal.Zero,
		DueDate:    testNow.Add(-time.Duration(daysAgo) * 24 * time.Hour),
		Status:     status,
	}
}

// ============================================
// Invoice overdue derivation
// ============================================

func TestInvoice_IsOverdue(t *testing.T) {
	tests := []struct {
		name    string
		invoice Invoice
		want    bool
		days    int
	}{
		{"pending past due", invoiceDue(20, InvoiceStatusPending, "100"), true, 20},
		{"stored overdue past due", invoiceDue(3, InvoiceStatusOverdue, "100"), true, 3},
		{"partially paid past due", invoiceDue(5, InvoiceStatusPartiallyPaid, "100"), true, 5},
		{"paid past due", invoiceDue(20, InvoiceStatusPaid, "100"), false, 0},
		{"canceled past due", invoiceDue(20, InvoiceStatusCanceled, "100"), false, 0},
		{"pending not yet due", invoiceDue(-2, InvoiceStatusPending, "100"), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.invoice.IsOverdue(testNow))
			assert.Equal(t, tt.days, tt.invoice.DaysOverdue(testNow))
		})
	}
}

func TestInvoice_DueTodayIsOverdueWithZeroDays(t *testing.T) {
	inv := invoiceDue(0, InvoiceStatusPending, "10")
	inv.DueDate = testNow.Add(-time.Hour)

	assert.True(t, inv.IsOverdue(testNow))
	assert.Equal(t, 0, inv.DaysOverdue(testNow))
}

func TestSummarize(t *testing.T) {
	partial := invoiceDue(40, InvoiceStatusPartiallyPaid, "100")
	partial.AmountPaid = decimal.RequireFromString("60")

	summary := Summarize([]Invoice{
		invoiceDue(10, InvoiceStatusPending, "25.50"),
		partial,
		invoiceDue(90, InvoiceStatusCanceled, "1000"),
		invoiceDue(-5, InvoiceStatusPending, "999"),
	}, testNow)

	assert.Equal(t, 2, summary.OverdueCount)
	assert.Equal(t, 40, summary.MaxDaysOverdue)
	assert.True(t, decimal.RequireFromString("65.50").Equal(summary.TotalOverdue))
}

// ============================================
// Policy
// ============================================

func TestPolicy_Level(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name    string
		summary OverdueSummary
		want    int
	}{
		{"nothing overdue", OverdueSummary{}, LevelNone},
		{"overdue within grace", OverdueSummary{OverdueCount: 1, MaxDaysOverdue: 3}, LevelWarning},
		{"exactly at grace", OverdueSummary{OverdueCount: 1, MaxDaysOverdue: 15}, LevelWarning},
		{"beyond grace", OverdueSummary{OverdueCount: 1, MaxDaysOverdue: 20}, LevelReadOnly},
		{"beyond block", OverdueSummary{OverdueCount: 2, MaxDaysOverdue: 31}, LevelBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Level(tt.summary))
		})
	}
}

func TestPolicy_ExtraThresholds(t *testing.T) {
	policy, err := NewPolicy(15, 30, 60)
	require.NoError(t, err)

	assert.Equal(t, 4, policy.MaxLevel())
	assert.Equal(t, 4, policy.Level(OverdueSummary{OverdueCount: 1, MaxDaysOverdue: 61}))
	assert.Equal(t, LevelBlocked, policy.Level(OverdueSummary{OverdueCount: 1, MaxDaysOverdue: 60}))
}

func TestPolicy_MonotonicInDaysOverdue(t *testing.T) {
	policy, err := NewPolicy(7, 21, 45)
	require.NoError(t, err)

	prev := LevelNone
	for days := 0; days <= 100; days++ {
		level := policy.Level(OverdueSummary{OverdueCount: 1, MaxDaysOverdue: days})
		assert.GreaterOrEqual(t, level, prev, "days=%d", days)
		prev = level
	}
}

func TestPolicy_Validate(t *testing.T) {
	_, err := NewPolicy(30, 15)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewPolicy(15, 15)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewPolicy(-1, 15)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	assert.ErrorIs(t, Policy{}.Validate(), shared.ErrInvalidInput)
	assert.NoError(t, DefaultPolicy().Validate())
}
