package settlement

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/shared"
)

// DefaultFeeMethod is the fee schedule key applied to payment methods
// that have no dedicated entry.
const DefaultFeeMethod = "default"

// feeScale is the number of decimal places fees are rounded to
const feeScale int32 = 2

var hundred = decimal.NewFromInt(100)

// FeeSchedule holds a partner's platform fee configuration.
// PercentByMethod values are percentage points (5 means 5%).
type FeeSchedule struct {
	PartnerID       uuid.UUID                  `json:"partner_id"`
	PercentByMethod map[string]decimal.Decimal `json:"percent_by_method"`
	FixedByMethod   map[string]decimal.Decimal `json:"fixed_by_method"`
}

// Validate rejects negative components and percentages above 100
func (f *FeeSchedule) Validate() error {
	if f == nil {
		return shared.NewDomainError(shared.CodeDataInconsistency, "fee schedule is missing")
	}
	if len(f.PercentByMethod) == 0 && len(f.FixedByMethod) == 0 {
		return shared.NewDomainError(shared.CodeDataInconsistency,
			fmt.Sprintf("fee schedule for partner %s is empty", f.PartnerID))
	}
	for method, pct := range f.PercentByMethod {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return shared.NewDomainError(shared.CodeDataInconsistency,
				fmt.Sprintf("fee percentage for method %q must be between 0 and 100", method))
		}
	}
	for method, fixed := range f.FixedByMethod {
		if fixed.IsNegative() {
			return shared.NewDomainError(shared.CodeDataInconsistency,
				fmt.Sprintf("fixed fee for method %q cannot be negative", method))
		}
	}
	return nil
}

// FeeFor returns the platform fee charged on one transaction, rounded to cents.
// A method with neither a dedicated nor a default entry is a configuration gap,
// not a zero fee.
func (f *FeeSchedule) FeeFor(method string, gross decimal.Decimal) (decimal.Decimal, error) {
	pct, hasPct := f.lookup(f.PercentByMethod, method)
	fixed, hasFixed := f.lookup(f.FixedByMethod, method)
	if !hasPct && !hasFixed {
		return decimal.Zero, shared.NewDomainError(shared.CodeDataInconsistency,
			fmt.Sprintf("no fee configured for payment method %q of partner %s", method, f.PartnerID))
	}
	fee := gross.Mul(pct).Div(hundred).Add(fixed)
	return fee.Round(feeScale), nil
}

func (f *FeeSchedule) lookup(m map[string]decimal.Decimal, method string) (decimal.Decimal, bool) {
	if v, ok := m[method]; ok {
		return v, true
	}
	if v, ok := m[DefaultFeeMethod]; ok {
		return v, true
	}
	return decimal.Zero, false
}

// Statement is the computed body of a settlement
type Statement struct {
	TotalGross       decimal.Decimal
	TotalPlatformFee decimal.Decimal
	TotalPartnerNet  decimal.Decimal
	TransactionCount int
}

// ComputeStatement sums the records and applies the fee schedule per transaction.
// The result always satisfies net = gross - fee.
func ComputeStatement(records []TransactionRecord, schedule *FeeSchedule) (Statement, error) {
	stmt := Statement{
		TotalGross:       decimal.Zero,
		TotalPlatformFee: decimal.Zero,
	}
	if len(records) > 0 {
		if err := schedule.Validate(); err != nil {
			return Statement{}, err
		}
	}
	for _, r := range records {
		if r.Settled {
			return Statement{}, shared.NewDomainError(shared.CodeDataInconsistency,
				fmt.Sprintf("transaction %s is already settled", r.ID))
		}
		if r.GrossAmount.IsNegative() {
			return Statement{}, shared.NewDomainError(shared.CodeDataInconsistency,
				fmt.Sprintf("transaction %s has a negative gross amount", r.ID))
		}
		fee, err := schedule.FeeFor(r.PaymentMethod, r.GrossAmount)
		if err != nil {
			return Statement{}, err
		}
		stmt.TotalGross = stmt.TotalGross.Add(r.GrossAmount)
		stmt.TotalPlatformFee = stmt.TotalPlatformFee.Add(fee)
	}
	stmt.TotalPartnerNet = stmt.TotalGross.Sub(stmt.TotalPlatformFee)
	stmt.TransactionCount = len(records)
	return stmt, nil
}
