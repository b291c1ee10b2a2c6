package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/erp/settlement/internal/domain/settlement"
)

// FeeScheduleEntryModel is one payment-method line of a partner's fee schedule.
// Percent is in percentage points; either component may be null.
type FeeScheduleEntryModel struct {
	PartnerID     uuid.UUID        `gorm:"type:uuid;primaryKey"`
	PaymentMethod string           `gorm:"type:varchar(30);primaryKey"`
	Percent       *decimal.Decimal `gorm:"type:decimal(7,4)"`
	Fixed         *decimal.Decimal `gorm:"type:decimal(18,2)"`
	UpdatedAt     time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (FeeScheduleEntryModel) TableName() string {
	return "fee_schedules"
}

// FeeScheduleFromEntries assembles a partner's schedule from its lines
func FeeScheduleFromEntries(partnerID uuid.UUID, entries []FeeScheduleEntryModel) *settlement.FeeSchedule {
	fs := &settlement.FeeSchedule{
		PartnerID:       partnerID,
		PercentByMethod: make(map[string]decimal.Decimal),
		FixedByMethod:   make(map[string]decimal.Decimal),
	}
	for _, e := range entries {
		if e.Percent != nil {
			fs.PercentByMethod[e.PaymentMethod] = *e.Percent
		}
		if e.Fixed != nil {
			fs.FixedByMethod[e.PaymentMethod] = *e.Fixed
		}
	}
	return fs
}

// FeeScheduleEntriesFromDomain splits a schedule into its per-method lines
func FeeScheduleEntriesFromDomain(fs *settlement.FeeSchedule, now time.Time) []FeeScheduleEntryModel {
	byMethod := make(map[string]*FeeScheduleEntryModel)
	entry := func(method string) *FeeScheduleEntryModel {
		if e, ok := byMethod[method]; ok {
			return e
		}
		e := &FeeScheduleEntryModel{PartnerID: fs.PartnerID, PaymentMethod: method, UpdatedAt: now}
		byMethod[method] = e
		return e
	}
	for method, pct := range fs.PercentByMethod {
		v := pct
		entry(method).Percent = &v
	}
	for method, fixed := range fs.FixedByMethod {
		v := fixed
		entry(method).Fixed = &v
	}
	out := make([]FeeScheduleEntryModel, 0, len(byMethod))
	for _, e := range byMethod {
		out = append(out, *e)
	}
	return out
}

// PayoutDestinationModel is where a partner is paid
type PayoutDestinationModel struct {
	PartnerID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Method           string    `gorm:"type:varchar(30);not null"`
	AccountReference string    `gorm:"type:varchar(200);not null"`
	HolderName       string    `gorm:"type:varchar(200)"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PayoutDestinationModel) TableName() string {
	return "payout_destinations"
}

// ToDomain converts the persistence model to a domain Destination
func (m *PayoutDestinationModel) ToDomain() *settlement.Destination {
	return &settlement.Destination{
		Method:           m.Method,
		AccountReference: m.AccountReference,
		HolderName:       m.HolderName,
	}
}
