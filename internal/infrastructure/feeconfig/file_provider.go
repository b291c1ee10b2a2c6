// Package feeconfig loads partner fee schedules from a YAML file, for
// deployments that keep fee configuration outside the database.
package feeconfig

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
)

// Schedule is one fee schedule as written in the file.
// Percent values are percentage points.
type Schedule struct {
	Percent map[string]decimal.Decimal `yaml:"percent"`
	Fixed   map[string]decimal.Decimal `yaml:"fixed"`
}

// File is the document layout:
//
//	default:
//	  percent: {card: 2.9}
//	partners:
//	  6f1c...:
//	    percent: {card: 5, wallet: 3.5}
//	    fixed: {card: 0.30}
type File struct {
	Default  *Schedule           `yaml:"default"`
	Partners map[string]Schedule `yaml:"partners"`
}

// FileProvider implements settlement.FeeScheduleProvider from a parsed file.
// Schedules are immutable after load.
type FileProvider struct {
	schedules map[uuid.UUID]*settlement.FeeSchedule
	fallback  *Schedule
}

// LoadFile reads and validates a fee file
func LoadFile(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("fee file %s: %w", path, err)
	}
	return p, nil
}

// Parse validates a fee document. Every schedule is checked up front so a
// bad file fails at startup instead of during generation.
func Parse(data []byte) (*FileProvider, error) {
	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	p := &FileProvider{schedules: make(map[uuid.UUID]*settlement.FeeSchedule, len(doc.Partners))}
	for key, sched := range doc.Partners {
		partnerID, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("partner key %q is not a UUID: %w", key, err)
		}
		fs := sched.toDomain(partnerID)
		if err := fs.Validate(); err != nil {
			return nil, fmt.Errorf("partner %s: %w", partnerID, err)
		}
		p.schedules[partnerID] = fs
	}
	if doc.Default != nil {
		if err := doc.Default.toDomain(uuid.Nil).Validate(); err != nil {
			return nil, fmt.Errorf("default schedule: %w", err)
		}
		p.fallback = doc.Default
	}
	return p, nil
}

// GetFeeSchedule returns the partner's schedule, the default one, or shared.ErrNotFound
func (p *FileProvider) GetFeeSchedule(_ context.Context, partnerID uuid.UUID) (*settlement.FeeSchedule, error) {
	if fs, ok := p.schedules[partnerID]; ok {
		return copySchedule(fs), nil
	}
	if p.fallback != nil {
		return p.fallback.toDomain(partnerID), nil
	}
	return nil, shared.ErrNotFound
}

// Partners returns how many partners have an explicit schedule
func (p *FileProvider) Partners() int {
	return len(p.schedules)
}

func (s Schedule) toDomain(partnerID uuid.UUID) *settlement.FeeSchedule {
	return &settlement.FeeSchedule{
		PartnerID:       partnerID,
		PercentByMethod: copyRates(s.Percent),
		FixedByMethod:   copyRates(s.Fixed),
	}
}

func copySchedule(fs *settlement.FeeSchedule) *settlement.FeeSchedule {
	return &settlement.FeeSchedule{
		PartnerID:       fs.PartnerID,
		PercentByMethod: copyRates(fs.PercentByMethod),
		FixedByMethod:   copyRates(fs.FixedByMethod),
	}
}

func copyRates(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Ensure FileProvider implements settlement.FeeScheduleProvider
var _ settlement.FeeScheduleProvider = (*FileProvider)(nil)
