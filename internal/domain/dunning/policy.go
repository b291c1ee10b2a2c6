package dunning

import (
	"fmt"

	"github.com/erp/settlement/internal/domain/shared"
)

// Well-known levels. Levels above LevelBlocked are further escalations that
// stay blocked.
const (
	LevelNone     = 0
	LevelWarning  = 1
	LevelReadOnly = 2
	LevelBlocked  = 3
)

// Policy maps overdue severity to a dunning level.
// Thresholds[i] is the number of days overdue that must be exceeded to reach
// level i+2; any overdue invoice reaches level 1.
type Policy struct {
	Thresholds []int
}

// NewPolicy builds a policy from the grace and block day counts plus any
// further escalation thresholds.
func NewPolicy(graceDays, blockDays int, extra ...int) (Policy, error) {
	p := Policy{Thresholds: append([]int{graceDays, blockDays}, extra...)}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// DefaultPolicy uses a 15 day grace and a 30 day block threshold
func DefaultPolicy() Policy {
	return Policy{Thresholds: []int{15, 30}}
}

// Validate requires non-negative, strictly increasing thresholds so the
// level is monotonic in days overdue.
func (p Policy) Validate() error {
	if len(p.Thresholds) == 0 {
		return shared.NewDomainError(shared.CodeInvalidInput, "dunning policy needs at least a grace threshold")
	}
	prev := -1
	for i, days := range p.Thresholds {
		if days < 0 {
			return shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("dunning threshold %d cannot be negative", i))
		}
		if days <= prev {
			return shared.NewDomainError(shared.CodeInvalidInput,
				fmt.Sprintf("dunning thresholds must be strictly increasing, got %v", p.Thresholds))
		}
		prev = days
	}
	return nil
}

// MaxLevel is the highest level the policy can produce
func (p Policy) MaxLevel() int {
	return len(p.Thresholds) + 1
}

// Level returns the dunning level for an overdue summary
func (p Policy) Level(summary OverdueSummary) int {
	if !summary.HasOverdue() {
		return LevelNone
	}
	level := LevelWarning
	for _, days := range p.Thresholds {
		if summary.MaxDaysOverdue > days {
			level++
		}
	}
	return level
}
