package settlement

import (
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
)

// Period is a half-open settlement window [Start, End)
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod validates and normalizes a settlement window to UTC
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, shared.NewDomainError(shared.CodeInvalidPeriod, "period start and end are required")
	}
	if !end.After(start) {
		return Period{}, shared.NewDomainError(shared.CodeInvalidPeriod,
			fmt.Sprintf("period end %s must be after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339)))
	}
	return Period{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t falls inside the window
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Overlaps reports whether two half-open windows share any instant
func (p Period) Overlaps(other Period) bool {
	return p.Start.Before(other.End) && other.Start.Before(p.End)
}

// Equal compares both bounds
func (p Period) Equal(other Period) bool {
	return p.Start.Equal(other.Start) && p.End.Equal(other.End)
}

// String renders the window for logs and statements
func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}
