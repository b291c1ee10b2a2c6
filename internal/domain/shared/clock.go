package shared

import "time"

// Clock abstracts wall time for services that stamp records
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return c.At
}
