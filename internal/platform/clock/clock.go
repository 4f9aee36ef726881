package clock

import "time"

// Clock supplies the current time for expiry comparisons. Injecting it keeps
// break-glass and consent expiry checks deterministic under test.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Fixed always reports the same instant.
type Fixed struct {
	at time.Time
}

// NewFixed returns a clock frozen at the given instant.
func NewFixed(at time.Time) *Fixed {
	return &Fixed{at: at}
}

func (f *Fixed) Now() time.Time { return f.at }

// Advance moves the frozen clock forward. Not safe for concurrent use; tests
// own the clock.
func (f *Fixed) Advance(d time.Duration) {
	f.at = f.at.Add(d)
}
