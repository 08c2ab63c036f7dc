package connection

import "time"

// Backoff is the reconnect schedule. Budget attempts use exponential delays
// (Initial, 2*Initial, ... capped at Max); after that the connection is reported
// unavailable and re-attempts every UnavailableEvery.
type Backoff struct {
	Initial          time.Duration
	Max              time.Duration
	Budget           int
	UnavailableEvery time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:          250 * time.Millisecond,
		Max:              5 * time.Second,
		Budget:           5,
		UnavailableEvery: 10 * time.Second,
	}
}

// Delay returns the wait before the given zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 || b.Initial <= 0 {
		return 0
	}
	if attempt > b.Budget && b.UnavailableEvery > 0 {
		return b.UnavailableEvery
	}
	d := b.Initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Exhausted reports whether attempt is past the retry budget.
func (b Backoff) Exhausted(attempt int) bool {
	return attempt >= b.Budget
}

// Normalize fills zero fields with defaults.
func (b Backoff) Normalize() Backoff {
	def := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Budget <= 0 {
		b.Budget = def.Budget
	}
	if b.UnavailableEvery <= 0 {
		b.UnavailableEvery = def.UnavailableEvery
	}
	return b
}
