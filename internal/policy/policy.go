package policy

import "time"

// MaxAttempts is the number of consecutive auto-restart attempts allowed
// before a worker is finalized to the error status. It is a process-wide
// constant, not configurable per owner.
const MaxAttempts = 5

// DefaultBackoff is the production backoff table. Attempt index 0 waits 5s,
// index 4 (and anything beyond) waits 300s.
var DefaultBackoff = []time.Duration{
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	300 * time.Second,
}

// Policy maps a consecutive-failure count to a restart verdict and wait.
// It is a pure value; the zero value is not usable, construct via Default
// or fill both fields explicitly (tests shrink the table durations).
type Policy struct {
	Backoff     []time.Duration
	MaxAttempts int
}

func Default() Policy {
	return Policy{Backoff: DefaultBackoff, MaxAttempts: MaxAttempts}
}

// ShouldRetry reports whether another restart may be attempted after
// attempts consecutive failures.
func (p Policy) ShouldRetry(attempts int) bool {
	return attempts < p.MaxAttempts
}

// Wait returns the backoff duration before restart attempt with index
// attempt. The index is clamped to the last table entry.
func (p Policy) Wait(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(p.Backoff) {
		attempt = len(p.Backoff) - 1
	}
	return p.Backoff[attempt]
}
