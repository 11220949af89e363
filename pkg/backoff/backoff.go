package backoff

import (
	"math"
	"time"
)

// Policy holds reconnect backoff configuration.
type Policy struct {
	InitialDelay time.Duration // delay after the first failure
	MaxDelay     time.Duration // ceiling for the escalating delay
	Multiplier   float64       // exponential factor (typically 2.0)
	MaxAttempts  int           // total attempts before giving up
}

// DefaultPolicy returns the broker reconnect policy: 3s doubling up to 30s,
// at most 10 attempts per episode.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 3 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
	}
}

// Delay returns the wait before retry number failures+1, where failures is
// the count of consecutive failed attempts so far (0-based). The sequence
// for the default policy is 3s, 6s, 12s, 24s, 30s, 30s, ...
func (p Policy) Delay(failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(failures))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// Exhausted reports whether the attempt budget is spent.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
