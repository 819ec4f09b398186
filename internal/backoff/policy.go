// Package backoff computes jittered exponential delays for relay reconnects.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// Initial is the delay before the second attempt.
	Initial time.Duration
	// Max caps every delay, jitter included.
	Max time.Duration
	// Factor multiplies the delay after each failed attempt.
	Factor float64
	// Jitter is the fraction (0 to 1) of the base delay added at random.
	Jitter float64
}

// Delay returns the wait after the given failed attempt. Attempts start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand is Delay with the random value supplied by the caller, which
// must be in [0, 1).
func (p Policy) DelayWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := math.Min(float64(p.Max), base+base*p.Jitter*random)
	return time.Duration(total).Round(time.Millisecond)
}

// Reconnect is the schedule used between relay connection attempts.
func Reconnect() Policy {
	return Policy{
		Initial: time.Second,
		Max:     2 * time.Minute,
		Factor:  2,
		Jitter:  0.2,
	}
}

// Quick is a short schedule for operations retried a few times inline, such
// as the initial relay dial.
func Quick() Policy {
	return Policy{
		Initial: 250 * time.Millisecond,
		Max:     5 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}
