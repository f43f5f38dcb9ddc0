// Package retry implements exponential backoff with a jittered cap and a
// bounded number of attempts, built on github.com/cenkalti/backoff.
package retry

import (
	"time"

	"github.com/cenkalti/backoff"
)

// Policy configures one RetryPolicy instance.
type Policy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	Multiplier    float64
	MaxDelay      time.Duration
	Randomization float64
}

// DefaultPolicy is a conservative default: 3 attempts, 2s initial delay,
// factor 2.0, jittered cap of 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Second,
		Multiplier:    2.0,
		MaxDelay:      30 * time.Second,
		Randomization: 0.5,
	}
}

// Do runs op, retrying with exponential backoff per p until it succeeds or
// MaxAttempts is exhausted. The last error is returned on exhaustion.
func Do(p Policy, op func() error) error {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialDelay,
		RandomizationFactor: p.Randomization,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
		MaxElapsedTime:      0, // bounded by attempt count, not wall-clock
		Clock:               backoff.SystemClock,
	}
	eb.Reset()

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	bounded := backoff.WithMaxRetries(eb, uint64(attempts-1))

	return backoff.Retry(op, bounded)
}
