// Package breaker implements a three-state circuit breaker (Closed / Open /
// HalfOpen) around an arbitrary callable, with a single admitted probe call
// while HalfOpen so a flapping downstream can't be hammered by concurrent
// callers all trying to recover it at once.
package breaker

import (
	"sync"
	"time"
)

// State is one of the breaker's three states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Call when the breaker refuses the call outright.
type ErrOpen struct{}

func (ErrOpen) Error() string { return "circuit breaker open" }

// Breaker is a CircuitBreaker guarding a single logical downstream call.
type Breaker struct {
	failureThreshold uint32
	timeout          time.Duration

	mu                 sync.Mutex
	state              State
	consecutiveFails   uint32
	openedAt           time.Time
	halfOpenProbeInUse bool
}

// New builds a Breaker that trips to Open after failureThreshold consecutive
// failures and waits timeout before allowing a HalfOpen probe.
func New(failureThreshold uint32, timeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		timeout:          timeout,
		state:            Closed,
	}
}

// State returns the breaker's current state, resolving an expired Open
// timeout into HalfOpen as a side effect.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireLocked()
	return b.state
}

func (b *Breaker) maybeExpireLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.timeout {
		b.state = HalfOpen
		b.halfOpenProbeInUse = false
	}
}

// Call attempts to run fn through the breaker. It returns ErrOpen without
// invoking fn if the breaker refuses the call (Open and not yet timed out,
// or HalfOpen with a probe already in flight).
func (b *Breaker) Call(fn func() error) error {
	admitted, isProbe := b.admit()
	if !admitted {
		return ErrOpen{}
	}

	err := fn()

	if isProbe {
		b.completeProbe(err == nil)
	} else {
		if err == nil {
			b.recordSuccess()
		} else {
			b.recordFailure()
		}
	}
	return err
}

// admit decides whether a call may proceed, and whether it is the single
// admitted HalfOpen probe.
func (b *Breaker) admit() (admitted bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireLocked()

	switch b.state {
	case Closed:
		return true, false
	case HalfOpen:
		if b.halfOpenProbeInUse {
			return false, false
		}
		b.halfOpenProbeInUse = true
		return true, true
	case Open:
		return false, false
	default:
		return false, false
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails = 0
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFails++
	if b.state == Closed && b.consecutiveFails >= b.failureThreshold {
		b.tripLocked()
	}
}

func (b *Breaker) completeProbe(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halfOpenProbeInUse = false
	if success {
		b.state = Closed
		b.consecutiveFails = 0
	} else {
		b.tripLocked()
	}
}

func (b *Breaker) tripLocked() {
	b.state = Open
	b.openedAt = time.Now()
}
