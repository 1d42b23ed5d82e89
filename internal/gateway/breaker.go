package gateway

import (
	"sync"
	"time"
)

// CircuitState is one of the three breaker states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// circuitBreaker gates gateway polls under sustained failure. Transitions:
// closed->open at failureThreshold consecutive failures; open->half_open
// after recoveryTimeout, letting one probe through; half_open->closed on
// success, half_open->open on failure. Any success resets to closed.
type circuitBreaker struct {
	mu               sync.Mutex
	state            CircuitState
	failures         int
	failureThreshold int
	recoveryTimeout  time.Duration
	lastFailure      time.Time

	now func() time.Time // injectable clock
}

func newCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *circuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &circuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed, transitioning open->half_open
// when the recovery dwell has elapsed.
func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailure) >= cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess resets the failure count and closes the breaker. It returns
// true when the breaker left a non-closed state (outage recovery).
func (cb *circuitBreaker) RecordSuccess() (recovered bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	recovered = cb.state != CircuitClosed
	cb.state = CircuitClosed
	cb.failures = 0
	return recovered
}

// RecordFailure counts a failure and returns true on the exact
// closed->open (or half_open->open with no prior outage) transition.
func (cb *circuitBreaker) RecordFailure() (opened bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
			return true
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
	}
	return false
}

// State returns the current breaker state.
func (cb *circuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *circuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}
