package apperrors

import (
	"errors"
	"sync"
	"time"
)

const (
	defaultErrorThreshold      = 0.5
	defaultMinRequests         = 10
	defaultOpenTimeout         = 30 * time.Second
	defaultHalfOpenMaxRequests = 3
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

var (
	ErrCircuitOpen             = errors.New("circuit breaker is open")
	errHalfOpenTooManyRequests = errors.New("too many requests in half-open")
)

// CircuitBreaker trips after the error rate over a minimum request count
// crosses the threshold, and probes with a few requests after a timeout.
type CircuitBreaker struct {
	mu              sync.Mutex
	state           BreakerState
	failures        int
	successes       int
	requests        int
	lastFailureTime time.Time

	errorThreshold      float64
	minRequests         int
	openTimeout         time.Duration
	halfOpenMaxRequests int
}

// NewCircuitBreaker returns a closed breaker with default thresholds.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		state:               BreakerClosed,
		errorThreshold:      defaultErrorThreshold,
		minRequests:         defaultMinRequests,
		openTimeout:         defaultOpenTimeout,
		halfOpenMaxRequests: defaultHalfOpenMaxRequests,
	}
}

// Call executes fn subject to the breaker state.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	cb.mu.Lock()
	if cb.state == BreakerOpen {
		if time.Since(cb.lastFailureTime) >= cb.openTimeout {
			cb.state = BreakerHalfOpen
			cb.resetCountersLocked()
		} else {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
	}

	if cb.state == BreakerHalfOpen && cb.requests >= cb.halfOpenMaxRequests {
		cb.mu.Unlock()
		return errHalfOpenTooManyRequests
	}
	cb.mu.Unlock()

	callErr := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++

	if callErr != nil {
		cb.failures++

		if cb.state == BreakerHalfOpen {
			cb.tripLocked()
		} else {
			cb.evaluateLocked()
		}

		return callErr
	}

	cb.successes++

	if cb.state == BreakerHalfOpen && cb.successes >= cb.halfOpenMaxRequests {
		cb.state = BreakerClosed
		cb.resetCountersLocked()
	}

	return nil
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) evaluateLocked() {
	if cb.requests < cb.minRequests {
		return
	}

	errorRate := float64(cb.failures) / float64(cb.requests)
	if errorRate >= cb.errorThreshold {
		cb.tripLocked()
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.state = BreakerOpen
	cb.lastFailureTime = time.Now()
	cb.resetCountersLocked()
}

func (cb *CircuitBreaker) resetCountersLocked() {
	cb.failures = 0
	cb.successes = 0
	cb.requests = 0
}
