package provider

import (
	"sync"
	"time"

	"github.com/0xPolygonHermez/zkevm-tx-engine/log"
)

// BreakerState represents the circuit breaker state
type BreakerState int

const (
	// StateClosed lets requests through
	StateClosed BreakerState = iota
	// StateOpen fails requests fast
	StateOpen
	// StateHalfOpen lets trial requests through
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultBreakerTimeout   = 30 * time.Second
)

// CircuitBreaker stops calling a node after consecutive transient failures
type CircuitBreaker struct {
	mutex sync.Mutex

	name             string
	failureThreshold int
	successThreshold int
	timeout          time.Duration

	state                BreakerState
	consecutiveFailures  int
	consecutiveSuccesses int
	lastFailureTime      time.Time
}

// NewCircuitBreaker creates a closed circuit breaker. Zero config values take defaults.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		timeout:          cfg.Timeout.Duration,
	}
	if cb.failureThreshold <= 0 {
		cb.failureThreshold = defaultFailureThreshold
	}
	if cb.successThreshold <= 0 {
		cb.successThreshold = defaultSuccessThreshold
	}
	if cb.timeout <= 0 {
		cb.timeout = defaultBreakerTimeout
	}
	return cb
}

// State returns the current state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState()
}

// currentState must be called with the mutex held
func (cb *CircuitBreaker) currentState() BreakerState {
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.timeout {
		return StateHalfOpen
	}
	return cb.state
}

// Allow returns true if a request should be sent
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState() != StateOpen
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses++

	switch cb.currentState() {
	case StateHalfOpen:
		if cb.consecutiveSuccesses >= cb.successThreshold {
			cb.setState(StateClosed)
			cb.consecutiveSuccesses = 0
		}
	}
}

// RecordFailure records a transient failure
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.consecutiveSuccesses = 0
	cb.consecutiveFailures++
	state := cb.currentState()
	cb.lastFailureTime = time.Now()

	switch state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

// Reset closes the circuit
func (cb *CircuitBreaker) Reset() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.setState(StateClosed)
}

func (cb *CircuitBreaker) setState(state BreakerState) {
	if cb.state == state {
		return
	}
	log.Warnf("circuit breaker %s: %s -> %s", cb.name, cb.state, state)
	cb.state = state
}
