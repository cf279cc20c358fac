package model

import (
	"sync"
	"time"

	"go.uber.org/zap"

	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures uint32
	// ResetTimeout is how long the circuit stays open before a trial request.
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
	}
}

// CircuitBreaker stops calling a backend after repeated failures. An open
// circuit reports the backend as unavailable so the caller can switch tiers.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           CircuitState
	failureCount    uint32
	lastFailureTime time.Time
	onChange        func(from, to CircuitState)
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		config: config,
		logger: logger,
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// OnStateChange registers a callback for state transitions. It runs with
// the breaker lock held and must not call back into the breaker.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed)
	cb.failureCount = 0
	cb.lastFailureTime = time.Time{}
}

// Call runs fn unless the circuit is open. countFailure decides which
// errors trip the breaker; nil counts every error.
func (cb *CircuitBreaker) Call(fn func() error, countFailure func(error) bool) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailureTime) >= cb.config.ResetTimeout {
			cb.transition(CircuitHalfOpen)
			cb.failureCount = 0
		} else {
			since := cb.now().Sub(cb.lastFailureTime)
			cb.mu.Unlock()
			return rcerrors.Newf(rcerrors.CodeModelUnavailable, "circuit breaker is open (last failure %v ago)", since.Round(time.Millisecond))
		}
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil && (countFailure == nil || countFailure(err)) {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return err
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailureTime = cb.now()
	switch cb.state {
	case CircuitHalfOpen:
		cb.transition(CircuitOpen)
	case CircuitClosed:
		if cb.failureCount >= cb.config.MaxFailures {
			cb.transition(CircuitOpen)
		}
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	if cb.state == CircuitHalfOpen {
		cb.transition(CircuitClosed)
		cb.lastFailureTime = time.Time{}
	}
	cb.failureCount = 0
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.logger.Info("circuit breaker state change",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint32("failures", cb.failureCount),
	)
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

// FailureCount returns the consecutive failure count.
func (cb *CircuitBreaker) FailureCount() uint32 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failureCount
}
