package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
)

// ErrCircuitOpen is returned when the breaker is open and calls are
// being rejected without reaching the downstream service.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	stateClosed   = "closed"
	stateOpen     = "open"
	stateHalfOpen = "half-open"
)

// CircuitBreaker shields a failing downstream service from repeated
// calls. After failureThreshold consecutive failures the breaker opens
// and rejects calls until resetTimeout has passed, then lets a single
// probe through before closing again.
type CircuitBreaker struct {
	mu               sync.Mutex
	serviceName      string
	state            string
	failureCount     int
	failureThreshold int
	resetTimeout     time.Duration
	lastFailure      time.Time
	clock            func() time.Time
}

// Creates a circuit breaker for the named service.
func NewCircuitBreaker(serviceName string, failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = time.Minute
	}
	cb := &CircuitBreaker{
		serviceName:      serviceName,
		state:            stateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		clock:            time.Now,
	}
	cb.publishState()
	return cb
}

// Runs fn under the breaker. Returns ErrCircuitOpen without calling fn
// while the breaker is open, otherwise returns fn's error and updates
// the breaker state from it.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == stateOpen {
		if cb.clock().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = stateHalfOpen
		cb.publishState()
		logger.Log.Info("Circuit breaker probing service",
			zap.String("service", cb.serviceName))
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure()
		return err
	}
	cb.recordSuccess()
	return nil
}

// Returns the current breaker state.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failureCount++
	cb.lastFailure = cb.clock()
	if cb.state == stateHalfOpen || cb.failureCount >= cb.failureThreshold {
		if cb.state != stateOpen {
			logger.Log.Warn("Circuit breaker opened",
				zap.String("service", cb.serviceName),
				zap.Int("failures", cb.failureCount),
				zap.Duration("reset_timeout", cb.resetTimeout))
		}
		cb.state = stateOpen
		cb.publishState()
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	if cb.state == stateHalfOpen {
		logger.Log.Info("Circuit breaker closed after successful probe",
			zap.String("service", cb.serviceName))
	}
	cb.state = stateClosed
	cb.failureCount = 0
	cb.publishState()
}

func (cb *CircuitBreaker) publishState() {
	var v float64
	switch cb.state {
	case stateHalfOpen:
		v = 1
	case stateOpen:
		v = 2
	}
	metrics.CircuitBreakerState.WithLabelValues(cb.serviceName).Set(v)
}
