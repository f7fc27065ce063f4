package ai

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a provider's breaker is refusing calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState is the state of one provider's breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // calls pass
	CircuitOpen                         // calls fail fast until openTimeout elapses
	CircuitHalfOpen                     // probing; one failure reopens
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker stops calling a provider that keeps failing. Only
// retriable failures are recorded against it.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	now              func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int // consecutive, while closed
	successes int // while half-open
	openedAt  time.Time
}

// NewCircuitBreaker creates a closed breaker for the named provider
func NewCircuitBreaker(name string, failureThreshold, successThreshold int, openTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		failureThreshold: max(failureThreshold, 1),
		successThreshold: max(successThreshold, 1),
		openTimeout:      openTimeout,
		now:              time.Now,
	}
}

// Allow returns ErrCircuitOpen while the breaker is open. Once openTimeout
// has passed the breaker moves to half-open and lets calls through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) <= cb.openTimeout {
		return ErrCircuitOpen
	}
	cb.setState(CircuitHalfOpen)
	return nil
}

// RecordSuccess closes a half-open breaker after successThreshold successes
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.setState(CircuitClosed)
		}
	}
}

// RecordFailure opens the breaker after failureThreshold consecutive
// failures, or immediately while half-open
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.setState(CircuitOpen)
	}
}

// State returns the current state without advancing it
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// caller holds mu
func (cb *CircuitBreaker) setState(to CircuitState) {
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case CircuitOpen:
		cb.openedAt = cb.now()
		slog.Warn("circuit breaker opened",
			"provider", cb.name, "from", from.String(), "failures", cb.failures, "reopen_in", cb.openTimeout)
	case CircuitClosed:
		cb.failures = 0
		slog.Info("circuit breaker closed", "provider", cb.name, "from", from.String())
	default:
		slog.Info("circuit breaker probing", "provider", cb.name, "from", from.String())
	}
}
