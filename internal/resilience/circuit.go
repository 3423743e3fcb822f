// Package resilience provides bounded retries for downloads, model calls and
// Notion calls, plus the circuit breakers guarding the extraction service
// and the record store.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the position of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown ends.
	CircuitOpen
	// CircuitHalfOpen admits a single trial call.
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

// ErrCircuitOpen matches every rejection from an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError is returned instead of calling a service whose breaker is open.
type OpenError struct {
	Service string
	RetryAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: circuit open until %s", e.Service, e.RetryAt.Format(time.RFC3339))
}

func (e *OpenError) Is(target error) bool { return target == ErrCircuitOpen }

// CircuitBreakerConfig controls when a breaker opens and for how long.
type CircuitBreakerConfig struct {
	// FailureThreshold is the run of tripping failures that opens the
	// circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is the cooldown before a trial call is let through.
	// Default: 30s.
	ResetTimeout time.Duration

	// ShouldTrip selects the failures that count toward the threshold.
	// Defaults to any non-nil error.
	ShouldTrip func(err error) bool

	OnStateChange func(service string, from, to CircuitState)
}

// DefaultCircuitBreakerConfig opens after five tripping failures in a row
// and tries again after thirty seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
}

// CircuitBreaker stops calls to one service after repeated failures. In
// half-open state exactly one caller runs the trial; others are rejected
// until it reports back.
type CircuitBreaker struct {
	service string
	cfg     CircuitBreakerConfig
	now     func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	openUntil time.Time
	trial     bool
}

// NewCircuitBreaker returns a closed breaker for service.
func NewCircuitBreaker(service string, cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{service: service, cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker rejects the call with an *OpenError.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.report(trial, err)
	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && !cb.now().Before(cb.openUntil) {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && !cb.now().Before(cb.openUntil) {
		cb.move(CircuitHalfOpen)
	}
	switch cb.state {
	case CircuitOpen:
		return false, &OpenError{Service: cb.service, RetryAt: cb.openUntil}
	case CircuitHalfOpen:
		if cb.trial {
			return false, &OpenError{Service: cb.service, RetryAt: cb.now()}
		}
		cb.trial = true
		return true, nil
	default:
		return false, nil
	}
}

func (cb *CircuitBreaker) report(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if trial {
		cb.trial = false
	}

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.failures = 0
		if trial {
			cb.move(CircuitClosed)
		}
		return
	}

	cb.failures++
	if trial || cb.failures >= cb.cfg.FailureThreshold {
		cb.openUntil = cb.now().Add(cb.cfg.ResetTimeout)
		cb.move(CircuitOpen)
	}
}

func (cb *CircuitBreaker) move(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.service, from, to)
	}
}
