// Package circuit provides a three-state circuit breaker for guarding calls
// to failure-prone external dependencies.
package circuit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states for managing service failure patterns.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Testing if service recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config defines configuration for circuit breaker behavior.
type Config struct {
	FailureThreshold int           `json:"failure_threshold"` // Consecutive failures before opening
	SuccessThreshold int           `json:"success_threshold"` // Successes to close circuit from half-open
	Timeout          time.Duration `json:"timeout"`           // Time to wait before trying half-open
}

// DefaultConfig provides reasonable defaults for circuit breaker behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 2,
	Timeout:          60 * time.Second,
}

// Error is returned when a call is rejected because the circuit is open.
// It is a distinct type so callers can tell "known-bad dependency" apart
// from "this specific call failed".
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker implements the three-state circuit breaker pattern. All state
// transitions are serialized under a single mutex.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Breaker struct {
	config          Config
	mu              sync.RWMutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
}

// New creates a new circuit breaker with the given configuration.
// Zero-valued config fields fall back to DefaultConfig.
func New(config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig.Timeout
	}
	return &Breaker{
		config: config,
		state:  Closed,
	}
}

// Allow checks whether a request may proceed. It returns an *Error when
// the circuit is open and the open timeout has not yet elapsed. When the
// timeout has elapsed, the breaker moves to half-open and the request is
// allowed through as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil

	case Open:
		if time.Since(b.lastFailureTime) > b.config.Timeout {
			b.state = HalfOpen
			b.successCount = 0
			return nil
		}
		return &Error{State: Open}

	case HalfOpen:
		return nil

	default:
		return &Error{State: b.state}
	}
}

// Record registers the result of an allowed request.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// State returns the current circuit breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failureCount
}

// Reset forces the breaker back to closed with zero counters. This is an
// administrative override, not part of normal state flow.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failureCount = 0
	b.successCount = 0
}

// Do runs op under the breaker rules: rejected immediately with *Error when
// open, otherwise executed with the outcome recorded.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	err := op(ctx)
	b.Record(err == nil)
	return err
}

// Execute runs an operation returning a value under the breaker rules.
func Execute[T any](b *Breaker, ctx context.Context, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}

	result, err := op(ctx)
	b.Record(err == nil)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// onSuccess handles a successful request.
func (b *Breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0

	case HalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.state = Closed
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// onFailure handles a failed request.
func (b *Breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case Closed:
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
		}

	case HalfOpen:
		// Any failure in half-open immediately opens the circuit
		b.state = Open
		b.successCount = 0
	}
}
