package circuitbreaker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrServiceUnavailable is returned while a breaker is open or saturated in half-open.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrBreakerNotFound is returned by Execute for an unknown breaker name.
	ErrBreakerNotFound = errors.New("circuit breaker not found")
)

// Manager owns the named circuit breakers of a process.
type Manager interface {
	GetOrCreate(name string, config Config) CircuitBreaker
	Execute(ctx context.Context, name string, fn func() (any, error)) (any, error)
	GetState(name string) State
	GetCounts(name string) Counts
	IsHealthy(name string) bool
	Reset(name string)
	RegisterStateChangeListener(listener StateChangeListener)
}

// CircuitBreaker is a single breaker.
type CircuitBreaker interface {
	Execute(fn func() (any, error)) (any, error)
	State() State
	Counts() Counts
}

// Config holds circuit breaker configuration.
type Config struct {
	MaxRequests         uint32        // requests allowed through while half-open
	Interval            time.Duration // closed-state count reset period
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // consecutive failures that open the breaker
	FailureRatio        float64       // failure ratio that opens the breaker
	MinRequests         uint32        // requests needed before the ratio applies
}

// State is a breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
	StateUnknown  State = "unknown"
)

// Counts are breaker statistics for the current interval.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// StateChangeListener is notified asynchronously when a breaker changes state.
type StateChangeListener interface {
	OnStateChange(name string, from State, to State)
}
