package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/LerianStudio/lib-escrow/escrow/log"
	"github.com/LerianStudio/lib-escrow/escrow/runtime"
	"github.com/sony/gobreaker"
)

type manager struct {
	breakers  map[string]*gobreaker.CircuitBreaker
	configs   map[string]Config
	listeners []StateChangeListener
	mu        sync.RWMutex
	logger    log.Logger
}

// NewManager creates a circuit breaker manager.
//
//nolint:ireturn
func NewManager(logger log.Logger) Manager {
	return &manager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  make(map[string]Config),
		logger:   log.OrNop(logger),
	}
}

func (m *manager) settings(name string, config Config) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "purse-" + name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= config.ConsecutiveFailures {
				return true
			}

			if counts.Requests < config.MinRequests || counts.Requests == 0 {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			m.handleStateChange(name, from, to)
		},
	}
}

//nolint:ireturn
func (m *manager) GetOrCreate(name string, config Config) CircuitBreaker {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if exists {
		return &circuitBreaker{breaker: breaker}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, exists = m.breakers[name]; exists {
		return &circuitBreaker{breaker: breaker}
	}

	breaker = gobreaker.NewCircuitBreaker(m.settings(name, config))
	m.breakers[name] = breaker
	m.configs[name] = config

	m.logger.Log(context.Background(), log.LevelInfo, "created circuit breaker", log.String("breaker", name))

	return &circuitBreaker{breaker: breaker}
}

func (m *manager) Execute(ctx context.Context, name string, fn func() (any, error)) (any, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBreakerNotFound, name)
	}

	result, err := breaker.Execute(fn)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		m.logger.Log(ctx, log.LevelWarn, "circuit breaker open, request rejected", log.String("breaker", name))

		return nil, fmt.Errorf("%w: %s is open: %w", ErrServiceUnavailable, name, err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		m.logger.Log(ctx, log.LevelWarn, "circuit breaker half-open, request rejected", log.String("breaker", name))

		return nil, fmt.Errorf("%w: %s is recovering: %w", ErrServiceUnavailable, name, err)
	}

	return result, err
}

func (m *manager) GetState(name string) State {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return StateUnknown
	}

	return convertGobreakerState(breaker.State())
}

func (m *manager) GetCounts(name string) Counts {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return Counts{}
	}

	return convertCounts(breaker.Counts())
}

func (m *manager) IsHealthy(name string) bool {
	return m.GetState(name) == StateClosed
}

func (m *manager) Reset(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	config, ok := m.configs[name]
	if !ok {
		return
	}

	m.breakers[name] = gobreaker.NewCircuitBreaker(m.settings(name, config))

	m.logger.Log(context.Background(), log.LevelInfo, "circuit breaker reset", log.String("breaker", name))
}

func (m *manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
}

func (m *manager) handleStateChange(name string, from, to gobreaker.State) {
	level := log.LevelInfo
	if to == gobreaker.StateOpen {
		level = log.LevelError
	}

	m.logger.Log(context.Background(), level, "circuit breaker state changed",
		log.String("breaker", name),
		log.String("from", from.String()),
		log.String("to", to.String()),
	)

	fromState, toState := convertGobreakerState(from), convertGobreakerState(to)

	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		runtime.SafeGo(m.logger, "circuitbreaker.listener", runtime.KeepRunning, func() {
			listener.OnStateChange(name, fromState, toState)
		})
	}
}

type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

func (cb *circuitBreaker) Execute(fn func() (any, error)) (any, error) {
	return cb.breaker.Execute(fn)
}

func (cb *circuitBreaker) State() State {
	return convertGobreakerState(cb.breaker.State())
}

func (cb *circuitBreaker) Counts() Counts {
	return convertCounts(cb.breaker.Counts())
}

func convertGobreakerState(state gobreaker.State) State {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

func convertCounts(counts gobreaker.Counts) Counts {
	return Counts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
