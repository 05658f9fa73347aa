package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	// MaxRequests caps probe requests while half-open.
	MaxRequests uint32
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// FailureThreshold consecutive failures trip the breaker.
	FailureThreshold uint32
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold uint32
	Logger           *zap.Logger
}

// CircuitBreaker sheds calls to an external dependency after repeated
// consecutive failures, probing it again after Timeout.
type CircuitBreaker struct {
	name string
	cfg  Config

	mu                   sync.Mutex
	state                State
	requests             uint32
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
	openedAt             time.Time
}

func New(name string, cfg Config) *CircuitBreaker {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &CircuitBreaker{name: name, cfg: cfg}
}

// Execute runs fn unless the breaker is open. A context error counts as a
// failure of the dependency only if fn itself returns it.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		cb.afterRequest(false)
		return ctx.Err()
	default:
	}

	err := fn()
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refreshState() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.requests >= cb.cfg.MaxRequests {
			return ErrTooManyRequests
		}
	}

	cb.requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.refreshState()

	if success {
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
		if state == StateHalfOpen && cb.consecutiveSuccesses >= cb.cfg.SuccessThreshold {
			cb.setState(StateClosed)
		}
		return
	}

	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0
	if state == StateHalfOpen || cb.consecutiveFailures >= cb.cfg.FailureThreshold {
		cb.setState(StateOpen)
	}
}

// refreshState transitions open -> half-open after the timeout. Caller holds mu.
func (cb *CircuitBreaker) refreshState() State {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.Timeout {
		cb.setState(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.requests = 0

	if state == StateOpen {
		cb.openedAt = time.Now()
	}

	cb.cfg.Logger.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", prev.String()),
		zap.String("to", state.String()),
		zap.Uint32("failures", cb.consecutiveFailures),
	)
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refreshState()
}
