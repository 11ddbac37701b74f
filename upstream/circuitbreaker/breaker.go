// Package circuitbreaker marks an upstream client temporarily unhealthy
// after repeated failures, so the strategy selector can route around it.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zakupai/search-core/types"
)

// State is the circuit breaker's current mode.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config controls trip thresholds and cool-down. Defaults follow the
// upstream client contract: 5 consecutive failures trips it, 60s cool-down
// before a half-open probe.
type Config struct {
	Threshold        int
	Timeout          time.Duration
	ResetTimeout     time.Duration
	HalfOpenMaxCalls int
	OnStateChange    func(from, to State)
}

// DefaultConfig returns the §4.1 cool-down defaults (~60s).
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker wraps an upstream call, tripping open after repeated
// failures and healing through a half-open probe window.
type CircuitBreaker interface {
	Call(ctx context.Context, fn func() error) error
	CallWithResult(ctx context.Context, fn func() (any, error)) (any, error)
	State() State
	Healthy() bool
	Reset()
}

type breaker struct {
	config *Config
	logger *zap.Logger

	mu                sync.RWMutex
	state             State
	failureCount      int
	lastFailureTime   time.Time
	halfOpenCallCount int
}

// NewCircuitBreaker creates a CircuitBreaker. A nil logger is replaced with a noop one.
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 3
	}

	return &breaker{config: config, logger: logger, state: StateClosed}
}

func (b *breaker) Call(ctx context.Context, fn func() error) error {
	_, err := b.CallWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

func (b *breaker) CallWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	resultCh := make(chan callResult, 1)
	go func() {
		result, err := fn()
		resultCh <- callResult{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		err := types.NewError(types.FailureTimeout, "upstream call timed out").WithCause(callCtx.Err())
		b.afterCall(false)
		return nil, err

	case res := <-resultCh:
		// non-network/rate-limit failures (bad auth, malformed query, ...)
		// are the caller's fault and shouldn't count against the breaker.
		success := res.err == nil || !isInfrastructureFailure(res.err)
		b.afterCall(success)
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

type callResult struct {
	result any
	err    error
}

// isInfrastructureFailure reports whether err reflects the upstream being
// unreachable or overloaded, as opposed to a client-caused rejection.
func isInfrastructureFailure(err error) bool {
	var se *types.SearchError
	if errors.As(err, &se) {
		return se.Kind == types.FailureNetwork || se.Kind == types.FailureRateLimited || se.Kind == types.FailureTimeout
	}
	return true
}

func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenCallCount = 0
			b.logger.Info("circuit breaker entering half-open state")
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", b.state)
	}
}

func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.logger.Info("circuit breaker recovered", zap.Int("half_open_calls", b.halfOpenCallCount))
		b.setState(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0
	case StateOpen:
		b.logger.Warn("received success while circuit open")
	}
}

func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("circuit breaker tripped",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.logger.Warn("half-open probe failed, reopening")
		b.setState(StateOpen)
		b.halfOpenCallCount = 0
	case StateOpen:
		b.logger.Warn("received failure while circuit already open")
	}
}

func (b *breaker) setState(newState State) {
	oldState := b.state
	b.state = newState
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

func (b *breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Healthy reports whether the breaker currently allows calls through,
// i.e. not tripped open. Used directly by the strategy selector.
func (b *breaker) Healthy() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state != StateOpen
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0

	b.logger.Info("circuit breaker reset", zap.String("from_state", oldState.String()))
	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, StateClosed)
	}
}

var (
	ErrCircuitOpen            = errors.New("circuit breaker open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls in half-open state")
)
