package client

import (
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-gateway-console/types"
)

type CircuitBreakerState int32

const (
	StateBreakerClosed CircuitBreakerState = iota
	StateBreakerOpen
	StateBreakerHalfOpen
)

// CircuitBreaker fails calls fast after FailureThreshold consecutive
// transport failures. Once RecoveryTimeout has passed a single probe is
// let through and its outcome closes or re-opens the breaker.
type CircuitBreaker struct {
	config   *types.CircuitBreakerConfig
	logger   types.Logger
	clock    clock.Clock
	state    CircuitBreakerState
	failures int
	lastFail time.Time
	probing  bool
	mutex    sync.Mutex
}

func NewCircuitBreaker(config *types.CircuitBreakerConfig, logger types.Logger, clk clock.Clock) *CircuitBreaker {
	if config == nil || !config.Enabled {
		return nil
	}

	cfg := *config
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}

	if clk == nil {
		clk = clock.New()
	}

	return &CircuitBreaker{
		config: &cfg,
		logger: logger,
		clock:  clk,
		state:  StateBreakerClosed,
	}
}

func (cb *CircuitBreaker) CanExecute() bool {
	if cb == nil {
		return true
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateBreakerOpen:
		if cb.clock.Now().Sub(cb.lastFail) < cb.config.RecoveryTimeout {
			return false
		}
		cb.state = StateBreakerHalfOpen
		cb.probing = true
		cb.logger.Info("Circuit breaker transitioned to half-open")
		return true
	case StateBreakerHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state != StateBreakerClosed {
		cb.logger.Info("Circuit breaker closed")
	}

	cb.state = StateBreakerClosed
	cb.failures = 0
	cb.probing = false
}

func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.lastFail = cb.clock.Now()
	cb.probing = false

	switch cb.state {
	case StateBreakerClosed:
		cb.failures++
		cb.logger.Debug("Failure recorded in closed state",
			zap.Int("failures", cb.failures),
			zap.Int("threshold", cb.config.FailureThreshold))

		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateBreakerOpen
			cb.logger.Warn("Circuit breaker opened",
				zap.Int("failures", cb.failures),
				zap.Int("threshold", cb.config.FailureThreshold))
		}
	case StateBreakerHalfOpen:
		cb.state = StateBreakerOpen
		cb.logger.Warn("Circuit breaker probe failed, reopening")
	}
}

func (cb *CircuitBreaker) Reset() {
	if cb == nil {
		return
	}

	cb.mutex.Lock()
	cb.state = StateBreakerClosed
	cb.failures = 0
	cb.probing = false
	cb.mutex.Unlock()
}

func (cb *CircuitBreaker) State() string {
	if cb == nil {
		return "disabled"
	}

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateBreakerClosed:
		return "closed"
	case StateBreakerOpen:
		return "open"
	case StateBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// IsCircuitBreakerFailure reports whether an outcome counts against the
// backend's availability. Ordinary API errors do not.
func IsCircuitBreakerFailure(statusCode int, err error) bool {
	if err != nil {
		return true
	}

	switch statusCode {
	case 502, 503, 504:
		return true
	default:
		return false
	}
}
