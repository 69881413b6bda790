package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/metrics"
)

// State is a circuit breaker state.
type State int

// Circuit breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitOpenError is returned when a call is rejected without contacting
// the endpoint.
type CircuitOpenError struct {
	OpenedAt time.Time
	RetryAt  time.Time
	State    State
}

func (e *CircuitOpenError) Error() string {
	if e.State == StateHalfOpen {
		return "circuit breaker is half-open: trial call in progress"
	}
	return fmt.Sprintf("circuit breaker is open until %s", e.RetryAt.Format(time.RFC3339))
}

// Unwrap lets errors.Is match common.ErrCircuitOpen.
func (e *CircuitOpenError) Unwrap() error {
	return common.ErrCircuitOpen
}

// BreakerConfig holds the circuit breaker thresholds. Endpoint names the
// guarded endpoint in logs and metrics.
type BreakerConfig struct {
	Endpoint         string
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenTimeout  time.Duration
}

// CircuitBreaker isolates a failing endpoint. One instance guards one
// endpoint and is shared by every caller of it.
type CircuitBreaker struct {
	openedAt      time.Time
	lastFailure   time.Time
	now           func() time.Time
	logger        *slog.Logger
	cfg           BreakerConfig
	state         State
	failures      int
	trialInFlight bool
	mu            sync.Mutex
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig, logger *slog.Logger) *CircuitBreaker {
	return newCircuitBreakerWithClock(cfg, logger, time.Now)
}

func newCircuitBreakerWithClock(cfg BreakerConfig, logger *slog.Logger, now func() time.Time) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenTimeout <= 0 {
		cfg.HalfOpenTimeout = 15 * time.Second
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "default"
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics.CircuitBreakerState.WithLabelValues(cfg.Endpoint).Set(float64(StateClosed))

	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		now:    now,
		state:  StateClosed,
	}
}

// Execute runs fn if the breaker admits the call and records its outcome.
// A rejected call returns a *CircuitOpenError and fn is not invoked.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	callCtx := ctx
	if trial {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, cb.cfg.HalfOpenTimeout)
		defer cancel()
	}

	start := cb.now()
	err = fn(callCtx)
	elapsed := cb.now().Sub(start)

	if trial && elapsed > cb.cfg.HalfOpenTimeout {
		err = fmt.Errorf("%w after %s: %w", common.ErrTrialTimeout, elapsed, errOrNil(err))
	}

	// The caller gave up; that says nothing about the endpoint.
	if err != nil && ctx.Err() != nil {
		cb.release(trial)
		return err
	}

	if err != nil {
		cb.onFailure(trial)
		return err
	}
	cb.onSuccess(trial)
	return nil
}

// State returns the current state. An open breaker only moves to half-open
// when a call arrives after the reset timeout.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// LastFailure returns when the most recent failure was recorded.
func (cb *CircuitBreaker) LastFailure() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastFailure
}

func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, &CircuitOpenError{
				State:    StateOpen,
				OpenedAt: cb.openedAt,
				RetryAt:  cb.openedAt.Add(cb.cfg.ResetTimeout),
			}
		}
		cb.transition(StateHalfOpen)
		cb.trialInFlight = true
		return true, nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, &CircuitOpenError{
				State:    StateHalfOpen,
				OpenedAt: cb.openedAt,
				RetryAt:  cb.openedAt.Add(cb.cfg.ResetTimeout),
			}
		}
		cb.trialInFlight = true
		return true, nil
	default:
		return false, fmt.Errorf("circuit breaker in unknown state %d", cb.state)
	}
}

func (cb *CircuitBreaker) onSuccess(trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if trial {
		cb.trialInFlight = false
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) onFailure(trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.failures++
	cb.lastFailure = now

	if trial {
		cb.trialInFlight = false
		cb.openedAt = now
		cb.transition(StateOpen)
		return
	}

	if cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = now
		cb.transition(StateOpen)
	}
}

// release frees a trial slot without recording an outcome.
func (cb *CircuitBreaker) release(trial bool) {
	if !trial {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false
}

// transition changes state. Callers must hold mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	metrics.CircuitBreakerState.WithLabelValues(cb.cfg.Endpoint).Set(float64(to))
	metrics.CircuitBreakerTransitions.WithLabelValues(cb.cfg.Endpoint, to.String()).Inc()

	cb.logger.Warn("circuit breaker state changed",
		"endpoint", cb.cfg.Endpoint,
		"from", from.String(),
		"to", to.String(),
		"consecutive_failures", cb.failures)
}

func errOrNil(err error) error {
	if err == nil {
		return errors.New("call completed too late")
	}
	return err
}
