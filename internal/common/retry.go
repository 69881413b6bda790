package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-assign/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Fatal marks err as not worth retrying.
func Fatal(err error) error {
	return &RetryableError{Err: err, Retryable: false}
}

// Outcome tags the result of a single attempt.
type Outcome int

const (
	// OutcomeSuccess means the attempt succeeded.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable means the attempt failed but may succeed if tried again.
	OutcomeRetryable
	// OutcomeFatal means the attempt failed and the loop must stop now.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify tags an attempt's error.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		if retryableErr.Retryable {
			return OutcomeRetryable
		}
		return OutcomeFatal
	}

	if isFatal(err) {
		return OutcomeFatal
	}
	return OutcomeRetryable
}

// Attempt describes one finished attempt of a retried operation.
// Delay is the backoff scheduled before the next attempt, zero when none follows.
type Attempt struct {
	Err     error
	Index   int
	Delay   time.Duration
	Outcome Outcome
}

// AttemptObserver receives every attempt. Observers must not block.
type AttemptObserver func(Attempt)

// RetryPolicy runs an operation with capped exponential backoff.
type RetryPolicy struct {
	sleep     func(ctx context.Context, d time.Duration) error
	observers []AttemptObserver
	opts      service.RetryOptions
}

// NewRetryPolicy creates a retry policy, filling unset options with defaults.
func NewRetryPolicy(opts service.RetryOptions, observers ...AttemptObserver) *RetryPolicy {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	return &RetryPolicy{
		opts:      opts,
		observers: observers,
		sleep:     sleepContext,
	}
}

// Options returns the effective options.
func (p *RetryPolicy) Options() service.RetryOptions {
	return p.opts
}

// Delay returns the backoff after the given zero-based attempt:
// min(MaxDelay, InitialDelay * Multiplier^attempt).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.opts.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.opts.Multiplier
		if delay >= float64(p.opts.MaxDelay) {
			return p.opts.MaxDelay
		}
	}
	if delay > float64(p.opts.MaxDelay) {
		return p.opts.MaxDelay
	}
	return time.Duration(delay)
}

// Execute runs operation until it succeeds, fails fatally, or the attempt
// budget is spent. Operation receives the zero-based attempt index.
func (p *RetryPolicy) Execute(ctx context.Context, operation func(ctx context.Context, attempt int) error) error {
	var lastErr error

	for attempt := 0; attempt < p.opts.MaxAttempts; attempt++ {
		err := operation(ctx, attempt)
		outcome := Classify(err)

		// A canceled caller is never retried, whatever the operation reported.
		if err != nil && ctx.Err() != nil {
			outcome = OutcomeFatal
		}

		var delay time.Duration
		if outcome == OutcomeRetryable && attempt < p.opts.MaxAttempts-1 {
			delay = p.Delay(attempt)
			if errors.Is(err, ErrRateLimit) {
				delay = p.opts.MaxDelay
			}
		}

		p.notify(Attempt{Index: attempt, Delay: delay, Err: err, Outcome: outcome})

		switch outcome {
		case OutcomeSuccess:
			return nil
		case OutcomeFatal:
			return err
		}

		lastErr = err
		if delay == 0 {
			break
		}

		slog.Warn("Operation failed, retrying",
			"attempt", attempt+1,
			"max_attempts", p.opts.MaxAttempts,
			"delay", delay,
			"error", err)

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, p.opts.MaxAttempts, lastErr)
}

func (p *RetryPolicy) notify(a Attempt) {
	for _, observe := range p.observers {
		observe(a)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
