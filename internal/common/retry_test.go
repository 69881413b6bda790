package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/spice-assign/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset")

// recordingPolicy returns a policy whose sleeps are recorded instead of taken.
func recordingPolicy(opts service.RetryOptions, observers ...AttemptObserver) (*RetryPolicy, *[]time.Duration) {
	p := NewRetryPolicy(opts, observers...)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return p, &slept
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := NewRetryPolicy(service.RetryOptions{
		MaxAttempts:  6,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     800 * time.Millisecond,
		Multiplier:   2,
	})

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, d := range want {
		assert.Equal(t, d, p.Delay(attempt), "attempt %d", attempt)
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	opts := NewRetryPolicy(service.RetryOptions{}).Options()
	assert.Equal(t, 3, opts.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, opts.InitialDelay)
	assert.Equal(t, 30*time.Second, opts.MaxDelay)
	assert.InDelta(t, 2.0, opts.Multiplier, 0)
}

func TestRetryPolicy_Execute(t *testing.T) {
	opts := service.RetryOptions{
		MaxAttempts:  4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2,
	}

	tests := []struct {
		wantErr   error
		failures  []error
		name      string
		wantSlept []time.Duration
		wantCalls int
	}{
		{
			name:      "first try succeeds",
			wantCalls: 1,
		},
		{
			name:      "succeeds after retries",
			failures:  []error{errTransient, errTransient},
			wantCalls: 3,
			wantSlept: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond},
		},
		{
			name:      "exhausts attempts",
			failures:  []error{errTransient, errTransient, errTransient, errTransient},
			wantCalls: 4,
			wantErr:   ErrMaxRetries,
			wantSlept: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond},
		},
		{
			name:      "fatal stops immediately",
			failures:  []error{Fatal(errTransient)},
			wantCalls: 1,
			wantErr:   errTransient,
		},
		{
			name:      "parse errors are not retried",
			failures:  []error{fmt.Errorf("%w: bad json", ErrParse)},
			wantCalls: 1,
			wantErr:   ErrParse,
		},
		{
			name:      "circuit open propagates",
			failures:  []error{fmt.Errorf("wrapped: %w", ErrCircuitOpen)},
			wantCalls: 1,
			wantErr:   ErrCircuitOpen,
		},
		{
			name:      "rate limit waits the maximum delay",
			failures:  []error{ErrRateLimit},
			wantCalls: 2,
			wantSlept: []time.Duration{250 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, slept := recordingPolicy(opts)
			calls := 0

			err := p.Execute(context.Background(), func(_ context.Context, attempt int) error {
				assert.Equal(t, calls, attempt)
				calls++
				if attempt < len(tt.failures) {
					return tt.failures[attempt]
				}
				return nil
			})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantSlept, *slept)
		})
	}
}

func TestRetryPolicy_ExhaustionKeepsLastError(t *testing.T) {
	p, _ := recordingPolicy(service.RetryOptions{MaxAttempts: 2})
	err := p.Execute(context.Background(), func(context.Context, int) error {
		return errTransient
	})

	require.ErrorIs(t, err, ErrMaxRetries)
	require.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestRetryPolicy_ObserverSeesEveryAttempt(t *testing.T) {
	var attempts []Attempt
	p, _ := recordingPolicy(service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
	}, func(a Attempt) { attempts = append(attempts, a) })

	err := p.Execute(context.Background(), func(_ context.Context, attempt int) error {
		if attempt < 2 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, attempts, 3)
	assert.Equal(t, OutcomeRetryable, attempts[0].Outcome)
	assert.Equal(t, 10*time.Millisecond, attempts[0].Delay)
	assert.Equal(t, OutcomeRetryable, attempts[1].Outcome)
	assert.Equal(t, 20*time.Millisecond, attempts[1].Delay)
	assert.Equal(t, OutcomeSuccess, attempts[2].Outcome)
	assert.Zero(t, attempts[2].Delay)
	assert.NoError(t, attempts[2].Err)
}

func TestRetryPolicy_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p, slept := recordingPolicy(service.RetryOptions{MaxAttempts: 5})

	calls := 0
	err := p.Execute(ctx, func(context.Context, int) error {
		calls++
		cancel()
		return errTransient
	})

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestRetryPolicy_SleepInterruptedByCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := NewRetryPolicy(service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
	})

	start := time.Now()
	err := p.Execute(ctx, func(context.Context, int) error { return errTransient })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want Outcome
	}{
		{name: "nil", err: nil, want: OutcomeSuccess},
		{name: "plain", err: errTransient, want: OutcomeRetryable},
		{name: "fatal wrapper", err: Fatal(errTransient), want: OutcomeFatal},
		{name: "retryable wrapper", err: &RetryableError{Err: ErrParse, Retryable: true}, want: OutcomeRetryable},
		{name: "count mismatch", err: fmt.Errorf("x: %w", ErrCountMismatch), want: OutcomeFatal},
		{name: "invalid label", err: ErrInvalidLabel, want: OutcomeFatal},
		{name: "remote", err: fmt.Errorf("%w: 503", ErrRemote), want: OutcomeRetryable},
		{name: "deadline", err: context.DeadlineExceeded, want: OutcomeRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.want == OutcomeRetryable, IsRetryable(tt.err))
		})
	}
}

func TestUserMessage(t *testing.T) {
	err := fmt.Errorf("run: %w", NewUserError("Please try again", errTransient))
	assert.Equal(t, "Please try again", UserMessage(err))
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, UserMessage(errTransient), "Something went wrong")
}
