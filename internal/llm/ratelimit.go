package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/spice-assign/internal/metrics"
)

// ErrCostExceedsCapacity is returned when a request can never be admitted.
var ErrCostExceedsCapacity = errors.New("rate limit cost exceeds bucket capacity")

// RateLimiter implements a token bucket with lazy refill. A full bucket's
// worth of tokens is added every refill interval, proportionally to the time
// elapsed since the last successful check. There is no background timer.
type RateLimiter struct {
	lastRefill     time.Time
	now            func() time.Time
	tokens         float64
	capacity       float64
	refillInterval time.Duration
	pollInterval   time.Duration
	mu             sync.Mutex
}

// NewRateLimiter creates a full bucket holding maxTokensPerMinute tokens.
func NewRateLimiter(maxTokensPerMinute int, refillInterval time.Duration) *RateLimiter {
	return newRateLimiterWithClock(maxTokensPerMinute, refillInterval, time.Now)
}

func newRateLimiterWithClock(maxTokensPerMinute int, refillInterval time.Duration, now func() time.Time) *RateLimiter {
	if maxTokensPerMinute <= 0 {
		maxTokensPerMinute = 60
	}
	if refillInterval <= 0 {
		refillInterval = time.Minute
	}

	return &RateLimiter{
		tokens:         float64(maxTokensPerMinute),
		capacity:       float64(maxTokensPerMinute),
		refillInterval: refillInterval,
		pollInterval:   100 * time.Millisecond,
		lastRefill:     now(),
		now:            now,
	}
}

// TryAcquire takes cost tokens if they are available. On failure the bucket
// is left untouched and the caller is expected to wait and try again.
func (rl *RateLimiter) TryAcquire(cost int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	tokens := rl.refilled(now)
	if tokens < float64(cost) {
		return false
	}

	rl.tokens = tokens - float64(cost)
	rl.lastRefill = now
	return true
}

// Wait polls TryAcquire until it succeeds or ctx is canceled.
func (rl *RateLimiter) Wait(ctx context.Context, cost int) error {
	if float64(cost) > rl.capacity {
		return fmt.Errorf("%w: cost %d, capacity %.0f", ErrCostExceedsCapacity, cost, rl.capacity)
	}

	if rl.TryAcquire(cost) {
		return nil
	}

	start := time.Now()
	defer func() { metrics.RateLimitWaitSeconds.Observe(time.Since(start).Seconds()) }()

	ticker := time.NewTicker(rl.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-ticker.C:
			if rl.TryAcquire(cost) {
				return nil
			}
		}
	}
}

// Available returns the tokens that would be available right now.
func (rl *RateLimiter) Available() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.refilled(rl.now())
}

// Capacity returns the bucket size.
func (rl *RateLimiter) Capacity() int {
	return int(rl.capacity)
}

// refilled computes the bucket level at now without committing it.
// Callers must hold mu.
func (rl *RateLimiter) refilled(now time.Time) float64 {
	elapsed := now.Sub(rl.lastRefill)
	if elapsed <= 0 {
		return rl.tokens
	}
	tokens := rl.tokens + float64(elapsed)/float64(rl.refillInterval)*rl.capacity
	if tokens > rl.capacity {
		tokens = rl.capacity
	}
	return tokens
}
