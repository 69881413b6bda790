package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/metrics"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/service"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc is told how many batches have finished out of total.
type ProgressFunc func(done, total int)

// Batch is a contiguous slice of a request's transactions.
type Batch struct {
	Items []model.TransactionDescriptor
	Index int
	// Start is the position of Items[0] in the original request.
	Start int
}

// Partition splits items into contiguous batches of size; the last batch
// may be smaller.
func Partition(items []model.TransactionDescriptor, size int) []Batch {
	if size <= 0 {
		size = 1
	}

	batches := make([]Batch, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, Batch{
			Index: len(batches),
			Start: start,
			Items: items[start:end],
		})
	}
	return batches
}

// DispatcherConfig holds batching and retry settings.
type DispatcherConfig struct {
	Retry         service.RetryOptions
	BatchSize     int
	MaxConcurrent int
}

// Dispatcher sends batches to the endpoint through the shared rate limiter
// and circuit breaker, at most MaxConcurrent at a time.
type Dispatcher struct {
	invoker Invoker
	limiter *RateLimiter
	breaker *CircuitBreaker
	builder *PromptBuilder
	logger  *slog.Logger
	cfg     DispatcherConfig
}

// NewDispatcher creates a dispatcher. The limiter and breaker are shared
// with every other user of the same endpoint.
func NewDispatcher(invoker Invoker, limiter *RateLimiter, breaker *CircuitBreaker, builder *PromptBuilder, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		invoker: invoker,
		limiter: limiter,
		breaker: breaker,
		builder: builder,
		logger:  logger,
		cfg:     cfg,
	}
}

// Dispatch returns one label per transaction in request order, or the first
// fatal error. A fatal error cancels batches still in flight, and queued
// batches are never started.
func (d *Dispatcher) Dispatch(ctx context.Context, req model.AssignmentRequest, progress ProgressFunc) ([]string, error) {
	if len(req.Transactions) == 0 {
		return nil, common.ErrNoTransactions
	}
	if len(req.Options) == 0 {
		return nil, common.ErrNoOptions
	}

	batches := Partition(req.Transactions, d.cfg.BatchSize)
	results := make([]string, len(req.Transactions))

	jobs := make(chan Batch, len(batches))
	for _, batch := range batches {
		jobs <- batch
	}
	close(jobs)

	d.logger.Debug("dispatching assignment batches",
		"kind", req.Kind,
		"transactions", len(req.Transactions),
		"batches", len(batches),
		"max_concurrent", d.cfg.MaxConcurrent)

	var done atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	workers := min(d.cfg.MaxConcurrent, len(batches))

	for range workers {
		g.Go(func() error {
			for batch := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}

				labels, err := d.runBatch(gctx, req, batch)
				if err != nil {
					metrics.BatchesTotal.WithLabelValues(string(req.Kind), "failed").Inc()
					return fmt.Errorf("batch %d (transactions %d-%d): %w",
						batch.Index+1, batch.Start+1, batch.Start+len(batch.Items), err)
				}

				copy(results[batch.Start:], labels)
				metrics.BatchesTotal.WithLabelValues(string(req.Kind), "succeeded").Inc()
				if progress != nil {
					progress(int(done.Add(1)), len(batches))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runBatch performs one batch: every attempt waits for the rate limiter,
// calls through the circuit breaker and parses the reply.
func (d *Dispatcher) runBatch(ctx context.Context, req model.AssignmentRequest, batch Batch) ([]string, error) {
	schema := d.builder.BuildSchema(req.Kind, req.Options)
	systemPrompt := d.builder.BuildSystemPrompt(req.Kind)
	userPrompt := d.builder.BuildUserPrompt(req.Kind, batch.Items, req.Options)

	policy := common.NewRetryPolicy(d.cfg.Retry, d.observeAttempt(req.Kind, batch))

	var labels []string
	err := policy.Execute(ctx, func(ctx context.Context, _ int) error {
		if err := d.limiter.Wait(ctx, 1); err != nil {
			return common.Fatal(err)
		}

		var raw string
		start := time.Now()
		err := d.breaker.Execute(ctx, func(callCtx context.Context) error {
			var invokeErr error
			raw, invokeErr = d.invoker.Invoke(callCtx, systemPrompt, userPrompt, schema)
			return invokeErr
		})
		metrics.LLMLatency.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}

		parsed, err := d.builder.ParseResponse(req.Kind, raw, len(batch.Items), req.Options)
		if err != nil {
			d.logger.Debug("unusable LLM response",
				"batch", batch.Index+1,
				"error", err)
			return err
		}

		labels = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return labels, nil
}

func (d *Dispatcher) observeAttempt(kind model.AssignmentKind, batch Batch) common.AttemptObserver {
	return func(a common.Attempt) {
		metrics.LLMRequestsTotal.WithLabelValues(string(kind), a.Outcome.String()).Inc()

		switch a.Outcome {
		case common.OutcomeSuccess:
			d.logger.Debug("batch assigned",
				"kind", kind,
				"batch", batch.Index+1,
				"size", len(batch.Items),
				"attempt", a.Index+1)
		case common.OutcomeRetryable:
			if a.Delay > 0 {
				metrics.LLMRetriesTotal.WithLabelValues(string(kind)).Inc()
			}
			d.logger.Warn("LLM assignment attempt failed",
				"kind", kind,
				"batch", batch.Index+1,
				"attempt", a.Index+1,
				"next_delay", a.Delay,
				"error", a.Err)
		case common.OutcomeFatal:
			d.logger.Error("LLM assignment failed",
				"kind", kind,
				"batch", batch.Index+1,
				"attempt", a.Index+1,
				"error", a.Err)
		}
	}
}
