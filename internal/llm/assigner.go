package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/metrics"
	"github.com/Veraticus/spice-assign/internal/model"
)

// FailureKind classifies why an assignment failed.
type FailureKind string

// Failure kinds.
const (
	FailureInvalidRequest FailureKind = "invalid_request"
	FailureCircuitOpen    FailureKind = "circuit_open"
	FailureParse          FailureKind = "parse"
	FailureCountMismatch  FailureKind = "count_mismatch"
	FailureInvalidLabel   FailureKind = "invalid_label"
	FailureRemote         FailureKind = "remote"
	FailureCanceled       FailureKind = "canceled"
)

// Failure describes a failed assignment. Err carries the technical detail
// for logs; UserMessage is safe to print in the CLI.
type Failure struct {
	Err         error
	Kind        FailureKind
	UserMessage string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// UserError converts the failure into a common.UserError.
func (f *Failure) UserError() error {
	return common.NewUserError(f.UserMessage, f)
}

// Result is either a complete, ordered label list or a Failure.
type Result struct {
	Failure *Failure
	Labels  []string
	// Cached counts labels served from the assignment cache.
	Cached int
}

// OK reports whether the assignment succeeded.
func (r Result) OK() bool {
	return r.Failure == nil
}

// AssignOption customizes a single Assign call.
type AssignOption func(*assignOptions)

type assignOptions struct {
	progress ProgressFunc
}

// WithProgress reports finished batches to fn.
func WithProgress(fn ProgressFunc) AssignOption {
	return func(o *assignOptions) { o.progress = fn }
}

// Assigner is the entry point for label assignment.
type Assigner struct {
	dispatcher *Dispatcher
	cache      *AssignmentCache
	logger     *slog.Logger
}

// NewAssigner creates an assigner. cache may be nil.
func NewAssigner(dispatcher *Dispatcher, cache *AssignmentCache, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{
		dispatcher: dispatcher,
		cache:      cache,
		logger:     logger,
	}
}

// Assign returns one canonical label per transaction, in input order. It
// never returns partial results: either every transaction has a label or
// the Result carries a Failure.
func (a *Assigner) Assign(ctx context.Context, req model.AssignmentRequest, opts ...AssignOption) Result {
	var o assignOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !req.Kind.Valid() {
		return a.fail(ctx, req, fmt.Errorf("unknown assignment kind %q", req.Kind))
	}
	if len(req.Transactions) == 0 {
		return Result{Labels: []string{}}
	}
	if len(req.Options) == 0 {
		return a.fail(ctx, req, fmt.Errorf("%w for %s", common.ErrNoOptions, req.Kind.Plural()))
	}

	req.Options = req.Kind.WithSentinel(req.Options)
	start := time.Now()

	labels := make([]string, len(req.Transactions))
	missIndex := make([]int, 0, len(req.Transactions))
	var optKey string
	if a.cache != nil {
		optKey = optionsKey(req.Options)
	}

	for i, txn := range req.Transactions {
		if a.cache != nil {
			if label, ok := a.cache.get(cacheKey(req.Kind, txn, optKey)); ok {
				labels[i] = label
				metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
				continue
			}
			metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		}
		missIndex = append(missIndex, i)
	}

	cached := len(req.Transactions) - len(missIndex)
	if len(missIndex) > 0 {
		misses := make([]model.TransactionDescriptor, len(missIndex))
		for j, i := range missIndex {
			misses[j] = req.Transactions[i]
		}

		assigned, err := a.dispatcher.Dispatch(ctx, model.AssignmentRequest{
			Kind:         req.Kind,
			Transactions: misses,
			Options:      req.Options,
		}, o.progress)
		if err != nil {
			return a.fail(ctx, req, err)
		}
		if len(assigned) != len(misses) {
			return a.fail(ctx, req, fmt.Errorf("%w: Expected %d %s, got %d",
				common.ErrCountMismatch, len(misses), req.Kind.Plural(), len(assigned)))
		}

		for j, i := range missIndex {
			labels[i] = assigned[j]
			if a.cache != nil {
				a.cache.set(cacheKey(req.Kind, req.Transactions[i], optKey), assigned[j])
			}
		}
	}

	a.logger.Info("transactions assigned",
		"kind", req.Kind,
		"transactions", len(labels),
		"cached", cached,
		"duration", time.Since(start))

	return Result{Labels: labels, Cached: cached}
}

func (a *Assigner) fail(ctx context.Context, req model.AssignmentRequest, err error) Result {
	failure := classifyFailure(ctx, req.Kind, err)
	a.logger.Error("assignment failed",
		"kind", req.Kind,
		"transactions", len(req.Transactions),
		"failure", failure.Kind,
		"error", err)
	return Result{Failure: failure}
}

func classifyFailure(ctx context.Context, kind model.AssignmentKind, err error) *Failure {
	f := &Failure{Err: err}

	switch {
	case ctx.Err() != nil:
		f.Kind = FailureCanceled
		f.UserMessage = "Assignment was canceled; no changes were made."
	case errors.Is(err, common.ErrCircuitOpen):
		f.Kind = FailureCircuitOpen
		f.UserMessage = "The AI service is temporarily unavailable after repeated failures. Please try again in a minute."
	case errors.Is(err, common.ErrCountMismatch):
		f.Kind = FailureCountMismatch
		f.UserMessage = fmt.Sprintf("The AI service returned the wrong number of %s; no changes were made.", kind.Plural())
	case errors.Is(err, common.ErrInvalidLabel), errors.Is(err, common.ErrEmptyLabel):
		f.Kind = FailureInvalidLabel
		f.UserMessage = fmt.Sprintf("The AI service suggested a %s that does not exist; no changes were made.", kind)
	case errors.Is(err, common.ErrParse), errors.Is(err, common.ErrMissingField):
		f.Kind = FailureParse
		f.UserMessage = "The AI service returned a response that could not be understood; no changes were made."
	case errors.Is(err, common.ErrNoOptions), errors.Is(err, common.ErrNoTransactions), !kind.Valid():
		f.Kind = FailureInvalidRequest
		f.UserMessage = fmt.Sprintf("Nothing to assign: define some %s first.", kind.Plural())
	default:
		f.Kind = FailureRemote
		f.UserMessage = "Could not get an answer from the AI service after several attempts."
	}

	return f
}
