package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDescriptors(n int) []model.TransactionDescriptor {
	txns := make([]model.TransactionDescriptor, n)
	for i := range txns {
		txns[i] = model.TransactionDescriptor{
			Description: fmt.Sprintf("Merchant %02d", i+1),
			Amount:      fmt.Sprintf("%d.00", i+1),
			Date:        "2024-02-01",
			Source:      model.NamedAccount("Checking"),
			Destination: model.NamedAccount(fmt.Sprintf("Merchant %02d", i+1)),
		}
	}
	return txns
}

func newTestDispatcher(invoker Invoker, batchSize, maxConcurrent int) *Dispatcher {
	return NewDispatcher(
		invoker,
		NewRateLimiter(1000, time.Minute),
		NewCircuitBreaker(BreakerConfig{FailureThreshold: 100}, quietLogger()),
		NewPromptBuilder(nil),
		DispatcherConfig{
			BatchSize:     batchSize,
			MaxConcurrent: maxConcurrent,
			Retry: service.RetryOptions{
				MaxAttempts:  3,
				InitialDelay: time.Millisecond,
				MaxDelay:     5 * time.Millisecond,
			},
		},
		quietLogger(),
	)
}

func TestPartition(t *testing.T) {
	batches := Partition(testDescriptors(10), 3)

	require.Len(t, batches, 4)
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b.Items)
		assert.Equal(t, i, b.Index)
		assert.Equal(t, i*3, b.Start)
	}
	assert.Equal(t, []int{3, 3, 3, 1}, sizes)

	assert.Empty(t, Partition(nil, 3))
	assert.Len(t, Partition(testDescriptors(2), 0), 2)
}

// echoInvoker labels each transaction with its own merchant name, so the
// result order can be checked against the input.
func echoInvoker(delay time.Duration) *MockInvoker {
	m := NewMockInvoker()
	m.Handler = func(ctx context.Context, call MockCall) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		labels := make([]string, len(call.Lines))
		for i, line := range call.Lines {
			labels[i] = strings.SplitN(line, " - ", 2)[0]
		}
		return LabelReply("categories", labels...), nil
	}
	return m
}

func merchantOptions(n int) []string {
	options := make([]string, n)
	for i := range options {
		options[i] = fmt.Sprintf("Merchant %02d", i+1)
	}
	return options
}

func TestDispatcher_OrderAndConcurrency(t *testing.T) {
	invoker := echoInvoker(20 * time.Millisecond)
	d := newTestDispatcher(invoker, 3, 2)

	var progressMu sync.Mutex
	var progress []int
	labels, err := d.Dispatch(context.Background(), model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: testDescriptors(10),
		Options:      merchantOptions(10),
	}, func(done, total int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		assert.Equal(t, 4, total)
		progress = append(progress, done)
	})

	require.NoError(t, err)
	assert.Equal(t, merchantOptions(10), labels)
	assert.Equal(t, 4, invoker.CallCount())
	assert.LessOrEqual(t, invoker.MaxInFlight(), 2)
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, progress)

	sizes := make([]int, 0, 4)
	for _, call := range invoker.Calls() {
		sizes = append(sizes, len(call.Lines))
	}
	assert.ElementsMatch(t, []int{3, 3, 3, 1}, sizes)
}

func TestDispatcher_FatalErrorStopsQueuedBatches(t *testing.T) {
	var mu sync.Mutex
	started := map[string]bool{}

	invoker := NewMockInvoker()
	invoker.Handler = func(ctx context.Context, call MockCall) (string, error) {
		first := strings.SplitN(call.Lines[0], " - ", 2)[0]
		mu.Lock()
		started[first] = true
		mu.Unlock()

		switch first {
		case "Merchant 01":
			// Batch 1 holds its worker until the group is canceled.
			<-ctx.Done()
			return "", ctx.Err()
		case "Merchant 04":
			return `{"categories":["not json"`, nil
		default:
			return LabelReply("categories", "Merchant 01", "Merchant 01", "Merchant 01"), nil
		}
	}

	d := newTestDispatcher(invoker, 3, 2)
	_, err := d.Dispatch(context.Background(), model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: testDescriptors(10),
		Options:      merchantOptions(10),
	}, nil)

	require.ErrorIs(t, err, common.ErrParse)
	assert.Contains(t, err.Error(), "batch 2 (transactions 4-6)")

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, started["Merchant 01"])
	assert.True(t, started["Merchant 04"])
	assert.False(t, started["Merchant 07"], "batch 3 must not start after a fatal error")
	assert.False(t, started["Merchant 10"], "batch 4 must not start after a fatal error")
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	invoker := NewMockInvoker()
	invoker.Handler = func(_ context.Context, call MockCall) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return "", fmt.Errorf("%w: status 503", common.ErrRemote)
		}
		return LabelReply("categories", "Merchant 01"), nil
	}

	d := newTestDispatcher(invoker, 5, 1)
	labels, err := d.Dispatch(context.Background(), model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: testDescriptors(1),
		Options:      merchantOptions(1),
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"Merchant 01"}, labels)
	assert.Equal(t, 3, calls)
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	invoker := NewMockInvoker()
	invoker.Handler = func(context.Context, MockCall) (string, error) {
		return "", errors.New("connection refused")
	}

	d := newTestDispatcher(invoker, 5, 1)
	_, err := d.Dispatch(context.Background(), model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: testDescriptors(2),
		Options:      merchantOptions(2),
	}, nil)

	require.ErrorIs(t, err, common.ErrMaxRetries)
	assert.Equal(t, 3, invoker.CallCount())
}

func TestDispatcher_OpenCircuitFailsFast(t *testing.T) {
	invoker := NewMockInvoker()
	invoker.Handler = func(context.Context, MockCall) (string, error) {
		return "", errors.New("boom")
	}

	breaker := NewCircuitBreaker(BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}, quietLogger())
	d := NewDispatcher(invoker, NewRateLimiter(1000, time.Minute), breaker, NewPromptBuilder(nil),
		DispatcherConfig{
			BatchSize:     5,
			MaxConcurrent: 1,
			Retry:         service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		}, quietLogger())

	_, err := d.Dispatch(context.Background(), model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: testDescriptors(1),
		Options:      merchantOptions(1),
	}, nil)

	require.ErrorIs(t, err, common.ErrCircuitOpen)
	assert.Equal(t, 2, invoker.CallCount(), "calls stop once the breaker opens")
	assert.Equal(t, StateOpen, breaker.State())
}

func TestDispatcher_RejectsEmptyRequests(t *testing.T) {
	d := newTestDispatcher(NewMockInvoker(), 5, 1)

	_, err := d.Dispatch(context.Background(), model.AssignmentRequest{Kind: model.KindCategory, Options: []string{"A"}}, nil)
	assert.ErrorIs(t, err, common.ErrNoTransactions)

	_, err = d.Dispatch(context.Background(), model.AssignmentRequest{Kind: model.KindCategory, Transactions: testDescriptors(1)}, nil)
	assert.ErrorIs(t, err, common.ErrNoOptions)
}
