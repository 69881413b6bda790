package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/config"
	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLLMConfig() config.LLMConfig {
	cfg := config.DefaultConfig().LLM
	cfg.BatchSize = 3
	cfg.MaxConcurrent = 2
	cfg.MaxRetries = 2
	cfg.RetryDelayMs = 1
	cfg.MaxRetryDelayMs = 2
	cfg.RateLimit.MaxTokensPerMinute = 1000
	return cfg
}

func newTestAssigner(t *testing.T, invoker Invoker, cfg config.LLMConfig) (*Assigner, *Components) {
	t.Helper()
	assigner, components, err := NewAssignerWithInvoker(invoker, cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(components.Close)
	return assigner, components
}

func TestAssigner_Assign(t *testing.T) {
	invoker := NewMockInvoker(
		MockRule{Keyword: "safeway", Label: "Groceries"},
		MockRule{Keyword: "starbucks", Label: "Coffee and Tea"},
		MockRule{Keyword: "shell", Label: "transportation"},
	)
	assigner, _ := newTestAssigner(t, invoker, testLLMConfig())

	txns := []model.TransactionDescriptor{
		{Description: "SAFEWAY #123", Amount: "54.20", Date: "2024-04-01"},
		{Description: "Starbucks", Amount: "6.75", Date: "2024-04-01"},
		{Description: "Shell Oil", Amount: "40.00", Date: "2024-04-02"},
		{Description: "Mystery Vendor", Amount: "9.99", Date: "2024-04-03"},
		{Description: "Safeway Fuel", Amount: "33.10", Date: "2024-04-03"},
	}

	result := assigner.Assign(context.Background(), model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: txns,
		Options:      testCategories,
	})

	require.True(t, result.OK(), "unexpected failure: %v", result.Failure)
	assert.Equal(t, []string{"Groceries", "Coffee & Tea", "Transportation", model.NoCategory, "Groceries"}, result.Labels)
	assert.Zero(t, result.Cached)
	assert.Equal(t, 2, invoker.CallCount())

	schema := invoker.Calls()[0].Schema
	assert.Contains(t, schema.Parameters.Properties["categories"].Items.Enum, model.NoCategory)
}

func TestAssigner_Cache(t *testing.T) {
	invoker := NewMockInvoker(MockRule{Keyword: "netflix", Label: "Entertainment"})
	assigner, components := newTestAssigner(t, invoker, testLLMConfig())
	require.NotNil(t, components.Cache)

	req := model.AssignmentRequest{
		Kind: model.KindCategory,
		Transactions: []model.TransactionDescriptor{
			{Description: "Netflix", Amount: "15.49", Date: "2024-05-01"},
		},
		Options: testCategories,
	}

	first := assigner.Assign(context.Background(), req)
	require.True(t, first.OK())

	req.Transactions = append(req.Transactions, model.TransactionDescriptor{Description: "Netflix", Amount: "15.49", Date: "2024-06-01"})
	second := assigner.Assign(context.Background(), req)
	require.True(t, second.OK())

	assert.Equal(t, []string{"Entertainment", "Entertainment"}, second.Labels)
	assert.Equal(t, 1, second.Cached)
	assert.Equal(t, 2, invoker.CallCount())
	assert.Len(t, invoker.Calls()[1].Lines, 1, "only the cache miss is sent")

	// A different option set must not reuse the cached answer.
	req.Options = append([]string{"Streaming"}, testCategories...)
	third := assigner.Assign(context.Background(), req)
	require.True(t, third.OK())
	assert.Zero(t, third.Cached)
}

func TestAssigner_NoCacheWhenTTLZero(t *testing.T) {
	cfg := testLLMConfig()
	cfg.CacheTTL = 0
	_, components := newTestAssigner(t, NewMockInvoker(), cfg)
	assert.Nil(t, components.Cache)
}

func TestAssigner_EmptyRequest(t *testing.T) {
	invoker := NewMockInvoker()
	assigner, _ := newTestAssigner(t, invoker, testLLMConfig())

	result := assigner.Assign(context.Background(), model.AssignmentRequest{Kind: model.KindBudget, Options: []string{"Household"}})
	require.True(t, result.OK())
	assert.Empty(t, result.Labels)
	assert.Zero(t, invoker.CallCount())
}

func TestAssigner_Failures(t *testing.T) {
	txns := []model.TransactionDescriptor{{Description: "Coffee", Amount: "4.00", Date: "2024-04-01"}}

	tests := []struct {
		handler  func(context.Context, MockCall) (string, error)
		name     string
		kind     model.AssignmentKind
		options  []string
		wantKind FailureKind
		wantErr  error
	}{
		{
			name:     "no options",
			kind:     model.KindCategory,
			wantKind: FailureInvalidRequest,
			wantErr:  common.ErrNoOptions,
		},
		{
			name:     "unknown kind",
			kind:     model.AssignmentKind("tag"),
			options:  testCategories,
			wantKind: FailureInvalidRequest,
		},
		{
			name:    "malformed reply",
			kind:    model.KindCategory,
			options: testCategories,
			handler: func(context.Context, MockCall) (string, error) {
				return "I think Groceries", nil
			},
			wantKind: FailureParse,
			wantErr:  common.ErrParse,
		},
		{
			name:    "wrong count",
			kind:    model.KindCategory,
			options: testCategories,
			handler: func(context.Context, MockCall) (string, error) {
				return LabelReply("categories", "Groceries", "Groceries"), nil
			},
			wantKind: FailureCountMismatch,
			wantErr:  common.ErrCountMismatch,
		},
		{
			name:    "invented label",
			kind:    model.KindCategory,
			options: testCategories,
			handler: func(context.Context, MockCall) (string, error) {
				return LabelReply("categories", "Cryptocurrency"), nil
			},
			wantKind: FailureInvalidLabel,
			wantErr:  common.ErrInvalidLabel,
		},
		{
			name:    "remote keeps failing",
			kind:    model.KindCategory,
			options: testCategories,
			handler: func(context.Context, MockCall) (string, error) {
				return "", fmt.Errorf("%w: status 500", common.ErrRemote)
			},
			wantKind: FailureRemote,
			wantErr:  common.ErrMaxRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := NewMockInvoker()
			invoker.Handler = tt.handler
			assigner, _ := newTestAssigner(t, invoker, testLLMConfig())

			result := assigner.Assign(context.Background(), model.AssignmentRequest{
				Kind:         tt.kind,
				Transactions: txns,
				Options:      tt.options,
			})

			require.False(t, result.OK())
			assert.Nil(t, result.Labels, "failures never carry partial labels")
			assert.Equal(t, tt.wantKind, result.Failure.Kind)
			assert.NotEmpty(t, result.Failure.UserMessage)
			if tt.wantErr != nil {
				assert.ErrorIs(t, result.Failure, tt.wantErr)
			}

			userErr := result.Failure.UserError()
			assert.Equal(t, result.Failure.UserMessage, common.UserMessage(userErr))
		})
	}
}

func TestAssigner_CircuitOpen(t *testing.T) {
	cfg := testLLMConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreaker.FailureThreshold = 1
	cfg.CircuitBreaker.ResetTimeout = int(time.Hour / time.Millisecond)

	invoker := NewMockInvoker()
	invoker.Handler = func(context.Context, MockCall) (string, error) {
		return "", errors.New("connection refused")
	}
	assigner, components := newTestAssigner(t, invoker, cfg)

	req := model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: []model.TransactionDescriptor{{Description: "Coffee", Amount: "4.00", Date: "2024-04-01"}},
		Options:      testCategories,
	}

	first := assigner.Assign(context.Background(), req)
	require.False(t, first.OK())
	assert.Equal(t, FailureRemote, first.Failure.Kind)
	assert.Equal(t, StateOpen, components.Breaker.State())

	second := assigner.Assign(context.Background(), req)
	require.False(t, second.OK())
	assert.Equal(t, FailureCircuitOpen, second.Failure.Kind)
	assert.Equal(t, 1, invoker.CallCount())
}

func TestAssigner_Canceled(t *testing.T) {
	invoker := NewMockInvoker()
	invoker.Handler = func(ctx context.Context, _ MockCall) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	assigner, _ := newTestAssigner(t, invoker, testLLMConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := assigner.Assign(ctx, model.AssignmentRequest{
		Kind:         model.KindCategory,
		Transactions: []model.TransactionDescriptor{{Description: "Coffee", Amount: "4.00", Date: "2024-04-01"}},
		Options:      testCategories,
	})

	require.False(t, result.OK())
	assert.Equal(t, FailureCanceled, result.Failure.Kind)
}
