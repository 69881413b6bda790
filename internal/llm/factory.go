package llm

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-assign/internal/config"
	"github.com/Veraticus/spice-assign/internal/service"
)

// Config holds provider settings for an Invoker.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewInvoker creates a provider client based on the provided configuration.
func NewInvoker(cfg Config) (Invoker, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// Components are the shared, per-endpoint pieces an Assigner is built from.
type Components struct {
	Limiter   *RateLimiter
	Breaker   *CircuitBreaker
	Validator *ResponseValidator
	Cache     *AssignmentCache
}

// NewAssignerFromConfig wires a provider client, the endpoint's rate limiter
// and circuit breaker, and the assignment cache into an Assigner. The
// returned Components let callers inspect or close the shared pieces.
func NewAssignerFromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Assigner, *Components, error) {
	invoker, err := NewInvoker(Config{
		Provider:    cfg.Provider,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return NewAssignerWithInvoker(invoker, cfg, logger)
}

// NewAssignerWithInvoker builds an Assigner around an existing Invoker.
func NewAssignerWithInvoker(invoker Invoker, cfg config.LLMConfig, logger *slog.Logger) (*Assigner, *Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	components := &Components{
		Limiter: NewRateLimiter(cfg.RateLimit.MaxTokensPerMinute, cfg.RateLimit.Interval()),
		Breaker: NewCircuitBreaker(BreakerConfig{
			Endpoint:         cfg.Provider,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			ResetTimeout:     cfg.CircuitBreaker.Reset(),
			HalfOpenTimeout:  cfg.CircuitBreaker.HalfOpen(),
		}, logger),
		Validator: NewResponseValidator(cfg.MaxEditDistance),
	}
	if cfg.CacheTTL > 0 {
		components.Cache = NewAssignmentCache(cfg.CacheTTL)
	}

	var matcher Matcher = ExactMatcher{}
	if cfg.FuzzyMatch {
		matcher = components.Validator
	}

	dispatcher := NewDispatcher(invoker, components.Limiter, components.Breaker, NewPromptBuilder(matcher),
		DispatcherConfig{
			BatchSize:     cfg.BatchSize,
			MaxConcurrent: cfg.MaxConcurrent,
			Retry: service.RetryOptions{
				MaxAttempts:  cfg.MaxRetries + 1,
				InitialDelay: cfg.RetryDelay(),
				MaxDelay:     cfg.MaxRetryDelay(),
				Multiplier:   2.0,
			},
		}, logger)

	return NewAssigner(dispatcher, components.Cache, logger), components, nil
}

// Close releases background resources.
func (c *Components) Close() {
	if c != nil && c.Cache != nil {
		c.Cache.Close()
	}
}
