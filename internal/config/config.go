// Package config provides configuration utilities for the application.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/spf13/viper"
)

// RateLimitConfig holds the token bucket settings for the LLM endpoint.
type RateLimitConfig struct {
	MaxTokensPerMinute int
	// RefillInterval is the time, in milliseconds, for an empty bucket to refill.
	RefillInterval int
}

// CircuitBreakerConfig holds the breaker thresholds for the LLM endpoint.
// Timeouts are in milliseconds.
type CircuitBreakerConfig struct {
	FailureThreshold int
	ResetTimeout     int
	HalfOpenTimeout  int
}

// LLMConfig holds provider and resilience settings.
type LLMConfig struct {
	Provider        string
	Model           string
	APIKey          string
	BaseURL         string
	RateLimit       RateLimitConfig
	CircuitBreaker  CircuitBreakerConfig
	Temperature     float64
	Timeout         time.Duration
	CacheTTL        time.Duration
	MaxTokens       int
	BatchSize       int
	MaxConcurrent   int
	MaxRetries      int
	RetryDelayMs    int
	MaxRetryDelayMs int
	MaxEditDistance int
	FuzzyMatch      bool
}

// Config is the complete application configuration.
type Config struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string
	MetricsAddr  string
	LLM          LLMConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath: "~/.local/share/spice/assign.db",
		LogLevel:     "info",
		LogFormat:    "console",
		LLM: LLMConfig{
			Provider:        "openai",
			Temperature:     0.1,
			MaxTokens:       1024,
			Timeout:         30 * time.Second,
			CacheTTL:        24 * time.Hour,
			BatchSize:       20,
			MaxConcurrent:   3,
			MaxRetries:      3,
			RetryDelayMs:    1000,
			MaxRetryDelayMs: 8000,
			MaxEditDistance: 3,
			FuzzyMatch:      true,
			RateLimit: RateLimitConfig{
				MaxTokensPerMinute: 60,
				RefillInterval:     60000,
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30000,
				HalfOpenTimeout:  15000,
			},
		},
	}
}

// SetDefaults registers the defaults with v so config files and SPICE_
// environment variables only need to override what differs.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("database.path", d.DatabasePath)
	v.SetDefault("logging.level", d.LogLevel)
	v.SetDefault("logging.format", d.LogFormat)
	v.SetDefault("metrics.addr", d.MetricsAddr)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.cache_ttl", d.LLM.CacheTTL)
	v.SetDefault("llm.batch_size", d.LLM.BatchSize)
	v.SetDefault("llm.max_concurrent", d.LLM.MaxConcurrent)
	v.SetDefault("llm.max_retries", d.LLM.MaxRetries)
	v.SetDefault("llm.retry_delay_ms", d.LLM.RetryDelayMs)
	v.SetDefault("llm.max_retry_delay_ms", d.LLM.MaxRetryDelayMs)
	v.SetDefault("llm.max_edit_distance", d.LLM.MaxEditDistance)
	v.SetDefault("llm.fuzzy_match", d.LLM.FuzzyMatch)
	v.SetDefault("llm.rate_limit.max_tokens_per_minute", d.LLM.RateLimit.MaxTokensPerMinute)
	v.SetDefault("llm.rate_limit.refill_interval", d.LLM.RateLimit.RefillInterval)
	v.SetDefault("llm.circuit_breaker.failure_threshold", d.LLM.CircuitBreaker.FailureThreshold)
	v.SetDefault("llm.circuit_breaker.reset_timeout", d.LLM.CircuitBreaker.ResetTimeout)
	v.SetDefault("llm.circuit_breaker.half_open_timeout", d.LLM.CircuitBreaker.HalfOpenTimeout)
}

// Load reads the configuration from v and validates it. Invalid values are
// reported here, before any component is constructed.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DatabasePath: ExpandPath(v.GetString("database.path")),
		LogLevel:     v.GetString("logging.level"),
		LogFormat:    v.GetString("logging.format"),
		MetricsAddr:  v.GetString("metrics.addr"),
		LLM: LLMConfig{
			Provider:        strings.ToLower(v.GetString("llm.provider")),
			Model:           v.GetString("llm.model"),
			APIKey:          v.GetString("llm.api_key"),
			BaseURL:         v.GetString("llm.base_url"),
			Temperature:     v.GetFloat64("llm.temperature"),
			MaxTokens:       v.GetInt("llm.max_tokens"),
			Timeout:         v.GetDuration("llm.timeout"),
			CacheTTL:        v.GetDuration("llm.cache_ttl"),
			BatchSize:       v.GetInt("llm.batch_size"),
			MaxConcurrent:   v.GetInt("llm.max_concurrent"),
			MaxRetries:      v.GetInt("llm.max_retries"),
			RetryDelayMs:    v.GetInt("llm.retry_delay_ms"),
			MaxRetryDelayMs: v.GetInt("llm.max_retry_delay_ms"),
			MaxEditDistance: v.GetInt("llm.max_edit_distance"),
			FuzzyMatch:      v.GetBool("llm.fuzzy_match"),
			RateLimit: RateLimitConfig{
				MaxTokensPerMinute: v.GetInt("llm.rate_limit.max_tokens_per_minute"),
				RefillInterval:     v.GetInt("llm.rate_limit.refill_interval"),
			},
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: v.GetInt("llm.circuit_breaker.failure_threshold"),
				ResetTimeout:     v.GetInt("llm.circuit_breaker.reset_timeout"),
				HalfOpenTimeout:  v.GetInt("llm.circuit_breaker.half_open_timeout"),
			},
		},
	}

	// Fall back to the provider's conventional environment variable.
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database.path is required", common.ErrMissingConfig)
	}
	if _, err := common.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: logging.level: %w", common.ErrInvalidConfig, err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: logging.format must be console or json, got %q", common.ErrInvalidConfig, c.LogFormat)
	}
	return c.LLM.Validate()
}

// Validate checks the LLM settings. Every resilience knob must be positive.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, c.Provider)
	}

	positive := []struct {
		key   string
		value int
	}{
		{"llm.batch_size", c.BatchSize},
		{"llm.max_concurrent", c.MaxConcurrent},
		{"llm.retry_delay_ms", c.RetryDelayMs},
		{"llm.max_retry_delay_ms", c.MaxRetryDelayMs},
		{"llm.max_tokens", c.MaxTokens},
		{"llm.rate_limit.max_tokens_per_minute", c.RateLimit.MaxTokensPerMinute},
		{"llm.rate_limit.refill_interval", c.RateLimit.RefillInterval},
		{"llm.circuit_breaker.failure_threshold", c.CircuitBreaker.FailureThreshold},
		{"llm.circuit_breaker.reset_timeout", c.CircuitBreaker.ResetTimeout},
		{"llm.circuit_breaker.half_open_timeout", c.CircuitBreaker.HalfOpenTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", common.ErrInvalidConfig, p.key, p.value)
		}
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: llm.max_retries cannot be negative", common.ErrInvalidConfig)
	}
	if c.MaxEditDistance < 0 {
		return fmt.Errorf("%w: llm.max_edit_distance cannot be negative", common.ErrInvalidConfig)
	}
	if c.MaxRetryDelayMs < c.RetryDelayMs {
		return fmt.Errorf("%w: llm.max_retry_delay_ms (%d) is below llm.retry_delay_ms (%d)",
			common.ErrInvalidConfig, c.MaxRetryDelayMs, c.RetryDelayMs)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: llm.temperature must be between 0 and 2", common.ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// RetryDelay returns the initial backoff.
func (c *LLMConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// MaxRetryDelay returns the backoff ceiling.
func (c *LLMConfig) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelayMs) * time.Millisecond
}

// Interval returns the rate limiter refill interval.
func (c RateLimitConfig) Interval() time.Duration {
	return time.Duration(c.RefillInterval) * time.Millisecond
}

// Reset returns how long the breaker stays open.
func (c CircuitBreakerConfig) Reset() time.Duration {
	return time.Duration(c.ResetTimeout) * time.Millisecond
}

// HalfOpen returns the maximum duration of a half-open trial call.
func (c CircuitBreakerConfig) HalfOpen() time.Duration {
	return time.Duration(c.HalfOpenTimeout) * time.Millisecond
}
