// Package metrics exposes prometheus collectors for LLM traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMRequestsTotal counts remote calls by assignment kind and outcome.
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spice_llm_requests_total",
			Help: "Total number of LLM requests",
		},
		[]string{"kind", "outcome"},
	)

	// LLMRetriesTotal counts attempts that were followed by a backoff.
	LLMRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spice_llm_retries_total",
			Help: "Total number of retried LLM attempts",
		},
		[]string{"kind"},
	)

	// LLMLatency tracks remote call latency.
	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spice_llm_latency_seconds",
			Help:    "LLM request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// BatchesTotal counts dispatched batches by final result.
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spice_llm_batches_total",
			Help: "Total number of transaction batches dispatched",
		},
		[]string{"kind", "result"},
	)

	// CircuitBreakerState reports each endpoint's breaker state (0 closed, 1 open, 2 half-open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spice_llm_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"endpoint"},
	)

	// CircuitBreakerTransitions counts state changes by endpoint and target state.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spice_llm_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"endpoint", "to"},
	)

	// RateLimitWaitSeconds tracks time spent waiting for rate limiter tokens.
	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spice_llm_rate_limit_wait_seconds",
			Help:    "Time spent waiting for rate limiter admission",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CacheLookupsTotal counts assignment cache lookups by result.
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spice_llm_cache_lookups_total",
			Help: "Total number of assignment cache lookups",
		},
		[]string{"result"},
	)
)
