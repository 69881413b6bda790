// Package llm assigns categories and budgets to transactions through a remote
// language model. It shapes traffic to that single endpoint with a token
// bucket rate limiter, a circuit breaker and capped exponential retry, runs
// batches over a bounded worker pool, and validates the model's answers
// against the closed set of valid labels.
package llm
