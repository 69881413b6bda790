package llm

import (
	"context"
)

// Invoker makes one remote call: it sends the prompts and the function
// schema and returns the model's raw structured reply (the function-call
// arguments). It is opaque to the resilience layer, which only observes
// success, failure and latency.
type Invoker interface {
	Invoke(ctx context.Context, systemPrompt, userPrompt string, schema FunctionSchema) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, systemPrompt, userPrompt string, schema FunctionSchema) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, systemPrompt, userPrompt string, schema FunctionSchema) (string, error) {
	return f(ctx, systemPrompt, userPrompt, schema)
}

// FunctionSchema describes the function the model must call.
type FunctionSchema struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  JSONSchema `json:"parameters"`
}

// JSONSchema is the subset of JSON Schema used for assignment replies.
type JSONSchema struct {
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty"`
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Required    []string               `json:"required,omitempty"`
}
