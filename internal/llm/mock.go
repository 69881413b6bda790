package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"
)

var transactionLine = regexp.MustCompile(`^\d+\. (.*)$`)

// MockRule maps transactions whose prompt line contains Keyword to Label.
type MockRule struct {
	Keyword string
	Label   string
}

// MockCall records one Invoke call.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
	Schema       FunctionSchema
	// Lines are the numbered transaction lines of the user prompt.
	Lines []string
}

// MockInvoker is a deterministic Invoker for tests. By
// default each transaction gets the label of the first rule whose keyword
// appears in its prompt line, or the schema's last option (the "no match"
// sentinel) when none does. Set Handler to script replies instead.
type MockInvoker struct {
	Handler     func(ctx context.Context, call MockCall) (string, error)
	rules       []MockRule
	calls       []MockCall
	inFlight    int
	maxInFlight int
	mu          sync.Mutex
}

// NewMockInvoker creates a mock that answers from rules.
func NewMockInvoker(rules ...MockRule) *MockInvoker {
	return &MockInvoker{rules: rules}
}

// Invoke records the call and returns the scripted or rule-based reply.
func (m *MockInvoker) Invoke(ctx context.Context, systemPrompt, userPrompt string, schema FunctionSchema) (string, error) {
	call := MockCall{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Schema:       schema,
		Lines:        promptLines(userPrompt),
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.inFlight++
	m.maxInFlight = max(m.maxInFlight, m.inFlight)
	handler := m.Handler
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if handler != nil {
		return handler(ctx, call)
	}
	return m.answer(call)
}

func (m *MockInvoker) answer(call MockCall) (string, error) {
	field, options := schemaField(call.Schema)
	fallback := ""
	if len(options) > 0 {
		fallback = options[len(options)-1]
	}

	labels := make([]string, len(call.Lines))
	for i, line := range call.Lines {
		labels[i] = fallback
		lower := strings.ToLower(line)
		for _, rule := range m.rules {
			if strings.Contains(lower, strings.ToLower(rule.Keyword)) {
				labels[i] = rule.Label
				break
			}
		}
	}

	reply, err := json.Marshal(map[string][]string{field: labels})
	if err != nil {
		return "", err
	}
	return string(reply), nil
}

// Calls returns a copy of the recorded calls.
func (m *MockInvoker) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns the number of Invoke calls so far.
func (m *MockInvoker) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MaxInFlight returns the highest number of concurrent Invoke calls seen.
func (m *MockInvoker) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Reset clears recorded calls and concurrency tracking.
func (m *MockInvoker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.inFlight = 0
	m.maxInFlight = 0
}

// LabelReply encodes labels the way a well-behaved model replies.
func LabelReply(field string, labels ...string) string {
	if labels == nil {
		labels = []string{}
	}
	reply, _ := json.Marshal(map[string][]string{field: labels})
	return string(reply)
}

func promptLines(userPrompt string) []string {
	var lines []string
	for _, line := range strings.Split(userPrompt, "\n") {
		if match := transactionLine.FindStringSubmatch(line); match != nil {
			lines = append(lines, match[1])
		}
	}
	return lines
}

func schemaField(schema FunctionSchema) (string, []string) {
	for name, prop := range schema.Parameters.Properties {
		if prop != nil && prop.Items != nil {
			return name, prop.Items.Enum
		}
	}
	return "categories", nil
}

var _ Invoker = (*MockInvoker)(nil)
