package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/model"
)

// maxErrorContext bounds how much of a raw reply is quoted in errors.
const maxErrorContext = 200

// ParseResponse decodes the model's reply into one canonical label per
// transaction, in order. The reply must be a JSON object whose only field
// is the kind's array ("categories" or "budgets") of exactly expected
// strings; each string is resolved against options with the builder's
// matcher.
func (b *PromptBuilder) ParseResponse(kind model.AssignmentKind, raw string, expected int, options []string) ([]string, error) {
	values, err := decodeLabels(kind, raw)
	if err != nil {
		return nil, err
	}

	if len(values) != expected {
		return nil, fmt.Errorf("%w: Expected %d %s, got %d",
			common.ErrCountMismatch, expected, kind.Plural(), len(values))
	}

	labels := make([]string, len(values))
	for i, value := range values {
		label, err := b.matcher.Match(kind, value, options)
		if err != nil {
			return nil, fmt.Errorf("%s at index %d is %q (valid options include: %s): %w",
				kind, i, value, sampleOptions(options, 5), err)
		}
		labels[i] = label
	}

	return labels, nil
}

// decodeLabels performs the fail-closed structural decode.
func decodeLabels(kind model.AssignmentKind, raw string) ([]string, error) {
	content := stripCodeFence(raw)
	if content == "" {
		return nil, fmt.Errorf("%w: empty response", common.ErrParse)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: %w (response: %s)", common.ErrParse, err, truncate(content))
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: response is null", common.ErrParse)
	}

	field := kind.Plural()
	for key := range payload {
		if key != field {
			return nil, fmt.Errorf("%w: unexpected field %q (response: %s)", common.ErrParse, key, truncate(content))
		}
	}

	rawArray, ok := payload[field]
	if !ok {
		return nil, fmt.Errorf("%w: response has no %q array (response: %s)", common.ErrMissingField, field, truncate(content))
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(rawArray, &elements); err != nil || elements == nil {
		return nil, fmt.Errorf("%w: %q is not an array (response: %s)", common.ErrMissingField, field, truncate(content))
	}

	values := make([]string, len(elements))
	for i, element := range elements {
		if err := json.Unmarshal(element, &values[i]); err != nil {
			return nil, fmt.Errorf("%w: %s[%d] is not a string: %s", common.ErrParse, field, i, string(element))
		}
	}

	return values, nil
}

// stripCodeFence removes a markdown code fence some models wrap JSON in.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```")
	if newline := strings.IndexByte(content, '\n'); newline >= 0 {
		content = content[newline+1:]
	} else {
		content = strings.TrimPrefix(content, "json")
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

func truncate(s string) string {
	return clipString(s, maxErrorContext)
}

// clipString cuts s to at most n bytes without splitting a rune.
func clipString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func sampleOptions(options []string, n int) string {
	if len(options) <= n {
		return strings.Join(options, ", ")
	}
	return strings.Join(options[:n], ", ") + fmt.Sprintf(", ... (%d more)", len(options)-n)
}
