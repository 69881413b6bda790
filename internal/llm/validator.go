package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/spice-assign/internal/common"
	"github.com/Veraticus/spice-assign/internal/model"
)

// DefaultMaxEditDistance is the largest edit distance accepted as a fuzzy
// match unless configured otherwise. It admits "Coffee and Tea" for
// "Coffee & Tea" (distance 3).
const DefaultMaxEditDistance = 3

// runesPerEdit scales the fuzzy limit with label length: a pair may differ
// by one edit per runesPerEdit runes of the longer string, at least one.
const runesPerEdit = 4

// Matcher resolves one raw label from the model to its canonical option.
type Matcher interface {
	Match(kind model.AssignmentKind, value string, options []string) (string, error)
}

// Normalize trims, case-folds and collapses inner whitespace.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ExactMatcher accepts only normalized exact matches.
type ExactMatcher struct{}

// Match returns the canonical spelling of value.
func (ExactMatcher) Match(kind model.AssignmentKind, value string, options []string) (string, error) {
	normalized := Normalize(value)
	if normalized == "" {
		if kind == model.KindBudget {
			return "", nil
		}
		return "", common.ErrEmptyLabel
	}

	for _, option := range options {
		if Normalize(option) == normalized {
			return option, nil
		}
	}
	return "", fmt.Errorf("%w: no option matches %q", common.ErrInvalidLabel, value)
}

// ResponseValidator matches labels exactly first and then by edit distance.
type ResponseValidator struct {
	maxDistance int
}

// NewResponseValidator creates a validator accepting fuzzy matches up to
// maxDistance edits inclusive, further capped by label length (see
// AllowedDistance). Negative values use the default.
func NewResponseValidator(maxDistance int) *ResponseValidator {
	if maxDistance < 0 {
		maxDistance = DefaultMaxEditDistance
	}
	return &ResponseValidator{maxDistance: maxDistance}
}

// MaxDistance returns the accepted edit distance.
func (v *ResponseValidator) MaxDistance() int {
	return v.maxDistance
}

// ValidateCategoryResponse resolves a category. Empty input is an error.
func (v *ResponseValidator) ValidateCategoryResponse(value string, options []string) (string, error) {
	if Normalize(value) == "" {
		return "", fmt.Errorf("%w: category is required", common.ErrEmptyLabel)
	}
	return v.closest(value, options)
}

// ValidateBudgetResponse resolves a budget. Empty input means no budget
// and returns "".
func (v *ResponseValidator) ValidateBudgetResponse(value string, options []string) (string, error) {
	if Normalize(value) == "" {
		return "", nil
	}
	return v.closest(value, options)
}

// Match implements Matcher.
func (v *ResponseValidator) Match(kind model.AssignmentKind, value string, options []string) (string, error) {
	if kind == model.KindBudget {
		return v.ValidateBudgetResponse(value, options)
	}
	return v.ValidateCategoryResponse(value, options)
}

// closest returns the option nearest to value. Exact normalized matches win
// before any distance is computed; ties go to the earliest option.
func (v *ResponseValidator) closest(value string, options []string) (string, error) {
	normalized := Normalize(value)

	normalizedOptions := make([]string, len(options))
	for i, option := range options {
		normalizedOptions[i] = Normalize(option)
		if normalizedOptions[i] == normalized {
			return option, nil
		}
	}

	best, bestDistance := -1, 0
	for i, option := range normalizedOptions {
		d := EditDistance(normalized, option)
		if d > v.AllowedDistance(normalized, option) {
			continue
		}
		if best < 0 || d < bestDistance {
			best, bestDistance = i, d
		}
	}

	if best < 0 {
		return "", fmt.Errorf("%w: no option close enough to %q", common.ErrInvalidLabel, value)
	}
	return options[best], nil
}

// AllowedDistance returns the edit budget for comparing a and b: the
// configured maximum, but no more than one edit per four runes of the longer
// string and never less than one.
func (v *ResponseValidator) AllowedDistance(a, b string) int {
	longer := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return min(v.maxDistance, max(1, longer/runesPerEdit))
}

// EditDistance returns the Levenshtein distance between a and b, counted in
// runes, using two rows of the dynamic-programming table.
func EditDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}
