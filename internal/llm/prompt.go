package llm

import (
	"fmt"
	"strings"

	"github.com/Veraticus/spice-assign/internal/model"
)

// PromptBuilder builds assignment prompts and parses the replies.
type PromptBuilder struct {
	matcher Matcher
}

// NewPromptBuilder creates a builder that resolves returned labels with
// matcher. A nil matcher accepts only case- and whitespace-insensitive
// exact matches.
func NewPromptBuilder(matcher Matcher) *PromptBuilder {
	if matcher == nil {
		matcher = ExactMatcher{}
	}
	return &PromptBuilder{matcher: matcher}
}

// BuildSchema returns the function schema constraining the reply to one
// valid option per transaction.
func (b *PromptBuilder) BuildSchema(kind model.AssignmentKind, options []string) FunctionSchema {
	field := kind.Plural()
	enum := make([]string, len(options))
	copy(enum, options)

	return FunctionSchema{
		Name:        "assign_" + field,
		Description: fmt.Sprintf("Assign one %s to each transaction, in the order given", kind),
		Parameters: JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				field: {
					Type:        "array",
					Description: fmt.Sprintf("One %s per transaction, in the same order as the transactions", kind),
					Items: &JSONSchema{
						Type: "string",
						Enum: enum,
					},
				},
			},
			Required: []string{field},
		},
	}
}

// BuildSystemPrompt returns the fixed role instruction for kind.
func (b *PromptBuilder) BuildSystemPrompt(kind model.AssignmentKind) string {
	if kind == model.KindBudget {
		return "You are a personal finance assistant that assigns each financial transaction to the most appropriate budget."
	}
	return "You are a personal finance assistant that assigns each financial transaction to the most appropriate category."
}

// BuildUserPrompt lists the valid options and the numbered transactions.
func (b *PromptBuilder) BuildUserPrompt(kind model.AssignmentKind, transactions []model.TransactionDescriptor, options []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Assign a %s to each of the following %d transactions.\n\n", kind, len(transactions))

	fmt.Fprintf(&sb, "Valid %s:\n", kind.Plural())
	for _, option := range options {
		fmt.Fprintf(&sb, "- %s\n", option)
	}

	sb.WriteString("\nTransactions:\n")
	for i, txn := range transactions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, FormatTransaction(txn))
	}

	fmt.Fprintf(&sb, "\nReturn exactly %d %s in the exact same order as the transactions above. "+
		"Use only names from the list of valid %s. "+
		"If no %s fits a transaction, use %q.",
		len(transactions), kind.Plural(), kind.Plural(), kind, kind.Sentinel())

	return sb.String()
}

// FormatTransaction renders one transaction line:
// "{description} - ${amount} - {date} ({source} → {destination})".
// Missing accounts render as null or undefined rather than being dropped.
func FormatTransaction(txn model.TransactionDescriptor) string {
	return fmt.Sprintf("%s - $%s - %s (%s → %s)",
		txn.Description,
		txn.Amount,
		txn.Date,
		txn.Source.String(),
		txn.Destination.String())
}
