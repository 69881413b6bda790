package model

import (
	"fmt"
	"strings"
)

// AssignmentKind selects which label set an assignment run works on.
type AssignmentKind string

// Assignment kinds.
const (
	KindCategory AssignmentKind = "category"
	KindBudget   AssignmentKind = "budget"
)

// Sentinel labels meaning "none of the options fit".
const (
	NoCategory = "(no category)"
	NoBudget   = "(no budget)"
)

// ParseAssignmentKind parses a user-supplied kind name.
func ParseAssignmentKind(s string) (AssignmentKind, error) {
	switch AssignmentKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCategory, "categories":
		return KindCategory, nil
	case KindBudget, "budgets":
		return KindBudget, nil
	default:
		return "", fmt.Errorf("unknown assignment kind %q (want category or budget)", s)
	}
}

// Valid reports whether k is a known kind.
func (k AssignmentKind) Valid() bool {
	return k == KindCategory || k == KindBudget
}

// Plural is the kind's plural noun, which is also the response field name.
func (k AssignmentKind) Plural() string {
	if k == KindBudget {
		return "budgets"
	}
	return "categories"
}

// Sentinel returns the kind's "no match" label.
func (k AssignmentKind) Sentinel() string {
	if k == KindBudget {
		return NoBudget
	}
	return NoCategory
}

// WithSentinel returns names with the kind's sentinel appended unless it is
// already present.
func (k AssignmentKind) WithSentinel(names []string) []string {
	sentinel := k.Sentinel()
	out := make([]string, 0, len(names)+1)
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), sentinel) {
			continue
		}
		out = append(out, name)
	}
	return append(out, sentinel)
}

// IsUnassigned reports whether label means the transaction stays unlabeled.
func (k AssignmentKind) IsUnassigned(label string) bool {
	return label == "" || label == k.Sentinel()
}

// AssignmentRequest asks for one label per transaction, in order.
type AssignmentRequest struct {
	Kind         AssignmentKind
	Transactions []TransactionDescriptor
	Options      []string
}

// Assignment pairs a transaction with the label chosen for it.
type Assignment struct {
	Transaction Transaction
	Label       string
}
