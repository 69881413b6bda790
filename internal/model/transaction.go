// Package model defines the core domain models used throughout the application.
package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the date format used in prompts and storage.
const DateLayout = "2006-01-02"

// TransactionType is the ledger's type for a transaction.
type TransactionType string

// Transaction types.
const (
	TypeWithdrawal TransactionType = "withdrawal"
	TypeDeposit    TransactionType = "deposit"
	TypeTransfer   TransactionType = "transfer"
)

// AccountRef names the source or destination account of a transaction.
// The zero value means the ledger did not report the field at all;
// Null means the ledger reported it explicitly as null.
type AccountRef struct {
	Name string
	Null bool
}

// NamedAccount returns a reference to the named account.
func NamedAccount(name string) AccountRef {
	return AccountRef{Name: name}
}

// NullAccount returns a reference the ledger reported as null.
func NullAccount() AccountRef {
	return AccountRef{Null: true}
}

// IsSet reports whether the reference carries an account name.
func (a AccountRef) IsSet() bool {
	return !a.Null && a.Name != ""
}

// String renders the reference the way prompts expect it: the account name,
// or the literal "null" / "undefined" for missing values.
func (a AccountRef) String() string {
	switch {
	case a.Null:
		return "null"
	case a.Name == "":
		return "undefined"
	default:
		return a.Name
	}
}

// MarshalJSON encodes a missing account as null.
func (a AccountRef) MarshalJSON() ([]byte, error) {
	if !a.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(a.Name)
}

// UnmarshalJSON decodes an explicit null into a Null reference. Fields absent
// from the payload never reach this method and keep the zero value.
func (a *AccountRef) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = NullAccount()
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("invalid account name: %w", err)
	}
	*a = NamedAccount(name)
	return nil
}

// Transaction represents a single financial transaction in the ledger.
type Transaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	Source      AccountRef
	Destination AccountRef
	ID          string
	Description string
	Type        TransactionType
	Category    string
	Budget      string
	Hash        string
}

// GenerateHash creates a unique hash for duplicate detection.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.Date.Format(DateLayout),
		t.Amount.StringFixed(2),
		t.Description,
		t.Source.String(),
		t.Destination.String())
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Label returns the transaction's current label of the given kind.
func (t Transaction) Label(kind AssignmentKind) string {
	if kind == KindBudget {
		return t.Budget
	}
	return t.Category
}

// Descriptor returns the immutable prompt view of the transaction.
func (t Transaction) Descriptor() TransactionDescriptor {
	return TransactionDescriptor{
		Description: t.Description,
		Amount:      t.Amount.StringFixed(2),
		Date:        t.Date.Format(DateLayout),
		Source:      t.Source,
		Destination: t.Destination,
		Type:        t.Type,
	}
}

// TransactionDescriptor is the view of a transaction used to build prompts.
type TransactionDescriptor struct {
	Source      AccountRef
	Destination AccountRef
	Description string
	Amount      string
	Date        string
	Type        TransactionType
}

// Fingerprint identifies the descriptor's content for caching.
func (d TransactionDescriptor) Fingerprint() string {
	data := fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		d.Description, d.Amount, d.Date, d.Source.String(), d.Destination.String(), d.Type)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16])
}
