package model

import "time"

// Label is a named category or budget defined in the ledger.
type Label struct {
	CreatedAt time.Time
	Name      string
	Kind      AssignmentKind
	ID        int64
}
