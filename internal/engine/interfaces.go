package engine

import (
	"context"

	"github.com/Veraticus/spice-assign/internal/llm"
	"github.com/Veraticus/spice-assign/internal/model"
)

// Assigner defines the contract for label assignment.
type Assigner interface {
	Assign(ctx context.Context, req model.AssignmentRequest, opts ...llm.AssignOption) llm.Result
}

var _ Assigner = (*llm.Assigner)(nil)
