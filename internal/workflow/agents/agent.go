package agents

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/luminalab/datagen/internal/workflow/model"
)

// Result is what a specialist agent hands back to the graph: the final output
// message plus every intermediate message captured along the way (model turns
// and tool results), in order, for frontend display.
type Result struct {
	Output       *schema.Message
	Intermediate []*schema.Message
}

// Agent is the uniform interface every specialist behind a graph node exposes.
// Implementations may call models and tools internally; that is opaque to the
// graph, which only sees the returned messages.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, state *model.WorkflowState) (*Result, error)
}
