package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/luminalab/datagen/internal/sandbox"
	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// NewCleanupNode releases the run's sandbox. Release failures are logged and
// swallowed; by this point the final document is already in the state and a
// leaked workspace must not fail the run.
func NewCleanupNode(sb sandbox.Manager) *compose.Lambda {
	return compose.InvokableLambda(cleanupFunc(sb))
}

func cleanupFunc(sb sandbox.Manager) func(context.Context, *model.WorkflowState) (*model.WorkflowState, error) {
	return func(ctx context.Context, state *model.WorkflowState) (*model.WorkflowState, error) {
		if err := sb.Cleanup(ctx); err != nil {
			logx.Warn().Err(err).Msg("Sandbox release failed")
		}
		return state, nil
	}
}
