package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/luminalab/datagen/internal/workflow/agents"
	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// NewQualityReviewNode wraps the review agent like a regular specialist but
// additionally derives the needs_revision flag from the verdict text.
func NewQualityReviewNode(ag agents.Agent) *compose.Lambda {
	return compose.InvokableLambda(qualityReviewFunc(ag))
}

func qualityReviewFunc(ag agents.Agent) func(context.Context, *model.WorkflowState) (*model.WorkflowState, error) {
	return func(ctx context.Context, state *model.WorkflowState) (*model.WorkflowState, error) {
		res, err := ag.Invoke(ctx, state)
		if err != nil {
			logx.Error().Err(err).Str("node", model.NodeQualityReview).Msg("Quality review agent failed")
			state.Apply(model.Update{
				InternalMessages: []*schema.Message{errorMessage(model.NodeQualityReview, err)},
			})
			return state, nil
		}

		out := model.WithSender(res.Output, model.SenderQualityReview)
		needsRevision := DetectRevisionRequest(out.Content)
		state.Apply(model.Update{
			InternalMessages: []*schema.Message{out},
			FrontendMessages: tagProvenance(res.Intermediate, AgentType(model.NodeQualityReview)),
			Fields:           map[model.Field]string{model.FieldQualityReview: out.Content},
			NeedsRevision:    &needsRevision,
			Sender:           model.SenderQualityReview,
		})
		logx.Debug().Bool("needs_revision", needsRevision).Msg("Quality review complete")
		return state, nil
	}
}

// DetectRevisionRequest decides whether a verdict asks for a revision. The
// free-text match is deliberately isolated here so a structured verdict can
// replace it without touching the router, which only consumes the boolean.
func DetectRevisionRequest(verdict string) bool {
	if strings.Contains(strings.ToLower(verdict), "revision needed") {
		return true
	}
	return strings.Contains(verdict, "REVISION")
}
