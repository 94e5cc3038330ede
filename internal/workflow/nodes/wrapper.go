package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/luminalab/datagen/internal/workflow/agents"
	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// pipeline prefixes the agent_type provenance tag on frontend messages.
const pipeline = "datagen"

// NodeSenders maps each specialist node to the sender tag it stamps on state.
var NodeSenders = map[string]string{
	model.NodeHypothesis:    model.SenderHypothesis,
	model.NodeProcess:       model.SenderProcess,
	model.NodeVisualization: model.SenderVisualization,
	model.NodeSearch:        model.SenderSearch,
	model.NodeCoder:         model.SenderCoder,
	model.NodeReport:        model.SenderReport,
	model.NodeQualityReview: model.SenderQualityReview,
	model.NodeNoteTaker:     model.SenderNote,
	model.NodeRefiner:       model.SenderRefiner,
}

// NodeFields maps each specialist node to the stage field it writes.
var NodeFields = map[string]model.Field{
	model.NodeHypothesis:    model.FieldHypothesis,
	model.NodeProcess:       model.FieldProcessDecision,
	model.NodeVisualization: model.FieldVisualizationState,
	model.NodeSearch:        model.FieldSearcherState,
	model.NodeCoder:         model.FieldCodeState,
	model.NodeReport:        model.FieldReportSection,
	model.NodeQualityReview: model.FieldQualityReview,
}

// NewAgentNode adapts a specialist agent into a uniform graph node.
//
// On success it appends the agent's output to the internal messages, replaces
// the frontend batch with the captured intermediate messages (tagged with
// provenance), writes the output into the node's stage field, and stamps the
// sender. On failure it appends a synthetic error message and returns with the
// stage field and frontend messages untouched, so a single specialist failure
// costs one step of progress, not the run.
func NewAgentNode(ag agents.Agent, nodeName string) *compose.Lambda {
	return compose.InvokableLambda(agentNodeFunc(ag, nodeName))
}

func agentNodeFunc(ag agents.Agent, nodeName string) func(context.Context, *model.WorkflowState) (*model.WorkflowState, error) {
	sender := NodeSenders[nodeName]
	field := NodeFields[nodeName]

	return func(ctx context.Context, state *model.WorkflowState) (*model.WorkflowState, error) {
		res, err := ag.Invoke(ctx, state)
		if err != nil {
			logx.Error().Err(err).Str("node", nodeName).Msg("Specialist agent failed")
			state.Apply(model.Update{
				InternalMessages: []*schema.Message{errorMessage(nodeName, err)},
				NeedsRevision:    boolPtr(false),
			})
			return state, nil
		}

		out := model.WithSender(res.Output, sender)
		state.Apply(model.Update{
			InternalMessages: []*schema.Message{out},
			FrontendMessages: tagProvenance(res.Intermediate, AgentType(nodeName)),
			Fields:           map[model.Field]string{field: out.Content},
			NeedsRevision:    boolPtr(false),
			Sender:           sender,
		})
		logx.Debug().Str("node", nodeName).Str("sender", sender).Msg("Specialist step complete")
		return state, nil
	}
}

// AgentType returns the frontend grouping tag for a node's messages.
func AgentType(nodeName string) string {
	return fmt.Sprintf("%s_%s", pipeline, nodeName)
}

// errorMessage synthesizes the assistant-role message recording a node failure.
func errorMessage(nodeName string, err error) *schema.Message {
	return &schema.Message{
		Role:    schema.Assistant,
		Content: fmt.Sprintf("Error in %s: %v", nodeName, err),
	}
}

func tagProvenance(msgs []*schema.Message, agentType string) []*schema.Message {
	tagged := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		tagged = append(tagged, model.WithAgentType(m, agentType))
	}
	return tagged
}

func boolPtr(b bool) *bool {
	return &b
}
