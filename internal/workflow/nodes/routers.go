package nodes

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// Routers are pure functions of the state: calling one twice on an unmutated
// state yields the same next-node name, which keeps them trivially testable.

// continueResearchPhrase is what the HumanChoice node writes into the process
// field when the operator approves continuing.
const continueResearchPhrase = "continue the research process"

// toolCallMarkers are the literal markers a specialist emits mid-ReAct-loop;
// their presence means the agent is not done yet.
var toolCallMarkers = []string{"<tool>", "<observation>", "</tool_input>"}

// revisionTargets maps the sender of the reviewed work back to its node.
var revisionTargets = map[string]string{
	model.SenderVisualization: model.NodeVisualization,
	model.SenderSearch:        model.NodeSearch,
	model.SenderCoder:         model.NodeCoder,
	model.SenderReport:        model.NodeReport,
}

// HypothesisRouter implements the ReAct continuation test: loop while the
// hypothesis is empty or still carries tool-call markers, otherwise hand the
// final answer to the human gate.
func HypothesisRouter(state *model.WorkflowState) string {
	h := strings.TrimSpace(normalizeStageContent(state.Hypothesis))
	if h == "" {
		return model.NodeHypothesis
	}
	for _, marker := range toolCallMarkers {
		if strings.Contains(h, marker) {
			return model.NodeHypothesis
		}
	}
	return model.NodeHumanChoice
}

// HumanChoiceRouter sends the run back to Hypothesis when the operator
// requested regeneration, otherwise on to the supervisor.
func HumanChoiceRouter(state *model.WorkflowState) string {
	if strings.TrimSpace(state.ModificationAreas) != "" {
		return model.NodeHypothesis
	}
	// An explicit continue approval and the default both move to the supervisor.
	if strings.Contains(strings.ToLower(state.Process), continueResearchPhrase) {
		return model.NodeProcess
	}
	return model.NodeProcess
}

// ProcessRouter validates the supervisor's decision and routes accordingly.
// Invalid or empty decisions re-enter Process so the run is never dropped.
func ProcessRouter(state *model.WorkflowState) string {
	d := model.ParseProcessDecision(state.ProcessDecision)
	switch d.Kind {
	case model.DecisionFinish:
		return model.NodeRefiner
	case model.DecisionNamed:
		return d.Target
	default:
		return model.NodeProcess
	}
}

// QualityReviewRouter sends flagged work back to the node that produced it,
// identified by the sender of the second-to-last internal message (the last
// one is the reviewer's own verdict). Unrecognized senders fall through to
// NoteTaker rather than guessing.
func QualityReviewRouter(state *model.WorkflowState) string {
	if !state.NeedsRevision {
		return model.NodeNoteTaker
	}
	if len(state.InternalMessages) < 2 {
		return model.NodeNoteTaker
	}
	sender := model.SenderOf(state.InternalMessages[len(state.InternalMessages)-2])
	if target, ok := revisionTargets[sender]; ok {
		return target
	}
	return model.NodeNoteTaker
}

// normalizeStageContent unwraps stage values that were stored as a serialized
// message object instead of a raw string.
func normalizeStageContent(v string) string {
	trimmed := strings.TrimSpace(v)
	if !strings.HasPrefix(trimmed, "{") {
		return v
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		return v
	}
	if c, ok := m["content"].(string); ok {
		return c
	}
	return v
}

// ===================== Branch condition adapters =====================

// NewHypothesisCondition adapts HypothesisRouter to the graph's branch signature.
func NewHypothesisCondition() func(context.Context, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, state *model.WorkflowState) (string, error) {
		next := HypothesisRouter(state)
		logx.Debug().Str("router", "hypothesis").Str("next", next).Msg("Routing")
		return next, nil
	}
}

// NewHumanChoiceCondition adapts HumanChoiceRouter to the graph's branch signature.
func NewHumanChoiceCondition() func(context.Context, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, state *model.WorkflowState) (string, error) {
		next := HumanChoiceRouter(state)
		logx.Debug().Str("router", "human_choice").Str("next", next).Msg("Routing")
		return next, nil
	}
}

// NewProcessCondition adapts ProcessRouter to the graph's branch signature.
func NewProcessCondition() func(context.Context, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, state *model.WorkflowState) (string, error) {
		next := ProcessRouter(state)
		logx.Debug().Str("router", "process").Str("decision", state.ProcessDecision).Str("next", next).Msg("Routing")
		return next, nil
	}
}

// NewQualityReviewCondition adapts QualityReviewRouter to the graph's branch signature.
func NewQualityReviewCondition() func(context.Context, *model.WorkflowState) (string, error) {
	return func(ctx context.Context, state *model.WorkflowState) (string, error) {
		next := QualityReviewRouter(state)
		logx.Debug().Str("router", "quality_review").Bool("needs_revision", state.NeedsRevision).Str("next", next).Msg("Routing")
		return next, nil
	}
}
