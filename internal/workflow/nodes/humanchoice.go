package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// Operator feedback actions accepted at the HumanChoice gate.
const (
	FeedbackContinue   = "continue"
	FeedbackRegenerate = "regenerate"
)

// NewHumanChoiceNode builds the human-in-the-loop gate. With no pending
// operator feedback it interrupts the run; the engine checkpoints the state
// and the run waits until a resume call injects the feedback into the
// graph-local RunState.
func NewHumanChoiceNode() *compose.Lambda {
	return compose.InvokableLambda(humanChoiceFunc())
}

func humanChoiceFunc() func(context.Context, *model.WorkflowState) (*model.WorkflowState, error) {
	return func(ctx context.Context, state *model.WorkflowState) (*model.WorkflowState, error) {
		var feedback, areas string
		err := compose.ProcessState[*model.RunState](ctx, func(_ context.Context, rs *model.RunState) error {
			feedback = strings.TrimSpace(rs.HumanFeedback)
			areas = strings.TrimSpace(rs.ModificationAreas)
			if feedback != "" {
				// Consume the feedback so a later visit suspends again.
				rs.HumanFeedback = ""
				rs.ModificationAreas = ""
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("human choice state access: %w", err)
		}

		if feedback == "" {
			logx.Info().Msg("Awaiting operator decision; suspending run")
			return nil, compose.InterruptAndRerun
		}

		switch feedback {
		case FeedbackRegenerate:
			if areas == "" {
				areas = "entire hypothesis"
			}
			state.Apply(model.Update{
				InternalMessages: []*schema.Message{{
					Role:    schema.User,
					Content: fmt.Sprintf("Operator requested hypothesis regeneration. Areas to modify: %s", areas),
				}},
				ModificationAreas: &areas,
			})
		default:
			// Anything other than an explicit regenerate approves continuing.
			cleared := ""
			state.Apply(model.Update{
				InternalMessages: []*schema.Message{{
					Role:    schema.User,
					Content: "Operator approved the hypothesis. Continue the research process.",
				}},
				Fields:            map[model.Field]string{model.FieldProcess: "Continue the research process."},
				ModificationAreas: &cleared,
			})
		}

		logx.Debug().Str("feedback", feedback).Msg("Operator decision applied")
		return state, nil
	}
}
