package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/luminalab/datagen/internal/sandbox"
	"github.com/luminalab/datagen/internal/workflow/model"
	"github.com/luminalab/datagen/internal/workflow/observers"
	"github.com/luminalab/datagen/internal/workflow/repo"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// ErrAwaitingHuman reports that a run reached the human gate and was suspended.
// The checkpoint holds the full state; call Resume with operator feedback to
// continue the run under the same run ID.
var ErrAwaitingHuman = errors.New("run suspended awaiting operator feedback")

// RunInput starts a fresh workflow run.
type RunInput struct {
	// RunID doubles as the checkpoint identifier. A blank value gets a fresh one.
	RunID  string
	UserID string
	// Task is the research question the workflow investigates.
	Task string
}

// ResumeInput continues a suspended run with the operator's decision.
type ResumeInput struct {
	RunID string
	// Feedback is the operator action, e.g. "continue" or "regenerate".
	Feedback string
	// ModificationAreas directs a regeneration at specific parts of the hypothesis.
	ModificationAreas string
}

// Runner executes the compiled workflow graph and owns the run-scoped side
// effects around it: checkpoint identity, transcript persistence, and sandbox
// release on abnormal exits.
type Runner struct {
	runnable    compose.Runnable[*model.WorkflowState, *model.WorkflowState]
	transcripts repo.TranscriptRepository
	sandbox     sandbox.Manager
}

// NewRunner wraps a compiled graph. The transcript repository may be nil when
// persistence of the frontend stream is not needed.
func NewRunner(
	runnable compose.Runnable[*model.WorkflowState, *model.WorkflowState],
	transcripts repo.TranscriptRepository,
	sb sandbox.Manager,
) *Runner {
	return &Runner{runnable: runnable, transcripts: transcripts, sandbox: sb}
}

// Run starts a fresh run. It returns ErrAwaitingHuman when the run suspends at
// the human gate, the final state when the run completes, and any other error
// after releasing the sandbox.
func (r *Runner) Run(ctx context.Context, in RunInput) (*model.WorkflowState, string, error) {
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if in.Task == "" {
		return nil, runID, fmt.Errorf("run %s: task is empty", runID)
	}

	state := model.NewWorkflowState()
	state.UserID = in.UserID
	state.InternalMessages = append(state.InternalMessages, schema.UserMessage(in.Task))

	logx.Info().Str("run_id", runID).Msg("Starting workflow run")
	out, err := r.runnable.Invoke(ctx, state,
		compose.WithCheckPointID(runID),
		compose.WithCallbacks(observers.NewAllCallbacks()),
	)
	final, err := r.finish(ctx, runID, out, err)
	return final, runID, err
}

// Resume continues a suspended run. The operator feedback is injected into the
// graph-local run state before the interrupted node re-executes.
func (r *Runner) Resume(ctx context.Context, in ResumeInput) (*model.WorkflowState, error) {
	if in.RunID == "" {
		return nil, fmt.Errorf("resume: run id is empty")
	}

	logx.Info().Str("run_id", in.RunID).Str("feedback", in.Feedback).Msg("Resuming workflow run")
	out, err := r.runnable.Invoke(ctx, nil,
		compose.WithCheckPointID(in.RunID),
		compose.WithCallbacks(observers.NewAllCallbacks()),
		compose.WithStateModifier(func(ctx context.Context, path compose.NodePath, state any) error {
			rs, ok := state.(*model.RunState)
			if !ok {
				return fmt.Errorf("unexpected run state type %T", state)
			}
			rs.HumanFeedback = in.Feedback
			rs.ModificationAreas = in.ModificationAreas
			return nil
		}),
	)
	return r.finish(ctx, in.RunID, out, err)
}

// finish translates the engine outcome: interrupts become ErrAwaitingHuman
// with the sandbox kept alive for the resumed run, other failures release the
// sandbox since the cleanup node will never execute, and success persists the
// frontend transcript.
func (r *Runner) finish(ctx context.Context, runID string, out *model.WorkflowState, err error) (*model.WorkflowState, error) {
	if err != nil {
		if _, ok := compose.ExtractInterruptInfo(err); ok {
			logx.Info().Str("run_id", runID).Msg("Run suspended at human gate")
			return nil, ErrAwaitingHuman
		}
		logx.Error().Err(err).Str("run_id", runID).Msg("Workflow run failed")
		if cerr := r.sandbox.Cleanup(ctx); cerr != nil {
			logx.Warn().Err(cerr).Str("run_id", runID).Msg("Sandbox release after failure also failed")
		}
		return nil, err
	}

	if r.transcripts != nil && out != nil && len(out.FrontendMessages) > 0 {
		if terr := r.transcripts.AppendMessages(ctx, runID, out.FrontendMessages); terr != nil {
			logx.Warn().Err(terr).Str("run_id", runID).Msg("Could not persist run transcript")
		}
	}
	logx.Info().Str("run_id", runID).Msg("Workflow run complete")
	return out, nil
}
