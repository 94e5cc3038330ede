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

// Message counts preserved verbatim around the compressed window.
const (
	noteHeadKeep = 2
	noteTailKeep = 2
)

// NewNoteTakerNode compresses the internal conversation once it grows past the
// trim threshold. The note agent re-derives the structured state from the
// middle window; the head and tail messages are kept verbatim so the task
// statement and the most recent exchange survive compression. Compression is
// strictly best-effort: on any failure the state passes through with a single
// error message appended and nothing else changed.
func NewNoteTakerNode(ag agents.Agent, extractor *agents.Extractor, trimThreshold int) *compose.Lambda {
	return compose.InvokableLambda(noteTakerFunc(ag, extractor, trimThreshold))
}

func noteTakerFunc(ag agents.Agent, extractor *agents.Extractor, trimThreshold int) func(context.Context, *model.WorkflowState) (*model.WorkflowState, error) {
	if trimThreshold <= noteHeadKeep+noteTailKeep {
		trimThreshold = noteHeadKeep + noteTailKeep + 2
	}

	return func(ctx context.Context, state *model.WorkflowState) (*model.WorkflowState, error) {
		if len(state.InternalMessages) <= trimThreshold {
			logx.Debug().Int("messages", len(state.InternalMessages)).Msg("Conversation below trim threshold; skipping note compression")
			return state, nil
		}

		head := state.InternalMessages[:noteHeadKeep]
		tail := state.InternalMessages[len(state.InternalMessages)-noteTailKeep:]
		window := state.InternalMessages[noteHeadKeep : len(state.InternalMessages)-noteTailKeep]

		// The agent sees only the window it is summarizing.
		scoped := *state
		scoped.InternalMessages = window

		res, err := ag.Invoke(ctx, &scoped)
		if err != nil {
			logx.Error().Err(err).Msg("Note agent failed; keeping conversation uncompressed")
			state.Apply(model.Update{
				InternalMessages: []*schema.Message{errorMessage(model.NodeNoteTaker, err)},
				Sender:           model.SenderNote,
			})
			return state, nil
		}

		record, err := agents.Extract[model.NoteRecord](ctx, extractor, res.Output.Content)
		if err != nil {
			logx.Error().Err(err).Msg("Note record extraction failed; keeping conversation uncompressed")
			state.Apply(model.Update{
				InternalMessages: []*schema.Message{errorMessage(model.NodeNoteTaker, err)},
				Sender:           model.SenderNote,
			})
			return state, nil
		}

		compressed := make([]*schema.Message, 0, noteHeadKeep+len(record.Messages)+noteTailKeep)
		compressed = append(compressed, head...)
		compressed = append(compressed, record.SchemaMessages()...)
		compressed = append(compressed, tail...)

		before := len(state.InternalMessages)
		state.InternalMessages = compressed
		applyNoteFields(state, record)
		state.Sender = model.SenderNote

		logx.Info().Int("before", before).Int("after", len(compressed)).Msg("Conversation compressed")
		return state, nil
	}
}

// applyNoteFields overwrites stage fields with the record's re-derived values.
// The record is the compressed authority for the window it replaced, so the
// usual concat strategies do not apply; empty record fields leave the current
// value alone.
func applyNoteFields(state *model.WorkflowState, r *model.NoteRecord) {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&state.Hypothesis, r.Hypothesis)
	set(&state.Process, r.Process)
	set(&state.ProcessDecision, r.ProcessDecision)
	set(&state.VisualizationState, r.VisualizationState)
	set(&state.SearcherState, r.SearcherState)
	set(&state.CodeState, r.CodeState)
	set(&state.ReportSection, r.ReportSection)
	set(&state.QualityReview, r.QualityReview)
	state.NeedsRevision = r.NeedsRevision
}
