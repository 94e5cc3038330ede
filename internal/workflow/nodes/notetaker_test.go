package nodes

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminalab/datagen/internal/workflow/agents"
	"github.com/luminalab/datagen/internal/workflow/model"
)

func historyOf(n int) []*schema.Message {
	msgs := make([]*schema.Message, 0, n)
	msgs = append(msgs, schema.UserMessage("investigate retail sales"))
	for i := 1; i < n; i++ {
		msgs = append(msgs, schema.AssistantMessage(fmt.Sprintf("step %d", i), nil))
	}
	return msgs
}

func TestNoteTaker_BelowThresholdIsNoop(t *testing.T) {
	called := false
	ag := &stubAgent{name: "note", invoke: func(ctx context.Context, state *model.WorkflowState) (*agents.Result, error) {
		called = true
		return nil, errors.New("should not be invoked")
	}}
	node := noteTakerFunc(ag, agents.NewExtractor(nil, 1), 6)

	state := model.NewWorkflowState()
	state.InternalMessages = historyOf(5)
	state.Hypothesis = "H1"

	out, err := node(context.Background(), state)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Len(t, out.InternalMessages, 5)
	assert.Equal(t, "H1", out.Hypothesis)
}

func TestNoteTaker_CompressesWindow(t *testing.T) {
	var seen int
	ag := &stubAgent{name: "note", invoke: func(ctx context.Context, state *model.WorkflowState) (*agents.Result, error) {
		seen = len(state.InternalMessages)
		record := `{
			"messages": [{"role": "assistant", "content": "condensed research log", "sender": "note_agent"}],
			"hypothesis": "refined hypothesis",
			"code_state": "pipeline complete",
			"needs_revision": false
		}`
		out := schema.AssistantMessage(record, nil)
		return &agents.Result{Output: out, Intermediate: []*schema.Message{out}}, nil
	}}
	node := noteTakerFunc(ag, agents.NewExtractor(nil, 1), 6)

	state := model.NewWorkflowState()
	state.InternalMessages = historyOf(10)
	state.SearcherState = "kept as-is"
	state.NeedsRevision = true

	out, err := node(context.Background(), state)
	require.NoError(t, err)

	// Agent saw only the middle window: 10 - 2 head - 2 tail.
	assert.Equal(t, 6, seen)

	// head(2) + record(1) + tail(2)
	require.Len(t, out.InternalMessages, 5)
	assert.Equal(t, "investigate retail sales", out.InternalMessages[0].Content)
	assert.Equal(t, "condensed research log", out.InternalMessages[2].Content)
	assert.Equal(t, model.SenderNote, model.SenderOf(out.InternalMessages[2]))
	assert.Equal(t, "step 9", out.InternalMessages[4].Content)

	assert.Equal(t, "refined hypothesis", out.Hypothesis)
	assert.Equal(t, "pipeline complete", out.CodeState)
	// Blank record fields leave current values alone.
	assert.Equal(t, "kept as-is", out.SearcherState)
	assert.False(t, out.NeedsRevision)
	assert.Equal(t, model.SenderNote, out.Sender)
}

func TestNoteTaker_AgentFailureKeepsHistory(t *testing.T) {
	node := noteTakerFunc(failingAgent("note", errors.New("model overloaded")), agents.NewExtractor(nil, 1), 6)

	state := model.NewWorkflowState()
	state.InternalMessages = historyOf(10)
	state.Hypothesis = "H1"

	out, err := node(context.Background(), state)
	require.NoError(t, err, "note failures are contained")

	// Original 10 messages plus the appended error message.
	require.Len(t, out.InternalMessages, 11)
	assert.Contains(t, out.InternalMessages[10].Content, "Error in NoteTaker")
	assert.Equal(t, "H1", out.Hypothesis)
	assert.Equal(t, model.SenderNote, out.Sender)
}

func TestNoteTaker_UnparsableRecordKeepsHistory(t *testing.T) {
	node := noteTakerFunc(fixedAgent("note", "sorry, no JSON today"), agents.NewExtractor(nil, 1), 6)

	state := model.NewWorkflowState()
	state.InternalMessages = historyOf(8)

	out, err := node(context.Background(), state)
	require.NoError(t, err)
	require.Len(t, out.InternalMessages, 9)
	assert.Contains(t, out.InternalMessages[8].Content, "Error in NoteTaker")
}
