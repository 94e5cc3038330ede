package workflow_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminalab/datagen/internal/sandbox"
	"github.com/luminalab/datagen/internal/workflow"
	"github.com/luminalab/datagen/internal/workflow/agents"
	"github.com/luminalab/datagen/internal/workflow/model"
)

// scriptedAgent returns its outputs in order, repeating the last one.
type scriptedAgent struct {
	name    string
	outputs []string
	calls   int
}

func (s *scriptedAgent) Name() string { return s.name }

func (s *scriptedAgent) Invoke(ctx context.Context, state *model.WorkflowState) (*agents.Result, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	out := schema.AssistantMessage(s.outputs[i], nil)
	return &agents.Result{Output: out, Intermediate: []*schema.Message{out}}, nil
}

var _ agents.Agent = (*scriptedAgent)(nil)

// memCheckpoints is an in-memory compose.CheckPointStore.
type memCheckpoints struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{m: map[string][]byte{}}
}

func (s *memCheckpoints) Get(ctx context.Context, checkPointID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.m[checkPointID]
	return b, ok, nil
}

func (s *memCheckpoints) Set(ctx context.Context, checkPointID string, checkPoint []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[checkPointID] = checkPoint
	return nil
}

var _ compose.CheckPointStore = (*memCheckpoints)(nil)

type testHarness struct {
	runner      *workflow.Runner
	checkpoints *memCheckpoints
	agents      *workflow.Agents
	hypothesis  *scriptedAgent
	process     *scriptedAgent
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	hypothesis := &scriptedAgent{name: "hypothesis", outputs: []string{
		"Retail sales spike in Q4 due to holiday demand.",
	}}
	process := &scriptedAgent{name: "process", outputs: []string{
		"Decision: Coder\nTask: quantify the seasonal effect",
		"Decision: FINISH",
	}}

	ags := &workflow.Agents{
		Hypothesis:    hypothesis,
		Process:       process,
		Visualization: &scriptedAgent{name: "viz", outputs: []string{"rendered trend.png"}},
		Search:        &scriptedAgent{name: "search", outputs: []string{"found public dataset"}},
		Coder:         &scriptedAgent{name: "coder", outputs: []string{"seasonal lift is 32%"}},
		Report:        &scriptedAgent{name: "report", outputs: []string{"drafted findings section"}},
		QualityReview: &scriptedAgent{name: "review", outputs: []string{"APPROVED: analysis is sound"}},
		NoteTaker:     &scriptedAgent{name: "note", outputs: []string{"{}"}},
		Refiner:       &scriptedAgent{name: "refiner", outputs: []string{"# Final Report\nSeasonal lift confirmed."}},
	}

	sb, err := sandbox.NewLocal(t.TempDir())
	require.NoError(t, err)

	checkpoints := newMemCheckpoints()
	runnable, err := workflow.BuildGraph(context.Background(), &workflow.GraphConfig{
		Agents:            ags,
		Extractor:         agents.NewExtractor(nil, 1),
		Sandbox:           sb,
		Checkpoints:       checkpoints,
		MaxRunSteps:       40,
		NoteTrimThreshold: 50,
	})
	require.NoError(t, err)

	return &testHarness{
		runner:      workflow.NewRunner(runnable, nil, sb),
		checkpoints: checkpoints,
		agents:      ags,
		hypothesis:  hypothesis,
		process:     process,
	}
}

func TestWorkflow_SuspendsAtHumanGate(t *testing.T) {
	h := newTestHarness(t)

	_, runID, err := h.runner.Run(context.Background(), workflow.RunInput{
		UserID: "u-1",
		Task:   "investigate seasonal sales",
	})
	require.ErrorIs(t, err, workflow.ErrAwaitingHuman)
	assert.NotEmpty(t, runID)

	// The suspended run left a checkpoint behind.
	_, found, cerr := h.checkpoints.Get(context.Background(), runID)
	require.NoError(t, cerr)
	assert.True(t, found)
	assert.Equal(t, 1, h.hypothesis.calls)
}

func TestWorkflow_ResumeRunsToCompletion(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, runID, err := h.runner.Run(ctx, workflow.RunInput{Task: "investigate seasonal sales"})
	require.ErrorIs(t, err, workflow.ErrAwaitingHuman)

	final, err := h.runner.Resume(ctx, workflow.ResumeInput{
		RunID:    runID,
		Feedback: "continue",
	})
	require.NoError(t, err)
	require.NotNil(t, final)

	assert.Contains(t, final.ReportSection, "Seasonal lift confirmed")
	assert.Equal(t, model.SenderRefiner, final.Sender)
	assert.Contains(t, final.CodeState, "seasonal lift is 32%")
	assert.False(t, final.NeedsRevision)

	// Supervisor ran twice: dispatch to Coder, then FINISH.
	assert.Equal(t, 2, h.process.calls)
	assert.Equal(t, 1, h.hypothesis.calls)
}

func TestWorkflow_RegenerateLoopsHypothesis(t *testing.T) {
	h := newTestHarness(t)
	h.hypothesis.outputs = []string{
		"Weak first hypothesis.",
		"Stronger hypothesis grounded in the data.",
	}
	ctx := context.Background()

	_, runID, err := h.runner.Run(ctx, workflow.RunInput{Task: "investigate seasonal sales"})
	require.ErrorIs(t, err, workflow.ErrAwaitingHuman)

	// Regeneration loops back through Hypothesis and suspends again.
	_, err = h.runner.Resume(ctx, workflow.ResumeInput{
		RunID:             runID,
		Feedback:          "regenerate",
		ModificationAreas: "methodology",
	})
	require.ErrorIs(t, err, workflow.ErrAwaitingHuman)
	assert.Equal(t, 2, h.hypothesis.calls)

	final, err := h.runner.Resume(ctx, workflow.ResumeInput{
		RunID:    runID,
		Feedback: "continue",
	})
	require.NoError(t, err)
	assert.Contains(t, final.Hypothesis, "Stronger hypothesis")
}

func TestWorkflow_RevisionRouting(t *testing.T) {
	h := newTestHarness(t)
	// First verdict demands revision, second approves; the coder must run twice.
	h.agents.QualityReview.(*scriptedAgent).outputs = []string{
		"REVISION NEEDED: the lift estimate lacks a confidence interval",
		"APPROVED: solid now",
	}
	coder := h.agents.Coder.(*scriptedAgent)
	ctx := context.Background()

	_, runID, err := h.runner.Run(ctx, workflow.RunInput{Task: "investigate seasonal sales"})
	require.ErrorIs(t, err, workflow.ErrAwaitingHuman)

	final, err := h.runner.Resume(ctx, workflow.ResumeInput{RunID: runID, Feedback: "continue"})
	require.NoError(t, err)
	assert.Equal(t, 2, coder.calls)
	assert.False(t, final.NeedsRevision)
}

func TestBuildGraph_Validation(t *testing.T) {
	ctx := context.Background()
	sb, err := sandbox.NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = workflow.BuildGraph(ctx, nil)
	assert.Error(t, err)

	_, err = workflow.BuildGraph(ctx, &workflow.GraphConfig{Sandbox: sb})
	assert.Error(t, err)
}
