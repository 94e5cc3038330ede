package nodes

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luminalab/datagen/internal/artifacts"
	"github.com/luminalab/datagen/internal/sandbox"
	"github.com/luminalab/datagen/internal/workflow/agents"
	"github.com/luminalab/datagen/internal/workflow/model"
)

// memStore is an in-memory artifacts.Store for node tests.
type memStore struct {
	files map[string]artifacts.StoredFile
}

func newMemStore() *memStore {
	return &memStore{files: map[string]artifacts.StoredFile{}}
}

func (m *memStore) PutFile(ctx context.Context, userID, fileID string, data []byte, filename, format string) error {
	m.files[fileID] = artifacts.StoredFile{Filename: filename, Format: format, Data: data}
	return nil
}

func (m *memStore) GetFile(ctx context.Context, userID, fileID string) (*artifacts.StoredFile, error) {
	f, ok := m.files[fileID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &f, nil
}

var _ artifacts.Store = (*memStore)(nil)

func newWorkspace(t *testing.T, files map[string]string) *sandbox.Local {
	t.Helper()
	sb, err := sandbox.NewLocal(t.TempDir())
	require.NoError(t, err)
	for name, content := range files {
		require.NoError(t, sb.WriteFile(context.Background(), name, []byte(content)))
	}
	return sb
}

var attachmentPattern = regexp.MustCompile(`\[attachment:([0-9a-f-]+)\]`)

func TestRefiner_PersistsReferencedCharts(t *testing.T) {
	sb := newWorkspace(t, map[string]string{
		"trend.png":  "png-bytes",
		"report.md":  "## Findings\nSales rise in Q4.",
		"loader.py":  "print('hi')",
		"ignored.md": "scratch notes",
	})
	store := newMemStore()

	doc := "# Final Report\n\nSee [trend.png] for the seasonal pattern.\n" +
		"Again, [trend.png] supports this.\nAlso see [missing.png]."
	node := refinerFunc(fixedAgent("refiner", doc), sb, store)

	state := model.NewWorkflowState()
	state.UserID = "user-7"

	out, err := node(context.Background(), state)
	require.NoError(t, err)

	final := out.ReportSection
	matches := attachmentPattern.FindAllStringSubmatch(final, -1)
	require.Len(t, matches, 2, "both references to the same chart are rewritten")
	assert.Equal(t, matches[0][1], matches[1][1], "one identifier per distinct filename")

	stored, ok := store.files[matches[0][1]]
	require.True(t, ok)
	assert.Equal(t, "trend.png", stored.Filename)
	assert.Equal(t, "png", stored.Format)
	assert.Equal(t, []byte("png-bytes"), stored.Data)

	assert.NotContains(t, final, "[trend.png]")
	assert.Contains(t, final, "[missing.png]", "unknown filenames stay untouched")

	assert.Equal(t, model.SenderRefiner, out.Sender)
	require.NotEmpty(t, out.InternalMessages)
	assert.Equal(t, model.SenderRefiner, model.SenderOf(out.InternalMessages[len(out.InternalMessages)-1]))
}

func TestRefiner_InlinesTextMaterials(t *testing.T) {
	sb := newWorkspace(t, map[string]string{
		"sections.md": "unique-section-marker",
		"chart.png":   "binary",
	})

	var prompt string
	ag := &stubAgent{name: "refiner", invoke: func(ctx context.Context, state *model.WorkflowState) (*agents.Result, error) {
		last := state.InternalMessages[len(state.InternalMessages)-1]
		prompt = last.Content
		out := schema.AssistantMessage("final doc", nil)
		return &agents.Result{Output: out, Intermediate: []*schema.Message{out}}, nil
	}}

	node := refinerFunc(ag, sb, newMemStore())
	_, err := node(context.Background(), model.NewWorkflowState())
	require.NoError(t, err)

	assert.Contains(t, prompt, "unique-section-marker", "markdown contents are inlined")
	assert.Contains(t, prompt, "chart.png", "binary files are listed by name")
	assert.NotContains(t, prompt, "binary")
}

func TestRefiner_RetriesWithNamesOnContextOverflow(t *testing.T) {
	sb := newWorkspace(t, map[string]string{
		"sections.md": strings.Repeat("long draft ", 100),
	})

	var calls int
	var secondPrompt string
	ag := &stubAgent{name: "refiner", invoke: func(ctx context.Context, state *model.WorkflowState) (*agents.Result, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("generate: input is too long for the model")
		}
		secondPrompt = state.InternalMessages[len(state.InternalMessages)-1].Content
		out := schema.AssistantMessage("final doc", nil)
		return &agents.Result{Output: out, Intermediate: []*schema.Message{out}}, nil
	}}

	node := refinerFunc(ag, sb, newMemStore())
	out, err := node(context.Background(), model.NewWorkflowState())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "final doc", out.ReportSection)
	assert.NotContains(t, secondPrompt, "long draft", "retry sends file names only")
	assert.Contains(t, secondPrompt, "sections.md")
}

func TestRefiner_NonRecoverableFailurePropagates(t *testing.T) {
	sb := newWorkspace(t, nil)
	node := refinerFunc(failingAgent("refiner", errors.New("provider down")), sb, newMemStore())

	_, err := node(context.Background(), model.NewWorkflowState())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refine report")
}

func TestCleanupNode_ReleasesSandboxAndSwallowsErrors(t *testing.T) {
	sb := newWorkspace(t, map[string]string{"f.txt": "x"})
	node := cleanupFunc(sb)

	state := model.NewWorkflowState()
	out, err := node(context.Background(), state)
	require.NoError(t, err)
	assert.Same(t, state, out)

	// The workspace is gone; further use errors, but cleanup stays idempotent.
	_, lerr := sb.ListFiles(context.Background())
	assert.Error(t, lerr)
	_, err = node(context.Background(), state)
	assert.NoError(t, err)
}
