package agents

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel scripts chat model responses for tests.
type stubModel struct {
	responses []*schema.Message
	errs      []error
	calls     int
	inputs    [][]*schema.Message
}

func (m *stubModel) Generate(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	i := m.calls
	m.calls++
	m.inputs = append(m.inputs, in)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return nil, errors.New("stub model: no scripted response")
}

func (m *stubModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stub model: streaming not supported")
}

var _ einomodel.BaseChatModel = (*stubModel)(nil)

type noteShape struct {
	Summary string `json:"summary"`
	Steps   int    `json:"steps"`
}

func TestExtract_DirectParse(t *testing.T) {
	e := NewExtractor(nil, 1)

	out, err := Extract[noteShape](context.Background(), e, `{"summary": "done", "steps": 3}`)
	require.NoError(t, err)
	assert.Equal(t, "done", out.Summary)
	assert.Equal(t, 3, out.Steps)
}

func TestExtract_ToleratesFencesAndProse(t *testing.T) {
	e := NewExtractor(nil, 1)

	raw := "Here is the record you asked for:\n```json\n{\"summary\": \"ok\", \"steps\": 1}\n```\nLet me know if you need more."
	out, err := Extract[noteShape](context.Background(), e, raw)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Summary)
}

func TestExtract_RepairLoopFixesOutput(t *testing.T) {
	repair := &stubModel{responses: []*schema.Message{
		schema.AssistantMessage(`{"summary": "fixed", "steps": 2}`, nil),
	}}
	e := NewExtractor(repair, 3)

	out, err := Extract[noteShape](context.Background(), e, `{"summary": "broken", "steps": }`)
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.Summary)
	assert.Equal(t, 1, repair.calls)
}

func TestExtract_RetriesAreBounded(t *testing.T) {
	repair := &stubModel{responses: []*schema.Message{
		schema.AssistantMessage("still not json", nil),
		schema.AssistantMessage("nope", nil),
	}}
	e := NewExtractor(repair, 2)

	_, err := Extract[noteShape](context.Background(), e, "garbage")
	require.Error(t, err)
	assert.Equal(t, 2, repair.calls)
}

func TestExtract_NoRepairModelFailsFast(t *testing.T) {
	e := NewExtractor(nil, 3)

	_, err := Extract[noteShape](context.Background(), e, "not json at all")
	require.Error(t, err)
}
