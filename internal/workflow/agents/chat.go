package agents

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

const defaultMaxSteps = 8

// ChatAgentConfig configures a model-backed specialist agent.
type ChatAgentConfig struct {
	Name         string
	Model        einomodel.BaseChatModel
	SystemPrompt string
	// Tools are executed locally when the model requests them. The model must
	// already have the matching tool infos bound.
	Tools []tool.BaseTool
	// MaxSteps bounds the generate/execute loop.
	MaxSteps int
	// ContextMaxMessages bounds how much conversation history is rendered
	// into the model's context.
	ContextMaxMessages int
}

// ChatAgent drives a chat model through a bounded reason/act loop: generate,
// execute any requested tool calls, feed the results back, repeat until the
// model answers without tool calls or the step budget runs out.
type ChatAgent struct {
	name         string
	chatModel    einomodel.BaseChatModel
	systemPrompt string
	tools        map[string]tool.InvokableTool
	maxSteps     int
	maxMessages  int
}

// NewChatAgent wires the agent and indexes its invokable tools by name.
func NewChatAgent(ctx context.Context, cfg ChatAgentConfig) (*ChatAgent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("chat agent %q: model is nil", cfg.Name)
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	maxMessages := cfg.ContextMaxMessages
	if maxMessages <= 0 {
		maxMessages = 20
	}

	tools := make(map[string]tool.InvokableTool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("chat agent %q: tool info: %w", cfg.Name, err)
		}
		inv, ok := t.(tool.InvokableTool)
		if !ok {
			return nil, fmt.Errorf("chat agent %q: tool %q is not invokable", cfg.Name, info.Name)
		}
		tools[info.Name] = inv
	}

	return &ChatAgent{
		name:         cfg.Name,
		chatModel:    cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		tools:        tools,
		maxSteps:     maxSteps,
		maxMessages:  maxMessages,
	}, nil
}

func (a *ChatAgent) Name() string {
	return a.name
}

func (a *ChatAgent) Invoke(ctx context.Context, state *model.WorkflowState) (*Result, error) {
	msgs := a.buildMessages(state)
	var intermediate []*schema.Message

	for step := 0; step < a.maxSteps; step++ {
		out, err := a.chatModel.Generate(ctx, msgs)
		if err != nil {
			return nil, fmt.Errorf("agent %s generate: %w", a.name, err)
		}
		intermediate = append(intermediate, out)

		if len(out.ToolCalls) == 0 || len(a.tools) == 0 {
			return &Result{Output: out, Intermediate: intermediate}, nil
		}

		msgs = append(msgs, out)
		for _, tc := range out.ToolCalls {
			content := a.runTool(ctx, tc)
			toolMsg := &schema.Message{
				Role:       schema.Tool,
				Content:    content,
				ToolCallID: tc.ID,
			}
			msgs = append(msgs, toolMsg)
			intermediate = append(intermediate, toolMsg)
		}
	}

	// Step budget exhausted: ask the model to wrap up with what it has.
	msgs = append(msgs, &schema.Message{
		Role: schema.System,
		Content: fmt.Sprintf(
			"SYSTEM NOTICE: You have reached the maximum tool call limit (%d). "+
				"Synthesize a final answer using the information you've already gathered.",
			a.maxSteps,
		),
	})
	out, err := a.chatModel.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("agent %s wrap-up generate: %w", a.name, err)
	}
	intermediate = append(intermediate, out)
	return &Result{Output: out, Intermediate: intermediate}, nil
}

// runTool executes one requested tool call; failures are folded into the tool
// result so the model can react instead of the loop aborting.
func (a *ChatAgent) runTool(ctx context.Context, tc schema.ToolCall) string {
	name := strings.TrimSpace(tc.Function.Name)
	inv, ok := a.tools[name]
	if !ok {
		logx.Warn().Str("agent", a.name).Str("tool_name", name).Msg("Unknown or invalid tool call; returning fallback result")
		return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name)
	}
	out, err := inv.InvokableRun(ctx, tc.Function.Arguments)
	if err != nil {
		logx.Warn().Err(err).Str("agent", a.name).Str("tool_name", name).Msg("Tool execution failed")
		return fmt.Sprintf("{\"error\":%q,\"name\":%q}", err.Error(), name)
	}
	return out
}

// buildMessages renders the system prompt, a trailing window of the internal
// conversation, and the current stage fields into the model's context.
func (a *ChatAgent) buildMessages(state *model.WorkflowState) []*schema.Message {
	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range trimTail(state.InternalMessages, a.maxMessages) {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	b.WriteString("</conversation_context>\n")
	b.WriteString(renderStageFields(state))

	return []*schema.Message{
		schema.SystemMessage(a.systemPrompt),
		schema.UserMessage(b.String()),
	}
}

func renderStageFields(state *model.WorkflowState) string {
	fields := []struct {
		label string
		value string
	}{
		{"hypothesis", state.Hypothesis},
		{"process", state.Process},
		{"visualization_state", state.VisualizationState},
		{"searcher_state", state.SearcherState},
		{"code_state", state.CodeState},
		{"report_section", state.ReportSection},
		{"quality_review", state.QualityReview},
	}
	var b strings.Builder
	b.WriteString("<current_state>\n")
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", f.label, f.value)
	}
	b.WriteString("</current_state>")
	return b.String()
}

// trimTail returns at most maxTurns trailing messages without mutating the input.
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}

var _ Agent = (*ChatAgent)(nil)
