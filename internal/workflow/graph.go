package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/luminalab/datagen/internal/artifacts"
	"github.com/luminalab/datagen/internal/sandbox"
	"github.com/luminalab/datagen/internal/workflow/agents"
	"github.com/luminalab/datagen/internal/workflow/model"
	"github.com/luminalab/datagen/internal/workflow/nodes"
	"github.com/luminalab/datagen/internal/workflow/prompts"
	"github.com/luminalab/datagen/internal/workflow/repo"
	"github.com/luminalab/datagen/internal/workflow/tools"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// Config holds everything needed to compose the full research workflow
// end-to-end. This is a convenience layer over GraphConfig that also
// constructs the chat models and specialist agents.
type Config struct {
	APIKey  string
	BaseURL string

	Workflow     model.WorkflowConfig
	AgentModel   model.AgentModelConfig
	RefinerModel model.RefinerModelConfig

	Sandbox     sandbox.Manager
	Artifacts   artifacts.Store
	Checkpoints compose.CheckPointStore
	Transcripts repo.TranscriptRepository
}

// Agents groups the specialist agents by the node they back. The set is
// injectable so the graph can be exercised with scripted agents.
type Agents struct {
	Hypothesis    agents.Agent
	Process       agents.Agent
	Visualization agents.Agent
	Search        agents.Agent
	Coder         agents.Agent
	Report        agents.Agent
	QualityReview agents.Agent
	NoteTaker     agents.Agent
	Refiner       agents.Agent
}

// GraphConfig holds all configuration needed to build the graph.
type GraphConfig struct {
	Agents      *Agents
	Extractor   *agents.Extractor
	Sandbox     sandbox.Manager
	Artifacts   artifacts.Store
	Checkpoints compose.CheckPointStore

	MaxRunSteps       int
	NoteTrimThreshold int
}

// GraphBuilder handles the construction of the research workflow graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[*model.WorkflowState, *model.WorkflowState]
}

var registerTypesOnce sync.Once

// registerSerializableTypes makes the state types checkpoint-serializable.
// Registration is global in the engine, so it runs once per process.
func registerSerializableTypes() {
	registerTypesOnce.Do(func() {
		compose.RegisterSerializableType[model.WorkflowState]("datagen.WorkflowState")
		compose.RegisterSerializableType[model.RunState]("datagen.RunState")
	})
}

// Build composes the agents, builds the graph, and returns a Runner.
func Build(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox manager is nil")
	}

	ags, extractor, err := NewAgents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Agents:            ags,
		Extractor:         extractor,
		Sandbox:           cfg.Sandbox,
		Artifacts:         cfg.Artifacts,
		Checkpoints:       cfg.Checkpoints,
		MaxRunSteps:       cfg.Workflow.MaxRunSteps,
		NoteTrimThreshold: cfg.Workflow.NoteTrimThreshold,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Workflow graph built successfully")
	return NewRunner(runnable, cfg.Transcripts, cfg.Sandbox), nil
}

// NewAgents constructs the full specialist set backed by Gemini models, plus
// the extractor used for structured note output.
func NewAgents(ctx context.Context, cfg Config) (*Agents, *agents.Extractor, error) {
	client, err := agents.NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL)
	if err != nil {
		return nil, nil, err
	}

	sbTools := tools.SandboxTools(cfg.Sandbox)
	toolInfos, err := tools.GetToolInfos(ctx, sbTools)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get tool infos: %w", err)
	}

	build := func(name, role string, withTools bool) (agents.Agent, error) {
		system, err := prompts.RenderSystem(ctx, role, nil)
		if err != nil {
			return nil, err
		}
		var agentTools []tool.BaseTool
		var infos []*schema.ToolInfo
		if withTools {
			// Each tool-carrying agent binds its own model instance.
			agentTools, infos = sbTools, toolInfos
		}
		cm, err := agents.NewAgentModel(ctx, client, cfg.AgentModel, infos)
		if err != nil {
			return nil, err
		}
		return agents.NewChatAgent(ctx, agents.ChatAgentConfig{
			Name:               name,
			Model:              cm,
			SystemPrompt:       system,
			Tools:              agentTools,
			MaxSteps:           cfg.Workflow.AgentMaxSteps,
			ContextMaxMessages: cfg.Workflow.ContextMaxMessages,
		})
	}

	ags := &Agents{}
	for _, spec := range []struct {
		dst       *agents.Agent
		name      string
		role      string
		withTools bool
	}{
		{&ags.Hypothesis, model.SenderHypothesis, prompts.RoleHypothesis, false},
		{&ags.Process, model.SenderProcess, prompts.RoleProcess, false},
		{&ags.Visualization, model.SenderVisualization, prompts.RoleVisualization, true},
		{&ags.Search, model.SenderSearch, prompts.RoleSearch, true},
		{&ags.Coder, model.SenderCoder, prompts.RoleCoder, true},
		{&ags.Report, model.SenderReport, prompts.RoleReport, false},
		{&ags.QualityReview, model.SenderQualityReview, prompts.RoleQualityReview, false},
		{&ags.NoteTaker, model.SenderNote, prompts.RoleNoteTaker, false},
	} {
		ag, err := build(spec.name, spec.role, spec.withTools)
		if err != nil {
			return nil, nil, fmt.Errorf("build agent %s: %w", spec.name, err)
		}
		*spec.dst = ag
	}

	// The refiner uses the larger-context model and produces its document in a
	// single response.
	refSystem, err := prompts.RenderSystem(ctx, prompts.RoleRefiner, nil)
	if err != nil {
		return nil, nil, err
	}
	refModel, err := agents.NewRefinerModel(ctx, client, cfg.RefinerModel)
	if err != nil {
		return nil, nil, err
	}
	ags.Refiner, err = agents.NewChatAgent(ctx, agents.ChatAgentConfig{
		Name:               model.SenderRefiner,
		Model:              refModel,
		SystemPrompt:       refSystem,
		MaxSteps:           1,
		ContextMaxMessages: cfg.Workflow.ContextMaxMessages,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build agent %s: %w", model.SenderRefiner, err)
	}

	repairModel, err := agents.NewAgentModel(ctx, client, cfg.AgentModel, nil)
	if err != nil {
		return nil, nil, err
	}
	extractor := agents.NewExtractor(repairModel, cfg.Workflow.StructuredMaxRetries)

	return ags, extractor, nil
}

// BuildGraph constructs and returns the compiled workflow graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[*model.WorkflowState, *model.WorkflowState], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.Agents == nil {
		return nil, fmt.Errorf("agents are not initialized")
	}
	if config.Sandbox == nil {
		return nil, fmt.Errorf("sandbox manager is nil")
	}
	if config.Extractor == nil {
		return nil, fmt.Errorf("extractor is nil")
	}

	registerSerializableTypes()

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[*model.WorkflowState, *model.WorkflowState](
			compose.WithGenLocalState(func(ctx context.Context) *model.RunState {
				return &model.RunState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	a := b.config.Agents

	b.graph.AddLambdaNode(model.NodeHypothesis, nodes.NewAgentNode(a.Hypothesis, model.NodeHypothesis))
	b.graph.AddLambdaNode(model.NodeProcess, nodes.NewAgentNode(a.Process, model.NodeProcess))
	b.graph.AddLambdaNode(model.NodeVisualization, nodes.NewAgentNode(a.Visualization, model.NodeVisualization))
	b.graph.AddLambdaNode(model.NodeSearch, nodes.NewAgentNode(a.Search, model.NodeSearch))
	b.graph.AddLambdaNode(model.NodeCoder, nodes.NewAgentNode(a.Coder, model.NodeCoder))
	b.graph.AddLambdaNode(model.NodeReport, nodes.NewAgentNode(a.Report, model.NodeReport))

	b.graph.AddLambdaNode(model.NodeQualityReview, nodes.NewQualityReviewNode(a.QualityReview))
	b.graph.AddLambdaNode(model.NodeNoteTaker, nodes.NewNoteTakerNode(a.NoteTaker, b.config.Extractor, b.config.NoteTrimThreshold))
	b.graph.AddLambdaNode(model.NodeHumanChoice, nodes.NewHumanChoiceNode())
	b.graph.AddLambdaNode(model.NodeRefiner, nodes.NewRefinerNode(a.Refiner, b.config.Sandbox, b.config.Artifacts))
	b.graph.AddLambdaNode(model.NodeCleanup, nodes.NewCleanupNode(b.config.Sandbox))
}

// addEdges creates the unconditional flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, model.NodeHypothesis},
		{model.NodeVisualization, model.NodeQualityReview},
		{model.NodeSearch, model.NodeQualityReview},
		{model.NodeCoder, model.NodeQualityReview},
		{model.NodeReport, model.NodeQualityReview},
		{model.NodeNoteTaker, model.NodeProcess},
		{model.NodeRefiner, model.NodeCleanup},
		{model.NodeCleanup, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	branches := []struct {
		from    string
		branch  *compose.GraphBranch
		purpose string
	}{
		{
			from: model.NodeHypothesis,
			branch: compose.NewGraphBranch(nodes.NewHypothesisCondition(), map[string]bool{
				model.NodeHypothesis:  true,
				model.NodeHumanChoice: true,
			}),
			purpose: "hypothesis continuation",
		},
		{
			from: model.NodeHumanChoice,
			branch: compose.NewGraphBranch(nodes.NewHumanChoiceCondition(), map[string]bool{
				model.NodeHypothesis: true,
				model.NodeProcess:    true,
			}),
			purpose: "operator decision",
		},
		{
			from: model.NodeProcess,
			branch: compose.NewGraphBranch(nodes.NewProcessCondition(), map[string]bool{
				model.NodeCoder:         true,
				model.NodeSearch:        true,
				model.NodeVisualization: true,
				model.NodeReport:        true,
				model.NodeProcess:       true,
				model.NodeRefiner:       true,
			}),
			purpose: "supervisor dispatch",
		},
		{
			from: model.NodeQualityReview,
			branch: compose.NewGraphBranch(nodes.NewQualityReviewCondition(), map[string]bool{
				model.NodeVisualization: true,
				model.NodeSearch:        true,
				model.NodeCoder:         true,
				model.NodeReport:        true,
				model.NodeNoteTaker:     true,
			}),
			purpose: "quality verdict",
		},
	}

	for _, br := range branches {
		if err := b.graph.AddBranch(br.from, br.branch); err != nil {
			logx.Error().Err(err).Str("branch", br.purpose).Msg("Error adding branch")
			return fmt.Errorf("error adding %s branch: %w", br.purpose, err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.WorkflowState, *model.WorkflowState], error) {
	// Limit total run steps so a misbehaving supervisor cannot loop forever.
	maxSteps := b.config.MaxRunSteps
	if maxSteps <= 0 {
		maxSteps = 80
	}

	opts := []compose.GraphCompileOption{compose.WithMaxRunSteps(maxSteps)}
	if b.config.Checkpoints != nil {
		opts = append(opts, compose.WithCheckPointStore(b.config.Checkpoints))
	}

	runnable, err := b.graph.Compile(ctx, opts...)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Int("max_run_steps", maxSteps).Msg("Graph compiled successfully")
	return runnable, nil
}
