package model

// ================ Config ================

// WorkflowConfig bounds the state machine and its supporting stores.
type WorkflowConfig struct {
	MaxRunSteps          int    `envconfig:"WORKFLOW_MAX_RUN_STEPS" default:"80"`
	AgentMaxSteps        int    `envconfig:"WORKFLOW_AGENT_MAX_STEPS" default:"8"`
	ContextMaxMessages   int    `envconfig:"WORKFLOW_CONTEXT_MAX_MESSAGES" default:"20"`
	NoteTrimThreshold    int    `envconfig:"WORKFLOW_NOTE_TRIM_THRESHOLD" default:"6"`
	StructuredMaxRetries int    `envconfig:"WORKFLOW_STRUCTURED_MAX_RETRIES" default:"3"`
	CheckpointTTL        string `envconfig:"WORKFLOW_CHECKPOINT_TTL" default:"24h"`
	TranscriptTTL        string `envconfig:"WORKFLOW_TRANSCRIPT_TTL" default:"72h"`
	ArtifactTTL          string `envconfig:"WORKFLOW_ARTIFACT_TTL" default:"168h"`
	Workspace            string `envconfig:"WORKFLOW_WORKSPACE" default:"./workspace"`
}

// AgentModelConfig configures the chat model backing the specialist agents.
type AgentModelConfig struct {
	Model       string  `envconfig:"AGENT_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"AGENT_MAX_TOKENS" default:"4096"`
	Temperature float32 `envconfig:"AGENT_TEMPERATURE" default:"0.3"`
}

// RefinerModelConfig configures the one-shot refinement model. It typically
// points at a larger-context model than the specialists.
type RefinerModelConfig struct {
	Model       string  `envconfig:"REFINER_MODEL" default:"gemini-2.5-pro"`
	MaxTokens   int     `envconfig:"REFINER_MAX_TOKENS" default:"8192"`
	Temperature float32 `envconfig:"REFINER_TEMPERATURE" default:"0.2"`
}
