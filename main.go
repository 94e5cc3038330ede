package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/luminalab/datagen/internal/artifacts"
	"github.com/luminalab/datagen/internal/core"
	"github.com/luminalab/datagen/internal/sandbox"
	"github.com/luminalab/datagen/internal/workflow"
	"github.com/luminalab/datagen/internal/workflow/checkpoint"
	"github.com/luminalab/datagen/internal/workflow/model"
	"github.com/luminalab/datagen/internal/workflow/repo"
	logx "github.com/luminalab/datagen/pkg/logger"
	pkgredis "github.com/luminalab/datagen/pkg/redis"
)

// AppConfig defines all configurable parameters for the workflow runner,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Workflow configs
	Workflow     model.WorkflowConfig
	AgentModel   model.AgentModelConfig
	RefinerModel model.RefinerModelConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.FromEnv()})

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	checkpointTTL := mustDuration("WORKFLOW_CHECKPOINT_TTL", envCfg.Workflow.CheckpointTTL)
	transcriptTTL := mustDuration("WORKFLOW_TRANSCRIPT_TTL", envCfg.Workflow.TranscriptTTL)
	artifactTTL := mustDuration("WORKFLOW_ARTIFACT_TTL", envCfg.Workflow.ArtifactTTL)

	runID := uuid.NewString()

	// Each run gets its own workspace under the configured root.
	sb, err := sandbox.NewLocal(filepath.Join(envCfg.Workflow.Workspace, runID))
	if err != nil {
		log.Fatalf("Failed to create sandbox workspace: %v", err)
	}

	runner, err := workflow.Build(ctx, workflow.Config{
		APIKey:       envCfg.APIKey,
		BaseURL:      envCfg.BaseURL,
		Workflow:     envCfg.Workflow,
		AgentModel:   envCfg.AgentModel,
		RefinerModel: envCfg.RefinerModel,
		Sandbox:      sb,
		Artifacts:    artifacts.NewRedisStore(rdb, artifactTTL),
		Checkpoints:  checkpoint.NewRedisStore(rdb, checkpointTTL),
		Transcripts:  repo.NewRedisTranscriptRepository(rdb, transcriptTTL),
	})
	if err != nil {
		log.Fatalf("Failed to build workflow: %v", err)
	}

	task := os.Getenv("WORKFLOW_TASK")
	if task == "" {
		task = "Investigate how seasonal weather patterns affect retail sales, with supporting charts."
	}

	final, runID, err := runner.Run(ctx, workflow.RunInput{
		RunID:  runID,
		UserID: os.Getenv("WORKFLOW_USER_ID"),
		Task:   task,
	})
	if errors.Is(err, workflow.ErrAwaitingHuman) {
		// Headless runs approve the hypothesis automatically. An interactive
		// frontend would surface the hypothesis and collect a real decision.
		fmt.Printf("Run %s suspended for review; approving hypothesis.\n", runID)
		final, err = runner.Resume(ctx, workflow.ResumeInput{
			RunID:    runID,
			Feedback: "continue",
		})
	}
	if err != nil {
		log.Fatalf("Workflow run %s failed: %v", runID, err)
	}

	fmt.Printf("Run %s finished at %s\n\n%s\n", runID, time.Now().Format(time.RFC3339), final.ReportSection)
}

// mustDuration parses a TTL config value, failing fast on misconfiguration.
func mustDuration(name, v string) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("Invalid %s '%s': %v", name, v, err)
	}
	return d
}
