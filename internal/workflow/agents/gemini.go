package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// NewGeminiClient builds the shared Gemini client all specialist models use.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewAgentModel creates a chat model for a specialist agent, binding the given
// tool infos when present. Each tool-carrying agent gets its own model
// instance because binding mutates the model.
func NewAgentModel(ctx context.Context, client *genai.Client, cfg model.AgentModelConfig, tools []*schema.ToolInfo) (*gemini.ChatModel, error) {
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", cfg.Model).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}
	if len(tools) > 0 {
		if err := cm.BindTools(tools); err != nil {
			logx.Error().Err(err).Str("model", cfg.Model).Msg("Failed to bind tools")
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}
	return cm, nil
}

// NewRefinerModel creates the one-shot refinement model. It never carries
// tools; the refiner must produce its document in a single response.
func NewRefinerModel(ctx context.Context, client *genai.Client, cfg model.RefinerModelConfig) (*gemini.ChatModel, error) {
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", cfg.Model).Msg("Error creating refiner model")
		return nil, fmt.Errorf("error creating refiner model: %w", err)
	}
	return cm, nil
}
