package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	logx "github.com/luminalab/datagen/pkg/logger"
)

const repairSystemPrompt = "You repair malformed JSON. You are given a document that failed to parse " +
	"and the parse error. Respond with ONLY the corrected JSON object, no prose, no code fences."

// Extractor parses free text into a target record, repairing parse failures by
// re-invoking a model with the error, bounded by a retry limit.
type Extractor struct {
	repairModel einomodel.BaseChatModel
	maxRetries  int
}

// NewExtractor builds an extractor. A nil repair model disables repair; the
// first parse failure is then final.
func NewExtractor(repairModel einomodel.BaseChatModel, maxRetries int) *Extractor {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Extractor{repairModel: repairModel, maxRetries: maxRetries}
}

// Extract parses raw into T, running the bounded repair loop on failure.
func Extract[T any](ctx context.Context, e *Extractor, raw string) (*T, error) {
	out, err := decodeJSON[T](raw)
	if err == nil {
		return out, nil
	}
	if e.repairModel == nil {
		return nil, fmt.Errorf("parse structured output: %w", err)
	}

	text := raw
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		logx.Debug().Int("attempt", attempt).Err(err).Msg("Repairing structured output")
		msg, genErr := e.repairModel.Generate(ctx, []*schema.Message{
			schema.SystemMessage(repairSystemPrompt),
			schema.UserMessage(fmt.Sprintf("Document:\n%s\n\nParse error: %v", text, err)),
		})
		if genErr != nil {
			return nil, fmt.Errorf("repair structured output: %w", genErr)
		}
		text = msg.Content
		out, err = decodeJSON[T](text)
		if err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("parse structured output after %d repairs: %w", e.maxRetries, err)
}

// decodeJSON extracts the outermost JSON object from the text (tolerating
// surrounding prose and code fences) and unmarshals it.
func decodeJSON[T any](raw string) (*T, error) {
	body := extractJSONObject(raw)
	if body == "" {
		return nil, fmt.Errorf("no JSON object found")
	}
	var out T
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
