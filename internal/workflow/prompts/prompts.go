package prompts

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/*.txt
var templatesFS embed.FS

// Role names the prompt templates shipped with the workflow.
const (
	RoleHypothesis    = "hypothesis"
	RoleProcess       = "process"
	RoleVisualization = "visualization"
	RoleSearch        = "search"
	RoleCoder         = "coder"
	RoleReport        = "report"
	RoleQualityReview = "quality_review"
	RoleNoteTaker     = "note_taker"
	RoleRefiner       = "refiner"
)

// RenderSystem renders a role's system prompt, substituting {token} variables,
// and routes it through the Eino prompt component so prompt callbacks fire.
func RenderSystem(ctx context.Context, role string, vars map[string]string) (string, error) {
	raw, err := templatesFS.ReadFile("template/" + role + ".txt")
	if err != nil {
		return "", fmt.Errorf("load prompt template %q: %w", role, err)
	}

	content := string(raw)
	if len(vars) > 0 {
		// Replace known tokens only so literal braces in the template survive.
		pairs := make([]string, 0, len(vars)*2)
		for k, v := range vars {
			pairs = append(pairs, "{"+k+"}", v)
		}
		content = strings.NewReplacer(pairs...).Replace(content)
	}

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("prompt callbacks for %q: %w", role, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("prompt callbacks for %q: empty result", role)
	}
	return msgs[0].Content, nil
}
