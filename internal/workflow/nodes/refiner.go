package nodes

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/luminalab/datagen/internal/artifacts"
	"github.com/luminalab/datagen/internal/sandbox"
	"github.com/luminalab/datagen/internal/workflow/agents"
	"github.com/luminalab/datagen/internal/workflow/model"
	logx "github.com/luminalab/datagen/pkg/logger"
)

// chartRefPattern matches bracketed chart references in the refined document,
// e.g. [revenue_trend.png].
var chartRefPattern = regexp.MustCompile(`\[([^\[\]]+?\.(?:png|jpe?g|svg|gif))\]`)

// textMaterialExts are workspace files whose contents are inlined into the
// refiner's materials; everything else is listed by name only.
var textMaterialExts = map[string]bool{
	".md":  true,
	".txt": true,
	".csv": true,
}

// NewRefinerNode assembles the final document. It gathers the drafted report
// materials from the sandbox, runs the refinement agent once, persists every
// referenced chart to the artifact store, and rewrites chart references into
// portable attachment identifiers. A refinement failure propagates; there is
// no downstream node that could recover a missing final document.
func NewRefinerNode(ag agents.Agent, sb sandbox.Manager, store artifacts.Store) *compose.Lambda {
	return compose.InvokableLambda(refinerFunc(ag, sb, store))
}

func refinerFunc(ag agents.Agent, sb sandbox.Manager, store artifacts.Store) func(context.Context, *model.WorkflowState) (*model.WorkflowState, error) {
	return func(ctx context.Context, state *model.WorkflowState) (*model.WorkflowState, error) {
		files, err := sb.ListFiles(ctx)
		if err != nil {
			logx.Warn().Err(err).Msg("Could not list workspace files; refining from state only")
			files = nil
		}

		materials, err := gatherMaterials(ctx, sb, files, true)
		if err != nil {
			return nil, fmt.Errorf("gather report materials: %w", err)
		}

		res, err := invokeWithMaterials(ctx, ag, state, materials)
		if err != nil && isContextLengthErr(err) {
			logx.Warn().Err(err).Msg("Refiner context overflow; retrying with file names only")
			materials, merr := gatherMaterials(ctx, sb, files, false)
			if merr != nil {
				return nil, fmt.Errorf("gather report materials: %w", merr)
			}
			res, err = invokeWithMaterials(ctx, ag, state, materials)
		}
		if err != nil {
			return nil, fmt.Errorf("refine report: %w", err)
		}

		final := persistChartReferences(ctx, sb, store, state.UserID, files, res.Output.Content)

		out := model.WithSender(res.Output, model.SenderRefiner)
		out.Content = final
		state.Apply(model.Update{
			InternalMessages: []*schema.Message{out},
			FrontendMessages: tagProvenance(res.Intermediate, AgentType(model.NodeRefiner)),
			Fields:           map[model.Field]string{model.FieldReportSection: final},
			Sender:           model.SenderRefiner,
		})
		logx.Info().Int("chars", len(final)).Msg("Final document assembled")
		return state, nil
	}
}

// gatherMaterials renders the workspace into a materials block. With
// includeContents set, text files are inlined; otherwise every file appears by
// name only, which is the degraded mode for oversized contexts.
func gatherMaterials(ctx context.Context, sb sandbox.Manager, files []string, includeContents bool) (string, error) {
	var b strings.Builder
	b.WriteString("<report_materials>\n")
	for _, name := range files {
		ext := strings.ToLower(filepath.Ext(name))
		if includeContents && textMaterialExts[ext] {
			data, ok, err := sb.ReadFile(ctx, name)
			if err != nil {
				return "", fmt.Errorf("read material %q: %w", name, err)
			}
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "--- %s ---\n%s\n", name, string(data))
			continue
		}
		fmt.Fprintf(&b, "--- %s (file) ---\n", name)
	}
	b.WriteString("</report_materials>")
	return b.String(), nil
}

// invokeWithMaterials runs the agent against a copy of the state whose
// conversation ends with the materials block.
func invokeWithMaterials(ctx context.Context, ag agents.Agent, state *model.WorkflowState, materials string) (*agents.Result, error) {
	scoped := *state
	scoped.InternalMessages = append(append([]*schema.Message{}, state.InternalMessages...), &schema.Message{
		Role:    schema.User,
		Content: materials,
	})
	return ag.Invoke(ctx, &scoped)
}

// persistChartReferences stores each chart file the document references and
// rewrites its bracketed reference into [attachment:<id>]. One identifier is
// minted per distinct filename, so repeated references share an attachment.
// References to files the workspace does not contain are left untouched.
func persistChartReferences(ctx context.Context, sb sandbox.Manager, store artifacts.Store, userID string, files []string, doc string) string {
	if store == nil {
		return doc
	}
	if userID == "" {
		userID = "anonymous"
	}
	available := make(map[string]bool, len(files))
	for _, f := range files {
		available[f] = true
	}

	ids := map[string]string{}
	for _, match := range chartRefPattern.FindAllStringSubmatch(doc, -1) {
		name := match[1]
		if _, done := ids[name]; done || !available[name] {
			continue
		}
		data, ok, err := sb.ReadFile(ctx, name)
		if err != nil || !ok {
			logx.Warn().Err(err).Str("filename", name).Msg("Referenced chart unreadable; leaving reference as-is")
			continue
		}
		id := uuid.NewString()
		format := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if err := store.PutFile(ctx, userID, id, data, name, format); err != nil {
			logx.Warn().Err(err).Str("filename", name).Msg("Could not persist chart; leaving reference as-is")
			continue
		}
		ids[name] = id
	}

	for name, id := range ids {
		doc = strings.ReplaceAll(doc, "["+name+"]", "[attachment:"+id+"]")
	}
	return doc
}

// isContextLengthErr is a provider-agnostic heuristic for prompt-too-large
// failures, the one model error the refiner can recover from by degrading its
// materials.
func isContextLengthErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"context length", "context window", "token limit", "too many tokens", "exceeds the maximum", "input is too long"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
