package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/luminalab/datagen/internal/sandbox"
)

// Tool names the workflow binds to its code-running specialists.
const (
	ToolRunCommand = "run_command"
	ToolWriteFile  = "write_file"
	ToolReadFile   = "read_file"
	ToolListFiles  = "list_files"
)

// SandboxTools returns the file and execution tools backed by the run's shared
// sandbox. The sandbox handle is owned by the workflow run; tools only borrow it.
func SandboxTools(sb sandbox.Manager) []tool.BaseTool {
	return []tool.BaseTool{
		createRunCommandTool(sb),
		createWriteFileTool(sb),
		createReadFileTool(sb),
		createListFilesTool(sb),
	}
}

// GetToolInfos resolves the ToolInfo of every tool for model binding.
func GetToolInfos(ctx context.Context, tools []tool.BaseTool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("get tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ===================================
// Run Command Tool
// ===================================

type RunCommandInput struct {
	Command string `json:"command"`
}

type RunCommandOutput struct {
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

func createRunCommandTool(sb sandbox.Manager) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolRunCommand,
			Desc: "Execute a shell command inside the persistent workspace. The working directory is the workspace root; files written by previous commands are still present. Returns the command's combined stdout/stderr output.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"command": {
					Type:     "string",
					Desc:     "Shell command to run, e.g. 'python analysis.py' or 'ls -la'.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *RunCommandInput) (*RunCommandOutput, error) {
			if in.Command == "" {
				return nil, fmt.Errorf("command is required")
			}
			out, err := sb.Execute(ctx, in.Command)
			if err != nil {
				// Surface the failure as data so the model can correct itself.
				return &RunCommandOutput{Output: out, Error: err.Error()}, nil
			}
			return &RunCommandOutput{Output: out}, nil
		},
	)
}

// ===================================
// Write File Tool
// ===================================

type WriteFileInput struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type WriteFileOutput struct {
	Written bool `json:"written"`
}

func createWriteFileTool(sb sandbox.Manager) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolWriteFile,
			Desc: "Create or overwrite a file in the workspace. Use relative filenames only.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"filename": {
					Type:     "string",
					Desc:     "Relative filename, e.g. 'analysis.py' or 'report.md'.",
					Required: true,
				},
				"content": {
					Type:     "string",
					Desc:     "Full file contents.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *WriteFileInput) (*WriteFileOutput, error) {
			if in.Filename == "" {
				return nil, fmt.Errorf("filename is required")
			}
			if err := sb.WriteFile(ctx, in.Filename, []byte(in.Content)); err != nil {
				return nil, err
			}
			return &WriteFileOutput{Written: true}, nil
		},
	)
}

// ===================================
// Read File Tool
// ===================================

type ReadFileInput struct {
	Filename string `json:"filename"`
}

type ReadFileOutput struct {
	Found   bool   `json:"found"`
	Content string `json:"content,omitempty"`
}

func createReadFileTool(sb sandbox.Manager) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolReadFile,
			Desc: "Read a file from the workspace. Returns found=false when the file does not exist.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"filename": {
					Type:     "string",
					Desc:     "Relative filename to read.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *ReadFileInput) (*ReadFileOutput, error) {
			if in.Filename == "" {
				return nil, fmt.Errorf("filename is required")
			}
			data, found, err := sb.ReadFile(ctx, in.Filename)
			if err != nil {
				return nil, err
			}
			return &ReadFileOutput{Found: found, Content: string(data)}, nil
		},
	)
}

// ===================================
// List Files Tool
// ===================================

type ListFilesInput struct{}

type ListFilesOutput struct {
	Files []string `json:"files"`
}

func createListFilesTool(sb sandbox.Manager) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolListFiles,
			Desc:        "List all files currently in the workspace.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, in *ListFilesInput) (*ListFilesOutput, error) {
			files, err := sb.ListFiles(ctx)
			if err != nil {
				return nil, err
			}
			return &ListFilesOutput{Files: files}, nil
		},
	)
}
