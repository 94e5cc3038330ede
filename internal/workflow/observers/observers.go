package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/luminalab/datagen/pkg/logger"
)

// NewAllCallbacks aggregates the model and tool observers into one handler.
// Attach it via compose.WithCallbacks when invoking the graph.
func NewAllCallbacks() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		ChatModel(newModelHandler()).
		Tool(newToolHandler()).
		Handler()
}

// newModelHandler logs model call boundaries with prompt/response sizes; the
// content itself stays out of the logs.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *einomodel.CallbackInput) context.Context {
			messages := 0
			if input != nil {
				messages = len(input.Messages)
			}
			logx.Debug().Str("component", info.Name).Int("messages", messages).Msg("Model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *einomodel.CallbackOutput) context.Context {
			chars := 0
			toolCalls := 0
			if output != nil && output.Message != nil {
				chars = len(strings.TrimSpace(output.Message.Content))
				toolCalls = len(output.Message.ToolCalls)
			}
			logx.Debug().Str("component", info.Name).Int("chars", chars).Int("tool_calls", toolCalls).Msg("Model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("component", info.Name).Msg("Model call failed")
			return ctx
		},
	}
}

// newToolHandler logs tool execution boundaries.
func newToolHandler() *callbackHelper.ToolCallbackHandler {
	return &callbackHelper.ToolCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *tool.CallbackInput) context.Context {
			args := ""
			if input != nil {
				args = input.ArgumentsInJSON
			}
			logx.Debug().Str("tool", info.Name).Int("args_bytes", len(args)).Msg("Tool started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *tool.CallbackOutput) context.Context {
			chars := 0
			if output != nil {
				chars = len(output.Response)
			}
			logx.Debug().Str("tool", info.Name).Int("response_chars", chars).Msg("Tool finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("tool", info.Name).Msg("Tool failed")
			return ctx
		},
	}
}
