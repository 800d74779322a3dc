// Package assistant adapts a tool-calling chat model to the orchestrator's
// reasoning step.
package assistant

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/smart-zoo-assistant/agent/contract"
	llmx "github.com/tanpawarit/smart-zoo-assistant/agent/llm"
	"github.com/tanpawarit/smart-zoo-assistant/agent/tool"
)

type Assistant struct {
	runner compose.Runnable[[]*schema.Message, *schema.Message]
}

var _ contractx.Reasoner = (*Assistant)(nil)

// New binds the zoo tool set to chatModel and compiles the reasoning graph.
func New(ctx context.Context, chatModel einomodel.ToolCallingChatModel) (*Assistant, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	toolModel, err := chatModel.WithTools(tool.Infos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind zoo tools: %v", contractx.ErrModelInvoke, err)
	}
	runner, err := compileReasonGraph(ctx, toolModel)
	if err != nil {
		return nil, fmt.Errorf("%w: compile reason graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Assistant{runner: runner}, nil
}

// NewFromConfig builds the chat model from cfg and wraps it.
func NewFromConfig(ctx context.Context, cfg llmx.Config) (*Assistant, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, chatModel)
}

func (a *Assistant) Reason(ctx context.Context, history []*schema.Message) (contractx.Decision, error) {
	if len(history) == 0 {
		return contractx.Decision{}, fmt.Errorf("%w: empty conversation", contractx.ErrValidation)
	}
	msg, err := a.runner.Invoke(ctx, history)
	if err != nil {
		return contractx.Decision{}, fmt.Errorf("%w: assistant invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.Decision{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}

	reqs, err := toToolRequests(msg)
	if err != nil {
		return contractx.Decision{}, err
	}
	return contractx.Decision{
		Message:      msg,
		Text:         strings.TrimSpace(msg.Content),
		ToolRequests: reqs,
	}, nil
}

func compileReasonGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[[]*schema.Message, *schema.Message], error) {
	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add reason model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, fmt.Errorf("add reason edge start->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add reason edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("assistant.reason_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile reason graph: %w", err)
	}
	return runner, nil
}

// toToolRequests copies the model's tool calls. Missing call ids are filled
// in so every observation can reference its call.
func toToolRequests(msg *schema.Message) ([]contractx.ToolRequest, error) {
	if len(msg.ToolCalls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(msg.ToolCalls))
	for i := range msg.ToolCalls {
		call := &msg.ToolCalls[i]
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		if strings.TrimSpace(call.ID) == "" {
			call.ID = fmt.Sprintf("call_%d", i)
		}
		reqs = append(reqs, contractx.ToolRequest{
			ID:      call.ID,
			Tool:    name,
			RawArgs: call.Function.Arguments,
		})
	}
	return reqs, nil
}
