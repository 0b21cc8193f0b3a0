package structured

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

var ErrNoToolCall = errors.New("model did not call the output tool")

type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

// Chain forces the model to answer by calling a single tool whose parameters
// are the TOutput struct, then decodes the call arguments.
type Chain[TInput, TOutput any] struct {
	build   PromptBuilder[TInput]
	model   model.ToolCallingChatModel
	tool    *schema.ToolInfo
	options []model.Option
}

func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	build PromptBuilder[TInput],
	toolName string,
	toolDesc string,
	opts ...model.Option,
) (*Chain[TInput, TOutput], error) {
	if chatModel == nil {
		return nil, errors.New("chat model is nil")
	}
	tool, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	return &Chain[TInput, TOutput]{
		build:   build,
		model:   chatModel,
		tool:    tool,
		options: opts,
	}, nil
}

// Result carries the decoded value and the raw tool arguments it came from.
type Result[TOutput any] struct {
	Value     *TOutput
	Arguments string
}

func (c *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput) (*Result[TOutput], error) {
	messages, err := c.build(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}
	opts := append([]model.Option{
		model.WithTools([]*schema.ToolInfo{c.tool}),
		model.WithToolChoice(schema.ToolChoiceForced, c.tool.Name),
	}, c.options...)
	response, err := c.model.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	return decode[TOutput](c.tool.Name, response)
}

func decode[TOutput any](toolName string, msg *schema.Message) (*Result[TOutput], error) {
	if msg == nil {
		return nil, ErrNoToolCall
	}
	for _, call := range msg.ToolCalls {
		if call.Function.Name != "" && call.Function.Name != toolName {
			continue
		}
		var out TOutput
		if err := sonic.UnmarshalString(call.Function.Arguments, &out); err != nil {
			return nil, fmt.Errorf("parse %s arguments failed: %w", toolName, err)
		}
		return &Result[TOutput]{Value: &out, Arguments: call.Function.Arguments}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoToolCall, msg.Content)
}

func (c *Chain[TInput, TOutput]) Tool() *schema.ToolInfo {
	return c.tool
}
