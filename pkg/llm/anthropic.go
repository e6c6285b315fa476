// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicGenerator implements Generator for the Anthropic Messages API.
// Anthropic has no embedding endpoint.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates a new generator. With no options the API key is read
// from ANTHROPIC_API_KEY.
func NewAnthropic(model string, opts ...option.RequestOption) *AnthropicGenerator {
	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultAnthropicMaxTokens,
	}
}

// CheckNativeToolsSupport implements Generator. Every Claude model accepts tools.
func (p *AnthropicGenerator) CheckNativeToolsSupport(context.Context) (bool, error) {
	return true, nil
}

// Chat implements Generator.
func (p *AnthropicGenerator) Chat(ctx context.Context, opts *ChatOptions) (*ChatResponse, error) {
	history := append([]Message{{Role: RoleUser, Content: opts.Prompt}}, opts.History...)
	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		messages = append(messages, convertAnthropicMessage(msg))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}
	if len(opts.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(opts.Tools))
		for _, tool := range opts.Tools {
			tools = append(tools, convertAnthropicTool(tool))
		}
		params.Tools = tools
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic message failed: %w", err)
	}
	return convertAnthropicResponse(message), nil
}

func convertAnthropicMessage(msg Message) anthropic.MessageParam {
	switch msg.Role {
	case RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
			}
			return anthropic.NewAssistantMessage(blocks...)
		}
		return anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content))
	case RoleTool:
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}

func convertAnthropicTool(tool Tool) anthropic.ToolUnionParam {
	paramsJSON, _ := json.Marshal(tool.Function.Parameters)
	var inputSchema anthropic.ToolInputSchemaParam
	_ = json.Unmarshal(paramsJSON, &inputSchema)

	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        tool.Function.Name,
			Description: anthropic.String(tool.Function.Description),
			InputSchema: inputSchema,
		},
	}
}

func convertAnthropicResponse(message *anthropic.Message) *ChatResponse {
	resp := &ChatResponse{
		Usage: Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.Content += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:   block.ID,
				Type: ToolTypeFunction,
				Function: FunctionCall{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}
	return resp
}

var _ Generator = (*AnthropicGenerator)(nil)
