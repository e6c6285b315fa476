// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator implements Generator and Embedder for the OpenAI API and
// any endpoint speaking the same protocol.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

// NewOpenAI creates an OpenAI generator. With no options the API key is read
// from OPENAI_API_KEY.
func NewOpenAI(model string, opts ...option.RequestOption) *OpenAIGenerator {
	return &OpenAIGenerator{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// NewOpenAINoAuth creates a generator for an OpenAI compatible endpoint that
// does not require authentication.
func NewOpenAINoAuth(baseURL, model string) *OpenAIGenerator {
	return NewOpenAI(model,
		option.WithBaseURL(baseURL),
		option.WithAPIKey(""),
	)
}

// CheckNativeToolsSupport sends a probe completion carrying a dummy tool.
// Endpoints that reject tools answer with an error mentioning them.
func (p *OpenAIGenerator) CheckNativeToolsSupport(ctx context.Context) (bool, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hello")},
		Tools: []openai.ChatCompletionToolParam{convertOpenAITool(Tool{
			Type: ToolTypeFunction,
			Function: FunctionDef{
				Name:        "test",
				Description: "test",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
		})},
	}
	if _, err := p.client.Chat.Completions.New(ctx, params); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tool") {
			return false, nil
		}
		return false, fmt.Errorf("openai tools probe failed: %w", err)
	}
	return true, nil
}

// Chat implements Generator.
func (p *OpenAIGenerator) Chat(ctx context.Context, opts *ChatOptions) (*ChatResponse, error) {
	msgs := opts.Messages()
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		messages = append(messages, convertOpenAIMessage(msg))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	if len(opts.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(opts.Tools))
		for _, tool := range opts.Tools {
			tools = append(tools, convertOpenAITool(tool))
		}
		params.Tools = tools
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	return convertOpenAIResponse(completion), nil
}

// Embed implements Embedder.
func (p *OpenAIGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embedding returned no data")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func convertOpenAIMessage(msg Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.Content)
	case RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			return openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls},
			}
		}
		return openai.AssistantMessage(msg.Content)
	case RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID)
	default:
		return openai.UserMessage(msg.Content)
	}
}

func convertOpenAITool(tool Tool) openai.ChatCompletionToolParam {
	paramsJSON, _ := json.Marshal(tool.Function.Parameters)
	var params openai.FunctionParameters
	_ = json.Unmarshal(paramsJSON, &params)

	return openai.ChatCompletionToolParam{
		Function: openai.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  params,
		},
	}
}

func convertOpenAIResponse(completion *openai.ChatCompletion) *ChatResponse {
	resp := &ChatResponse{
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) == 0 {
		return resp
	}

	choice := completion.Choices[0]
	resp.Content = choice.Message.Content
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: ToolTypeFunction,
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return resp
}

var (
	_ Generator = (*OpenAIGenerator)(nil)
	_ Embedder  = (*OpenAIGenerator)(nil)
)
