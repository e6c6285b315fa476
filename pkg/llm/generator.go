// Package llm defines the generator abstraction: a uniform contract over chat
// completion and embedding backends, plus the adapters for each backend.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolType represents the type of tool.
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
)

// FunctionDef defines a function tool.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"` // JSON Schema
}

// Tool represents an action offered to the model through native tool calling.
type Tool struct {
	Type     ToolType    `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionCall represents a call to a function tool.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON object
}

// ToolCall represents a structured request from the model to invoke a tool.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is a single unit of the conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ChatOptions is the assembled conversation sent to a generator.
type ChatOptions struct {
	SystemPrompt string
	Prompt       string
	History      []Message
	// Tools is only set when the backend supports native tool calls.
	Tools []Tool
}

// Messages flattens the options into the wire order: system prompt, task
// prompt, then history.
func (o *ChatOptions) Messages() []Message {
	msgs := make([]Message, 0, len(o.History)+2)
	if o.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: o.SystemPrompt})
	}
	if o.Prompt != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: o.Prompt})
	}
	return append(msgs, o.History...)
}

// ChatResponse is the model reply.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Generator is the uniform contract over chat backends.
type Generator interface {
	// CheckNativeToolsSupport probes whether the backend can return structured
	// tool calls for the configured model.
	CheckNativeToolsSupport(ctx context.Context) (bool, error)
	// Chat sends the conversation and returns the model reply.
	Chat(ctx context.Context, opts *ChatOptions) (*ChatResponse, error)
}

// Embedder converts text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
