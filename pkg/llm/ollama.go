package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaGenerator implements Generator and Embedder for Ollama.
type OllamaGenerator struct {
	baseURL       string
	model         string
	contextWindow int
	client        *http.Client
}

// NewOllama creates a new OllamaGenerator.
func NewOllama(baseURL, model string, contextWindow int) *OllamaGenerator {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaGenerator{
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		contextWindow: contextWindow,
		client:        &http.Client{Timeout: 10 * time.Minute},
	}
}

// Ollama encodes tool call arguments as a JSON object rather than a string.
type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaMessage struct {
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []Tool          `json:"tools,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	EvalCount       int           `json:"eval_count"`
	PromptEvalCount int           `json:"prompt_eval_count"`
}

type ollamaStatusError struct {
	status int
	body   string
}

func (e *ollamaStatusError) Error() string {
	return fmt.Sprintf("ollama api returned status %d: %s", e.status, e.body)
}

// CheckNativeToolsSupport sends a probe request carrying a dummy tool; models
// without tool support are rejected by Ollama with a 400.
func (p *OllamaGenerator) CheckNativeToolsSupport(ctx context.Context) (bool, error) {
	probe := ollamaRequest{
		Model:    p.model,
		Messages: []ollamaMessage{{Role: RoleUser, Content: "hello"}},
		Tools: []Tool{{
			Type: ToolTypeFunction,
			Function: FunctionDef{
				Name:        "test",
				Description: "test",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		}},
	}
	if _, err := p.do(ctx, probe); err != nil {
		if se, ok := err.(*ollamaStatusError); ok && strings.Contains(se.body, "does not support tools") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Chat sends a chat request to Ollama and maps the response to ChatResponse.
func (p *OllamaGenerator) Chat(ctx context.Context, opts *ChatOptions) (*ChatResponse, error) {
	msgs := opts.Messages()
	req := ollamaRequest{
		Model:    p.model,
		Messages: make([]ollamaMessage, 0, len(msgs)),
		Tools:    opts.Tools,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, toOllamaMessage(m))
	}
	if p.contextWindow > 0 {
		req.Options = map[string]any{"num_ctx": p.contextWindow}
	}

	oResp, err := p.do(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &ChatResponse{
		Content: oResp.Message.Content,
		Usage: Usage{
			PromptTokens:     oResp.PromptEvalCount,
			CompletionTokens: oResp.EvalCount,
			TotalTokens:      oResp.PromptEvalCount + oResp.EvalCount,
		},
	}
	for _, tc := range oResp.Message.ToolCalls {
		args, err := json.Marshal(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool call arguments: %w", err)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			Type:     ToolTypeFunction,
			Function: FunctionCall{Name: tc.Function.Name, Arguments: string(args)},
		})
	}
	return resp, nil
}

func (p *OllamaGenerator) do(ctx context.Context, oReq ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ollamaStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("failed to decode ollama response: %w", err)
	}
	return &oResp, nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed converts a text string into a vector.
func (p *OllamaGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama api returned status: %d", resp.StatusCode)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	vec := make([]float32, len(embResp.Embedding))
	for i, v := range embResp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func toOllamaMessage(m Message) ollamaMessage {
	out := ollamaMessage{Role: m.Role, Content: m.Content}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, ollamaToolCall{
			Function: ollamaFunctionCall{Name: tc.Function.Name, Arguments: args},
		})
	}
	return out
}

var (
	_ Generator = (*OllamaGenerator)(nil)
	_ Embedder  = (*OllamaGenerator)(nil)
)
