package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/nerve/pkg/agent"
)

// ToolSource lists and executes the tools of one server.
type ToolSource interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// NewNamespace exposes every tool of src as an action of a namespace called
// name. timeout bounds each call; zero means no limit beyond the client's.
func NewNamespace(ctx context.Context, name string, src ToolSource, timeout time.Duration) (*agent.Namespace, error) {
	if src == nil {
		return nil, errors.New("tool source is required")
	}
	tools, err := src.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools of %s: %w", name, err)
	}

	ns := &agent.Namespace{
		Name:        name,
		Description: fmt.Sprintf("Tools provided by the %s MCP server.", name),
	}
	for _, tool := range tools {
		a, err := newToolAction(tool, src, timeout)
		if err != nil {
			return nil, err
		}
		ns.Actions = append(ns.Actions, a)
	}
	return ns, nil
}

// toolAction adapts an MCP tool to agent.Action. Required arguments become
// example attributes, except a lone required string argument which is
// carried as the payload.
type toolAction struct {
	tool       mcp.Tool
	schema     mcp.ToolInputSchema
	src        ToolSource
	timeout    time.Duration
	payloadKey string
	attrs      map[string]string
}

func newToolAction(tool mcp.Tool, src ToolSource, timeout time.Duration) (*toolAction, error) {
	if tool.Name == "" {
		return nil, errors.New("mcp tool name is required")
	}
	schema := tool.InputSchema
	if tool.RawInputSchema != nil {
		if err := json.Unmarshal(tool.RawInputSchema, &schema); err != nil {
			return nil, fmt.Errorf("mcp tool %s: invalid input schema: %w", tool.Name, err)
		}
	}

	a := &toolAction{tool: tool, schema: schema, src: src, timeout: timeout}
	required := append([]string(nil), schema.Required...)
	sort.Strings(required)
	if len(required) == 1 && propertyType(schema, required[0]) == "string" {
		a.payloadKey = required[0]
		return a, nil
	}
	if len(required) > 0 {
		a.attrs = make(map[string]string, len(required))
		for _, key := range required {
			a.attrs[key] = exampleValue(schema, key)
		}
	}
	return a, nil
}

func (a *toolAction) Name() string                         { return a.tool.Name }
func (a *toolAction) Description() string                  { return a.tool.Description }
func (a *toolAction) ExampleAttributes() map[string]string { return a.attrs }
func (a *toolAction) RequiredVariables() []string          { return nil }
func (a *toolAction) Timeout() time.Duration               { return a.timeout }

func (a *toolAction) ExamplePayload() string {
	if a.payloadKey == "" {
		return ""
	}
	return exampleValue(a.schema, a.payloadKey)
}

// Run implements agent.Action.
func (a *toolAction) Run(ctx context.Context, _ *agent.SharedState, attrs map[string]string, payload string) (string, error) {
	args, err := a.arguments(attrs, payload)
	if err != nil {
		return "", err
	}
	if err := validateRequiredArgs(a.schema, args); err != nil {
		return "", err
	}
	result, err := a.src.CallTool(ctx, a.tool.Name, args)
	if err != nil {
		return "", err
	}
	return toolResultToOutput(result)
}

// arguments converts the string values of an invocation into the JSON types
// declared by the schema.
func (a *toolAction) arguments(attrs map[string]string, payload string) (map[string]any, error) {
	args := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		args[k] = coerce(propertyType(a.schema, k), v)
	}

	payload = strings.TrimSpace(payload)
	switch {
	case payload == "":
	case a.payloadKey != "":
		args[a.payloadKey] = payload
	case strings.HasPrefix(payload, "{"):
		var decoded map[string]any
		if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
			return nil, fmt.Errorf("mcp tool args: invalid JSON: %w", err)
		}
		for k, v := range decoded {
			if _, ok := args[k]; !ok {
				args[k] = v
			}
		}
	default:
		args["input"] = payload
	}
	return args, nil
}

func propertyType(schema mcp.ToolInputSchema, name string) string {
	prop, ok := schema.Properties[name].(map[string]any)
	if !ok {
		return ""
	}
	t, _ := prop["type"].(string)
	return t
}

func exampleValue(schema mcp.ToolInputSchema, name string) string {
	if prop, ok := schema.Properties[name].(map[string]any); ok {
		if desc, _ := prop["description"].(string); desc != "" {
			return desc
		}
		if t, _ := prop["type"].(string); t != "" {
			return "a " + t
		}
	}
	return "value"
}

func coerce(typ, value string) any {
	switch typ {
	case "integer", "number", "boolean", "array", "object":
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			return decoded
		}
	}
	return value
}

func validateRequiredArgs(schema mcp.ToolInputSchema, args map[string]any) error {
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return fmt.Errorf("mcp tool args: missing required field %q", key)
		}
	}
	return nil
}

func toolResultToOutput(result *mcp.CallToolResult) (string, error) {
	if result == nil {
		return "", errors.New("mcp tool result is nil")
	}

	if result.IsError {
		return "", fmt.Errorf("mcp tool returned error: %s", extractTextContent(result.Content))
	}

	if result.StructuredContent != nil {
		raw, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return "", fmt.Errorf("mcp tool result: %w", err)
		}
		return string(raw), nil
	}

	return extractTextContent(result.Content), nil
}

func extractTextContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
