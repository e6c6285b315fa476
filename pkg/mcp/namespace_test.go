package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

type stubSource struct {
	tools    []mcpgo.Tool
	listErr  error
	result   *mcpgo.CallToolResult
	callErr  error
	lastName string
	lastArgs map[string]any
}

func (s *stubSource) ListTools(context.Context) ([]mcpgo.Tool, error) {
	return s.tools, s.listErr
}

func (s *stubSource) CallTool(_ context.Context, name string, args map[string]any) (*mcpgo.CallToolResult, error) {
	s.lastName = name
	s.lastArgs = args
	return s.result, s.callErr
}

func TestNewNamespace_Examples(t *testing.T) {
	src := &stubSource{tools: []mcpgo.Tool{
		mcpgo.NewTool("fetch",
			mcpgo.WithDescription("Fetch a URL."),
			mcpgo.WithString("url", mcpgo.Required(), mcpgo.Description("the URL to fetch")),
		),
		mcpgo.NewTool("resize",
			mcpgo.WithNumber("width", mcpgo.Required()),
			mcpgo.WithNumber("height", mcpgo.Required(), mcpgo.Description("pixels")),
		),
		mcpgo.NewTool("status"),
	}}

	ns, err := NewNamespace(context.Background(), "tools", src, 0)
	if err != nil {
		t.Fatalf("NewNamespace error: %v", err)
	}
	if ns.Name != "tools" || len(ns.Actions) != 3 {
		t.Fatalf("unexpected namespace %+v", ns)
	}

	fetch, resize, status := ns.Actions[0], ns.Actions[1], ns.Actions[2]
	if fetch.ExamplePayload() != "the URL to fetch" || fetch.ExampleAttributes() != nil {
		t.Fatalf("fetch examples = %q %v", fetch.ExamplePayload(), fetch.ExampleAttributes())
	}
	wantAttrs := map[string]string{"width": "a number", "height": "pixels"}
	if diff := cmp.Diff(wantAttrs, resize.ExampleAttributes()); diff != "" {
		t.Fatalf("resize attributes mismatch (-want +got):\n%s", diff)
	}
	if resize.ExamplePayload() != "" {
		t.Fatalf("resize payload example = %q", resize.ExamplePayload())
	}
	if status.ExamplePayload() != "" || status.ExampleAttributes() != nil {
		t.Fatalf("status should take no arguments")
	}
}

func TestToolAction_Run(t *testing.T) {
	src := &stubSource{
		tools: []mcpgo.Tool{mcpgo.NewTool("resize",
			mcpgo.WithNumber("width", mcpgo.Required()),
			mcpgo.WithBoolean("keep", mcpgo.Required()),
			mcpgo.WithString("label"),
		)},
		result: mcpgo.NewToolResultText("resized"),
	}
	ns, err := NewNamespace(context.Background(), "img", src, 0)
	if err != nil {
		t.Fatalf("NewNamespace error: %v", err)
	}

	out, err := ns.Actions[0].Run(context.Background(), nil,
		map[string]string{"width": "640", "keep": "true"}, `{"label":"thumb","width":1}`)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if out != "resized" {
		t.Fatalf("Run output = %q", out)
	}
	want := map[string]any{"width": float64(640), "keep": true, "label": "thumb"}
	if diff := cmp.Diff(want, src.lastArgs); diff != "" {
		t.Fatalf("arguments mismatch (-want +got):\n%s", diff)
	}
}

func TestToolAction_RunErrors(t *testing.T) {
	tool := mcpgo.NewTool("resize", mcpgo.WithNumber("width", mcpgo.Required()), mcpgo.WithNumber("height", mcpgo.Required()))

	tests := []struct {
		name    string
		src     *stubSource
		attrs   map[string]string
		payload string
		want    string
	}{
		{
			name:  "missing required",
			src:   &stubSource{},
			attrs: map[string]string{"width": "1"},
			want:  `missing required field "height"`,
		},
		{
			name:    "invalid json payload",
			src:     &stubSource{},
			payload: "{nope",
			want:    "invalid JSON",
		},
		{
			name:  "tool error result",
			src:   &stubSource{result: mcpgo.NewToolResultError("too big")},
			attrs: map[string]string{"width": "1", "height": "2"},
			want:  "mcp tool returned error: too big",
		},
		{
			name:  "call error",
			src:   &stubSource{callErr: errors.New("connection reset")},
			attrs: map[string]string{"width": "1", "height": "2"},
			want:  "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.src.tools = []mcpgo.Tool{tool}
			ns, err := NewNamespace(context.Background(), "img", tt.src, 0)
			if err != nil {
				t.Fatalf("NewNamespace error: %v", err)
			}
			_, err = ns.Actions[0].Run(context.Background(), nil, tt.attrs, tt.payload)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestToolResultStructured(t *testing.T) {
	out, err := toolResultToOutput(&mcpgo.CallToolResult{StructuredContent: map[string]any{"ok": true}})
	if err != nil {
		t.Fatalf("toolResultToOutput error: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("structured output = %q", out)
	}
}

func TestNewNamespace_ListError(t *testing.T) {
	_, err := NewNamespace(context.Background(), "broken", &stubSource{listErr: errors.New("boom")}, 0)
	if err == nil || !strings.Contains(err.Error(), "list tools of broken") {
		t.Fatalf("expected list error, got %v", err)
	}
}
