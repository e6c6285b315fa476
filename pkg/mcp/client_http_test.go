package mcp

import (
	"context"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func newTestServer(name string) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(name, "1.0.0")
	server.AddTool(mcpgo.NewTool("ping"), func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "ok"}},
		}, nil
	})
	server.AddTool(mcpgo.NewTool("echo",
		mcpgo.WithDescription("Echo the given text."),
		mcpgo.WithString("text", mcpgo.Required(), mcpgo.Description("text to echo")),
	), func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		text, _ := req.GetArguments()["text"].(string)
		return mcpgo.NewToolResultText("echo: " + text), nil
	})
	return server
}

func TestClient_StreamableHTTP_ListTools(t *testing.T) {
	httpServer := mcpserver.NewTestStreamableHTTPServer(newTestServer("test-http"))
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTP(context.Background(), httpServer.URL)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTP error: %v", err)
	}
	defer client.Close()

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools error: %v", err)
	}
	if len(tools) != 2 || tools[0].Name != "echo" || tools[1].Name != "ping" {
		t.Fatalf("Expected tools [echo ping], got %+v", tools)
	}
}

func TestNamespace_StreamableHTTP_Run(t *testing.T) {
	httpServer := mcpserver.NewTestStreamableHTTPServer(newTestServer("test-http"))
	defer httpServer.Close()

	ctx := context.Background()
	client, err := NewClientWithStreamableHTTP(ctx, httpServer.URL)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTP error: %v", err)
	}
	defer client.Close()

	ns, err := NewNamespace(ctx, "remote", client, 0)
	if err != nil {
		t.Fatalf("NewNamespace error: %v", err)
	}
	if len(ns.Actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(ns.Actions))
	}

	echo := ns.Actions[0]
	if echo.Name() != "echo" {
		t.Fatalf("Expected echo first, got %s", echo.Name())
	}
	out, err := echo.Run(ctx, nil, nil, "hello")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if out != "echo: hello" {
		t.Fatalf("Expected 'echo: hello', got %q", out)
	}
}
