package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/config"
	nerveerrors "github.com/jllopis/nerve/pkg/errors"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/mcp"
	"github.com/jllopis/nerve/pkg/runstore"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCfg  []string
		wantPath string
		wantJSON bool
		wantRest []string
		wantErr  bool
	}{
		{
			name:     "config and set",
			args:     []string{"--config", "nerve.yaml", "--set=agent.max_history=3", "run", "task"},
			wantCfg:  []string{"--config", "nerve.yaml", "--set", "agent.max_history=3"},
			wantPath: "nerve.yaml",
			wantRest: []string{"run", "task"},
		},
		{
			name:     "json and profile",
			args:     []string{"--json", "--profile=dev", "runs"},
			wantCfg:  []string{"--profile", "dev"},
			wantJSON: true,
			wantRest: []string{"runs"},
		},
		{
			name:     "double dash",
			args:     []string{"--", "--weird"},
			wantRest: []string{"--weird"},
		},
		{name: "missing value", args: []string{"--config"}, wantErr: true},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, rest, err := parseGlobalFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseGlobalFlags error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.wantCfg, flags.ConfigArgs); diff != "" {
				t.Errorf("config args mismatch (-want +got):\n%s", diff)
			}
			if flags.ConfigPath != tt.wantPath || flags.JSON != tt.wantJSON {
				t.Errorf("unexpected flags %+v", flags)
			}
			if diff := cmp.Diff(tt.wantRest, rest); diff != "" {
				t.Errorf("rest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRunFlags(t *testing.T) {
	cfg := &config.Config{Agent: config.AgentConfig{MaxIterations: 10, MaxHistory: 50, NativeTools: "auto"}}

	opts, err := parseRunFlags(cfg, []string{"tasks/portscan", "-D", "TARGET=10.0.0.1", "-D", "PORTS=22,80", "--native-tools", "off", "--timeout", "5m"})
	if err != nil {
		t.Fatalf("parseRunFlags error: %v", err)
	}
	if opts.tasklet != "tasks/portscan" {
		t.Errorf("tasklet = %s", opts.tasklet)
	}
	if diff := cmp.Diff(map[string]string{"TARGET": "10.0.0.1", "PORTS": "22,80"}, opts.defines); diff != "" {
		t.Errorf("defines mismatch (-want +got):\n%s", diff)
	}
	if opts.maxIterations != 10 || opts.maxHistory != 50 || opts.nativeTools != "off" || opts.timeout != 5*time.Minute {
		t.Errorf("unexpected options %+v", opts)
	}

	opts, err = parseRunFlags(cfg, []string{"--max-iterations", "3", "task.yml"})
	if err != nil {
		t.Fatalf("parseRunFlags error: %v", err)
	}
	if opts.tasklet != "task.yml" || opts.maxIterations != 3 {
		t.Errorf("unexpected options %+v", opts)
	}

	if _, err := parseRunFlags(cfg, nil); err == nil {
		t.Error("expected error without a tasklet")
	}
	if _, err := parseRunFlags(cfg, []string{"t", "-D", "novalue"}); err == nil {
		t.Error("expected error for invalid definition")
	}
}

func TestGeneratorConfig(t *testing.T) {
	base := llm.Config{Provider: "ollama", Model: "llama3", APIKey: "secret", ContextWindow: 8192}

	got, err := generatorConfig(base, "")
	if err != nil || got != base {
		t.Fatalf("empty override = %+v, %v", got, err)
	}

	got, err = generatorConfig(base, "openai://gpt-4o")
	if err != nil {
		t.Fatalf("generatorConfig error: %v", err)
	}
	want := llm.Config{Provider: "openai", Model: "gpt-4o", APIKey: "secret", ContextWindow: 8192}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	if _, err := generatorConfig(base, "nonsense"); err == nil {
		t.Error("expected error for invalid generator string")
	}
}

func TestMergeServers(t *testing.T) {
	global := map[string]mcp.ServerConfig{
		"search": {URL: "http://global/mcp"},
		"files":  {Command: "mcp-files"},
	}
	local := map[string]mcp.ServerConfig{"search": {URL: "http://local/mcp"}}

	got := mergeServers(global, local)
	want := map[string]mcp.ServerConfig{
		"search": {URL: "http://local/mcp"},
		"files":  {Command: "mcp-files"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("servers mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintRecords(t *testing.T) {
	ctx := context.Background()
	store, err := runstore.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	inv := agent.Invocation{Action: "save-memory", Attributes: map[string]string{"key": "port"}, Payload: "8080"}
	if err := store.Record(ctx, "run-1", 1, agent.NewSuccessExecution(inv, "memory saved")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := store.Record(ctx, "run-1", 2, agent.NewUnparsedExecution("hmm", "no valid action found")); err != nil {
		t.Fatalf("record: %v", err)
	}
	records, err := store.List(ctx, runstore.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var buf bytes.Buffer
	printRecords(&buf, records, false)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "save-memory") || !strings.Contains(lines[1], "memory saved") {
		t.Errorf("unexpected row %q", lines[1])
	}
	if !strings.Contains(lines[2], "unparsed") || !strings.Contains(lines[2], "no valid action found") {
		t.Errorf("unexpected row %q", lines[2])
	}

	buf.Reset()
	printRecords(&buf, records, true)
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Errorf("expected 2 JSON lines, got %d", got)
	}
}

func TestRunNamespaces(t *testing.T) {
	var buf bytes.Buffer
	if err := runNamespaces(globalFlags{}, nil, &buf); err != nil {
		t.Fatalf("runNamespaces error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"NAMESPACE", "save-memory", "task-complete", "http-request", "search"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if err := runNamespaces(globalFlags{}, []string{"extra"}, &buf); err == nil {
		t.Error("expected error for unexpected args")
	}
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	p.handle(events.ActionExecuted("shell", "EXIT CODE: 0", "", time.Second))
	p.handle(events.ActionExecuted("read-file", "", "no such file", 0))
	p.handle(events.TaskComplete(true, "host is down"))

	out := buf.String()
	for _, want := range []string{`msg="action executed"`, "action=shell", `msg="action failed"`, `msg="task impossible"`, `reason="host is down"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if !p.impossible || p.reason != "host is down" {
		t.Errorf("printer did not record completion: %+v", p)
	}
}

func TestAsCLIError(t *testing.T) {
	budget := nerveerrors.Newf(nerveerrors.CodeBudgetExhausted, "maximum number of steps reached")
	cliErr := asCLIError(budget)
	if cliErr.Code != nerveerrors.CodeBudgetExhausted || !strings.Contains(cliErr.Hint, "max_iterations") {
		t.Errorf("unexpected cli error %+v", cliErr)
	}

	existing := NewMissingVariablesError([]string{"TARGET"})
	if asCLIError(existing) != existing {
		t.Error("existing CLI errors must be returned as is")
	}

	plain := asCLIError(errors.New("boom"))
	if plain.Code != nerveerrors.CodeInternal || plain.Message != "boom" {
		t.Errorf("unexpected cli error %+v", plain)
	}

	var buf bytes.Buffer
	existing.Print(&buf, false)
	if !strings.Contains(buf.String(), "undefined variables: TARGET") || !strings.Contains(buf.String(), "Hint: define them") {
		t.Errorf("unexpected text output %q", buf.String())
	}
	buf.Reset()
	existing.Print(&buf, true)
	if !strings.Contains(buf.String(), `"code":"MISSING_VARIABLE"`) {
		t.Errorf("unexpected json output %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer value", 8, "a lon..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}
