package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Generator.Provider != "ollama" {
		t.Errorf("expected default provider ollama, got %s", cfg.Generator.Provider)
	}
	if cfg.Generator.Address() != "localhost:11434" {
		t.Errorf("expected default address localhost:11434, got %s", cfg.Generator.Address())
	}
	if cfg.Embedder.Model != "nomic-embed-text" {
		t.Errorf("expected default embedder model, got %s", cfg.Embedder.Model)
	}
	want := AgentConfig{MaxHistory: 50, NativeTools: "auto", RetryAttempts: 3}
	if diff := cmp.Diff(want, cfg.Agent); diff != "" {
		t.Errorf("agent defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Telemetry.Exporter != "none" || cfg.RunStore.Path != "" {
		t.Errorf("unexpected telemetry/runstore defaults: %+v %+v", cfg.Telemetry, cfg.RunStore)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "nerve.yaml", `
log:
  level: debug
generator:
  provider: openai
  model: gpt-4o
agent:
  max_iterations: 25
  native_tools: "off"
runstore:
  path: /tmp/runs.db
mcp:
  search:
    url: http://localhost:8080/mcp
    timeout: 45s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if cfg.Generator.Provider != "openai" || cfg.Generator.Model != "gpt-4o" {
		t.Errorf("unexpected generator %+v", cfg.Generator)
	}
	if cfg.Agent.MaxIterations != 25 || cfg.Agent.NativeTools != "off" || cfg.Agent.MaxHistory != 50 {
		t.Errorf("unexpected agent config %+v", cfg.Agent)
	}
	if cfg.RunStore.Path != "/tmp/runs.db" {
		t.Errorf("unexpected runstore path %s", cfg.RunStore.Path)
	}
	srv, ok := cfg.MCP["search"]
	if !ok || srv.URL != "http://localhost:8080/mcp" || srv.Timeout != 45*time.Second {
		t.Errorf("unexpected mcp servers %+v", cfg.MCP)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("NERVE_GENERATOR_PROVIDER", "anthropic")
	t.Setenv("NERVE_AGENT_MAX_HISTORY", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Generator.Provider != "anthropic" {
		t.Errorf("expected provider anthropic from env, got %s", cfg.Generator.Provider)
	}
	if cfg.Agent.MaxHistory != 7 {
		t.Errorf("expected max history 7 from env, got %d", cfg.Agent.MaxHistory)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	t.Setenv("NERVE_AGENT_MAX_ITERATIONS", "5")

	cfg, err := LoadWithOverrides("", map[string]any{
		"agent.max_iterations": 9,
		"telemetry.exporter":   "stdout",
	})
	if err != nil {
		t.Fatalf("LoadWithOverrides failed: %v", err)
	}
	if cfg.Agent.MaxIterations != 9 {
		t.Errorf("overrides must win over env, got %d", cfg.Agent.MaxIterations)
	}
	if cfg.Telemetry.Exporter != "stdout" {
		t.Errorf("expected stdout exporter, got %s", cfg.Telemetry.Exporter)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		want      string
	}{
		{"native tools", map[string]any{"agent.native_tools": "maybe"}, "agent.native_tools"},
		{"iterations", map[string]any{"agent.max_iterations": -1}, "agent.max_iterations"},
		{"history", map[string]any{"agent.max_history": -2}, "agent.max_history"},
		{"mcp", map[string]any{"mcp.broken": map[string]any{"url": ""}}, "mcp.broken"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadWithOverrides("", tc.overrides)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := writeConfig(t, tmpDir, "config.yaml", `
generator:
  provider: "ollama"
  model: "llama3.1"
log:
  level: "info"
`)
	writeConfig(t, tmpDir, "config.dev.yaml", `
generator:
  provider: "groq"
log:
  level: "debug"
`)
	writeConfig(t, tmpDir, "config.prod.yaml", `
generator:
  provider: "openai"
log:
  level: "warn"
`)

	tests := []struct {
		name         string
		profile      string
		wantProvider string
		wantLogLevel string
		wantModel    string
	}{
		{"no profile - base only", "", "ollama", "info", "llama3.1"},
		{"dev profile", "dev", "groq", "debug", "llama3.1"},
		{"prod profile", "prod", "openai", "warn", "llama3.1"},
		{"nonexistent profile - falls back to base", "staging", "ollama", "info", "llama3.1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}
			if cfg.Generator.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.Generator.Provider, tc.wantProvider)
			}
			if cfg.Log.Level != tc.wantLogLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLogLevel)
			}
			if cfg.Generator.Model != tc.wantModel {
				t.Errorf("model: got %s, want %s", cfg.Generator.Model, tc.wantModel)
			}
		})
	}
}

func TestLoadWithCLI(t *testing.T) {
	tmpDir := t.TempDir()
	basePath := writeConfig(t, tmpDir, "config.yaml", "generator:\n  provider: ollama\n")
	writeConfig(t, tmpDir, "config.dev.yaml", "generator:\n  provider: groq\n")

	tests := []struct {
		name         string
		args         []string
		wantProvider string
	}{
		{"profile flag", []string{"--config", basePath, "--profile", "dev"}, "groq"},
		{"env flag alias", []string{"--config", basePath, "--env", "dev"}, "groq"},
		{"profile with equals", []string{"--config=" + basePath, "--profile=dev"}, "groq"},
		{"set wins", []string{"--config", basePath, "--set", "generator.provider=anthropic"}, "anthropic"},
		{"unrelated flags ignored", []string{"-D", "TARGET=x", "--config", basePath}, "ollama"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithCLI(tc.args)
			if err != nil {
				t.Fatalf("LoadWithCLI failed: %v", err)
			}
			if cfg.Generator.Provider != tc.wantProvider {
				t.Errorf("provider: got %s, want %s", cfg.Generator.Provider, tc.wantProvider)
			}
		})
	}
}

func TestLoadWithCLIJSONValue(t *testing.T) {
	cfg, err := LoadWithCLI([]string{
		"--set", "agent.retry_attempts=1",
		"--set", `mcp.demo={"url":"http://localhost:8080"}`,
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.Agent.RetryAttempts != 1 {
		t.Errorf("expected retry attempts 1, got %d", cfg.Agent.RetryAttempts)
	}
	if cfg.MCP["demo"].URL != "http://localhost:8080" {
		t.Errorf("unexpected mcp servers %+v", cfg.MCP)
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	for _, args := range [][]string{{"--config"}, {"--set"}, {"--set", "invalid"}} {
		if _, _, err := parseCLIOverrides(args); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"NERVE_LOG_LEVEL":          "log.level",
		"NERVE_AGENT_MAX_HISTORY":  "agent.max_history",
		"NERVE_RUNSTORE_PATH":      "runstore.path",
		"NERVE_TELEMETRY_EXPORTER": "telemetry.exporter",
		"NERVE_STANDALONE":         "standalone",
	}
	for in, want := range tests {
		if got := envKey(in); got != want {
			t.Errorf("envKey(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	devPath := writeConfig(t, tmpDir, "config.dev.yaml", "test")
	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{"existing profile", basePath, "dev", devPath},
		{"nonexistent profile", basePath, "prod", ""},
		{"empty profile", basePath, "", ""},
		{"empty base", "", "dev", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := profileConfigPath(tc.base, tc.profile)
			if got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
