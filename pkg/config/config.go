// Package config loads nerve settings from defaults, a YAML file, NERVE_*
// environment variables and command line overrides, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/mcp"
	"github.com/jllopis/nerve/pkg/telemetry"
)

// EnvPrefix is the prefix of environment overrides. The first underscore
// after the prefix separates the section from the key, so
// NERVE_AGENT_MAX_HISTORY sets agent.max_history.
const EnvPrefix = "NERVE_"

type Config struct {
	Log       LogConfig                   `koanf:"log"`
	Generator llm.Config                  `koanf:"generator"`
	Embedder  llm.Config                  `koanf:"embedder"`
	Agent     AgentConfig                 `koanf:"agent"`
	Telemetry telemetry.Config            `koanf:"telemetry"`
	RunStore  RunStoreConfig              `koanf:"runstore"`
	MCP       map[string]mcp.ServerConfig `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type AgentConfig struct {
	// MaxIterations bounds the steps of a run. Zero means unlimited.
	MaxIterations int `koanf:"max_iterations"`
	// MaxHistory bounds the executions sent back to the model. Zero sends all.
	MaxHistory    int    `koanf:"max_history"`
	NativeTools   string `koanf:"native_tools"` // auto, on, off
	RetryAttempts int    `koanf:"retry_attempts"`
}

type RunStoreConfig struct {
	// Path of the SQLite database. Empty disables the run store.
	Path string `koanf:"path"`
}

var defaults = map[string]any{
	"log.level":               "info",
	"log.format":              "text",
	"generator.provider":      "ollama",
	"generator.host":          "localhost",
	"generator.port":          11434,
	"generator.model":         "qwen2.5-coder:7b-instruct-q5_K_M",
	"embedder.provider":       "ollama",
	"embedder.host":           "localhost",
	"embedder.port":           11434,
	"embedder.model":          "nomic-embed-text",
	"agent.max_iterations":    0,
	"agent.max_history":       50,
	"agent.native_tools":      "auto",
	"agent.retry_attempts":    3,
	"telemetry.exporter":      "none",
	"telemetry.otlp_endpoint": "localhost:4317",
	"telemetry.otlp_insecure": true,
}

// Load reads path, which may be empty, and the environment.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithProfile loads path and then the profile file next to it
// (config.dev.yaml for config.yaml and profile dev) when it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	return load(path, profile, nil)
}

// LoadWithOverrides is Load with dotted key overrides applied last.
func LoadWithOverrides(path string, overrides map[string]any) (*Config, error) {
	return load(path, "", overrides)
}

// LoadWithCLI understands --config, --profile (alias --env) and repeated
// --set key=value arguments, in both "--flag value" and "--flag=value" forms.
func LoadWithCLI(args []string) (*Config, error) {
	opts, overrides, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(opts.path, opts.profile, overrides)
}

func load(path, profile string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		if p := profileConfigPath(path, profile); p != "" {
			if err := k.Load(file.Provider(p), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load profile %s: %w", p, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values koanf cannot type check.
func (c *Config) Validate() error {
	switch c.Agent.NativeTools {
	case "", "auto", "on", "off":
	default:
		return fmt.Errorf("agent.native_tools must be auto, on or off, got '%s'", c.Agent.NativeTools)
	}
	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must be >= 0, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxHistory < 0 {
		return fmt.Errorf("agent.max_history must be >= 0, got %d", c.Agent.MaxHistory)
	}
	for name, srv := range c.MCP {
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("mcp.%s: %w", name, err)
		}
	}
	return nil
}

// envKey maps NERVE_SECTION_SOME_KEY to section.some_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return section
	}
	return section + "." + key
}

// profileConfigPath returns the profile variant of base when it exists.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	ext := filepath.Ext(base)
	candidate := strings.TrimSuffix(base, ext) + "." + profile + ext
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

type cliOptions struct {
	path    string
	profile string
}

func parseCLIOverrides(args []string) (cliOptions, map[string]any, error) {
	var opts cliOptions
	overrides := map[string]any{}

	for i := 0; i < len(args); i++ {
		name, value, hasValue := strings.Cut(args[i], "=")
		switch name {
		case "--config", "--profile", "--env", "--set":
		default:
			continue
		}
		if !hasValue {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("%s requires a value", name)
			}
			i++
			value = args[i]
		}

		switch name {
		case "--config":
			opts.path = value
		case "--profile", "--env":
			opts.profile = value
		case "--set":
			key, raw, ok := strings.Cut(value, "=")
			if !ok || key == "" {
				return opts, nil, fmt.Errorf("invalid --set value '%s', expected key=value", value)
			}
			overrides[key] = parseValue(raw)
		}
	}
	return opts, overrides, nil
}

// parseValue decodes JSON objects and arrays; anything else stays a string
// and is converted when unmarshalled.
func parseValue(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return raw
}
