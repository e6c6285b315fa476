package mcp

import (
	"errors"
	"sort"
	"time"
)

// ServerConfig describes how to reach one MCP server. Exactly one of Command
// or URL must be set.
type ServerConfig struct {
	Command string            `yaml:"command" koanf:"command"`
	Args    []string          `yaml:"args" koanf:"args"`
	Env     map[string]string `yaml:"env" koanf:"env"`
	URL     string            `yaml:"url" koanf:"url"`
	// Timeout bounds each tool call. Zero uses the client default.
	Timeout time.Duration `yaml:"timeout" koanf:"timeout"`
}

// Validate checks that the transport is unambiguous.
func (c ServerConfig) Validate() error {
	switch {
	case c.Command == "" && c.URL == "":
		return errors.New("either command or url is required")
	case c.Command != "" && c.URL != "":
		return errors.New("command and url are mutually exclusive")
	}
	return nil
}

// environ renders Env as sorted KEY=VALUE entries.
func (c ServerConfig) environ() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.Env[k])
	}
	return out
}
