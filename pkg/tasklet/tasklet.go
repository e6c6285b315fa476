// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

// Package tasklet loads task definitions from YAML files.
//
// A tasklet sets the prompts, the namespaces to use and optionally defines
// its own actions, each backed by an external command:
//
//	using: [memory, task]
//	system_prompt: You are a network administrator.
//	prompt: find the open ports of $TARGET
//	functions:
//	  - name: Scanner
//	    description: Use this action to scan a host.
//	    actions:
//	      - name: scan
//	        description: Scan the given ports.
//	        args:
//	          ports: 22,80,443
//	        example_payload: 127.0.0.1
//	        timeout: 2m
//	        tool: nmap -p {ports} {payload}
package tasklet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/mcp"
	"github.com/jllopis/nerve/pkg/rag"
)

// candidate file names when a folder is given
var fileNames = []string{"task.yml", "task.yaml"}

var variablePattern = regexp.MustCompile(`\$(\{[A-Za-z_][A-Za-z0-9_]*\}|[A-Za-z_][A-Za-z0-9_]*)`)

// ActionSpec is one tasklet defined action.
type ActionSpec struct {
	Name           string            `yaml:"name"`
	Description    string            `yaml:"description"`
	Args           map[string]string `yaml:"args"`
	ExamplePayload string            `yaml:"example_payload"`
	Timeout        time.Duration     `yaml:"timeout"`
	Tool           string            `yaml:"tool"`
}

// FunctionGroup is a tasklet defined namespace.
type FunctionGroup struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Actions     []ActionSpec `yaml:"actions"`
}

// Tasklet is a task loaded from YAML. It implements agent.Task.
type Tasklet struct {
	Name   string `yaml:"-"`
	Folder string `yaml:"-"`

	System     string                      `yaml:"system_prompt"`
	Prompt     string                      `yaml:"prompt"`
	Guidelines []string                    `yaml:"guidance"`
	Using      []string                    `yaml:"using"`
	RAG        *rag.Config                 `yaml:"rag"`
	Groups     []FunctionGroup             `yaml:"functions"`
	MCP        map[string]mcp.ServerConfig `yaml:"mcp"`

	variables map[string]string
	attached  []*agent.Namespace
}

// Load reads a tasklet from a YAML file or from a folder holding task.yml.
func Load(path string) (*Tasklet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	file := path
	if info.IsDir() {
		file = ""
		for _, name := range fileNames {
			candidate := filepath.Join(path, name)
			if _, err := os.Stat(candidate); err == nil {
				file = candidate
				break
			}
		}
		if file == "" {
			return nil, fmt.Errorf("no task.yml found in %s", path)
		}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}

	t.Folder = filepath.Dir(file)
	if info.IsDir() {
		t.Name = filepath.Base(filepath.Clean(path))
	} else {
		t.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	if t.RAG != nil && t.RAG.SourcePath != "" && !filepath.IsAbs(t.RAG.SourcePath) {
		t.RAG.SourcePath = filepath.Join(t.Folder, t.RAG.SourcePath)
	}
	if t.RAG != nil && t.RAG.DataPath != "" && !filepath.IsAbs(t.RAG.DataPath) {
		t.RAG.DataPath = filepath.Join(t.Folder, t.RAG.DataPath)
	}
	return t, nil
}

// Parse decodes and validates a tasklet document.
func Parse(data []byte) (*Tasklet, error) {
	var t Tasklet
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tasklet) validate() error {
	seen := map[string]bool{}
	for _, g := range t.Groups {
		if strings.TrimSpace(g.Name) == "" {
			return errors.New("function group name is required")
		}
		for _, a := range g.Actions {
			if strings.TrimSpace(a.Name) == "" {
				return fmt.Errorf("action name is required in group %s", g.Name)
			}
			if seen[a.Name] {
				return fmt.Errorf("action %s defined more than once", a.Name)
			}
			seen[a.Name] = true
			if len(strings.Fields(a.Tool)) == 0 {
				return fmt.Errorf("action %s has no tool", a.Name)
			}
			if a.Timeout < 0 {
				return fmt.Errorf("action %s has a negative timeout", a.Name)
			}
		}
	}
	for name, srv := range t.MCP {
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("mcp server %s: %w", name, err)
		}
	}
	return nil
}

// Define sets variables for prompt interpolation and tool arguments.
func (t *Tasklet) Define(vars map[string]string) {
	if t.variables == nil {
		t.variables = make(map[string]string, len(vars))
	}
	for k, v := range vars {
		t.variables[k] = v
	}
}

// Variables returns the defined variables.
func (t *Tasklet) Variables() map[string]string {
	out := make(map[string]string, len(t.variables))
	for k, v := range t.variables {
		out[k] = v
	}
	return out
}

// SetPrompt overrides the prompt of the file.
func (t *Tasklet) SetPrompt(prompt string) {
	t.Prompt = prompt
}

// Attach adds namespaces built elsewhere, such as MCP servers, to Functions.
func (t *Tasklet) Attach(ns ...*agent.Namespace) {
	t.attached = append(t.attached, ns...)
}

// SystemPrompt implements agent.Task.
func (t *Tasklet) SystemPrompt() (string, error) {
	return t.interpolate(t.System)
}

// ToPrompt implements agent.Task.
func (t *Tasklet) ToPrompt() (string, error) {
	if strings.TrimSpace(t.Prompt) == "" {
		return "", fmt.Errorf("tasklet %s has no prompt", t.Name)
	}
	return t.interpolate(t.Prompt)
}

// Guidance implements agent.Task.
func (t *Tasklet) Guidance() ([]string, error) {
	out := make([]string, 0, len(t.Guidelines))
	for _, g := range t.Guidelines {
		s, err := t.interpolate(g)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Namespaces implements agent.Task.
func (t *Tasklet) Namespaces() []string { return t.Using }

// RAGConfig implements agent.Task.
func (t *Tasklet) RAGConfig() *rag.Config { return t.RAG }

// Functions implements agent.Task.
func (t *Tasklet) Functions() []*agent.Namespace {
	out := make([]*agent.Namespace, 0, len(t.Groups)+len(t.attached))
	for _, g := range t.Groups {
		ns := &agent.Namespace{
			Name:        g.Name,
			Description: g.Description,
		}
		for _, spec := range g.Actions {
			ns.Actions = append(ns.Actions, newToolAction(spec, t.Folder))
		}
		out = append(out, ns)
	}
	return append(out, t.attached...)
}

// interpolate replaces $VAR and ${VAR} with defined variables, falling back
// to the environment.
func (t *Tasklet) interpolate(s string) (string, error) {
	var missing []string
	out := variablePattern.ReplaceAllStringFunc(s, func(m string) string {
		name := strings.Trim(m[1:], "{}")
		if v, ok := lookup(t.variables, name); ok {
			return v
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("variable '%s' not defined", missing[0])
	}
	return out, nil
}

func lookup(vars map[string]string, name string) (string, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	return os.LookupEnv(name)
}

// MissingVariables lists the variables referenced by prompts, guidance or
// tools that are neither defined nor set in the environment.
func (t *Tasklet) MissingVariables() []string {
	texts := append([]string{t.System, t.Prompt}, t.Guidelines...)
	for _, g := range t.Groups {
		for _, a := range g.Actions {
			texts = append(texts, a.Tool)
		}
	}

	var missing []string
	seen := map[string]bool{}
	for _, text := range texts {
		for _, name := range referencedVariables(text) {
			if seen[name] {
				continue
			}
			seen[name] = true
			if _, ok := lookup(t.variables, name); !ok {
				missing = append(missing, name)
			}
		}
	}
	return missing
}

// referencedVariables lists the $VARs used by s, in order of appearance.
func referencedVariables(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range variablePattern.FindAllString(s, -1) {
		name := strings.Trim(m[1:], "{}")
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
