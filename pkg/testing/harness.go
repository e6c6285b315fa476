// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"context"
	"testing"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/rag"
)

// Task is a static agent.Task.
type Task struct {
	System     string
	Prompt     string
	Using      []string
	Funcs      []*agent.Namespace
	RAG        *rag.Config
	Guidelines []string
}

func (t *Task) SystemPrompt() (string, error) { return t.System, nil }
func (t *Task) ToPrompt() (string, error)     { return t.Prompt, nil }
func (t *Task) Namespaces() []string          { return t.Using }
func (t *Task) Functions() []*agent.Namespace { return t.Funcs }
func (t *Task) RAGConfig() *rag.Config        { return t.RAG }
func (t *Task) Guidance() ([]string, error)   { return t.Guidelines, nil }

// RegistryOf registers every namespace under its own name. The same instance
// is returned on every build.
func RegistryOf(t *testing.T, namespaces ...*agent.Namespace) *agent.Registry {
	t.Helper()
	r := agent.NewRegistry()
	for _, ns := range namespaces {
		ns := ns
		if err := r.Register(ns.Name, func() *agent.Namespace { return ns }); err != nil {
			t.Fatalf("register %s: %v", ns.Name, err)
		}
	}
	return r
}

// Harness runs single actions against a real State.
type Harness struct {
	t      *testing.T
	State  *agent.SharedState
	Events *events.Receiver
}

// HarnessOption configures NewHarness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	task     *Task
	registry *agent.Registry
	state    []agent.StateOption
	embedder llm.Embedder
}

// WithTask replaces the default task, which uses every given namespace.
func WithTask(task *Task) HarnessOption {
	return func(c *harnessConfig) { c.task = task }
}

// WithRegistry replaces the registry built from the given namespaces.
func WithRegistry(r *agent.Registry) HarnessOption {
	return func(c *harnessConfig) { c.registry = r }
}

// WithVariables defines task variables.
func WithVariables(vars map[string]string) HarnessOption {
	return func(c *harnessConfig) { c.state = append(c.state, agent.WithVariables(vars)) }
}

// WithStateOptions forwards options to agent.NewState.
func WithStateOptions(opts ...agent.StateOption) HarnessOption {
	return func(c *harnessConfig) { c.state = append(c.state, opts...) }
}

// WithEmbedder replaces the default hash embedder.
func WithEmbedder(e llm.Embedder) HarnessOption {
	return func(c *harnessConfig) { c.embedder = e }
}

// NewHarness builds a state whose task uses namespaces. Events emitted while
// building the state are discarded.
func NewHarness(t *testing.T, namespaces []*agent.Namespace, opts ...HarnessOption) *Harness {
	t.Helper()

	names := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		names = append(names, ns.Name)
	}
	cfg := harnessConfig{
		task:     &Task{Prompt: "test task", Using: names},
		embedder: llm.NewHashEmbedder(0),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = RegistryOf(t, namespaces...)
	}

	tx, rx := events.New(0)
	s, err := agent.NewState(context.Background(), cfg.registry, tx, cfg.task, cfg.embedder, 0, cfg.state...)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	t.Cleanup(rx.Close)
	rx.Drain()

	return &Harness{t: t, State: agent.NewSharedState(s), Events: rx}
}

// Invoke dispatches one invocation and returns the execution it recorded.
func (h *Harness) Invoke(action string, attrs map[string]string, payload string) (agent.DispatchStatus, agent.Execution) {
	h.t.Helper()
	return h.InvokeContext(context.Background(), action, attrs, payload)
}

// InvokeContext is Invoke with a caller supplied context.
func (h *Harness) InvokeContext(ctx context.Context, action string, attrs map[string]string, payload string) (agent.DispatchStatus, agent.Execution) {
	h.t.Helper()
	status, err := agent.Dispatch(ctx, h.State, agent.Invocation{Action: action, Attributes: attrs, Payload: payload})
	if err != nil {
		h.t.Fatalf("dispatch %s: %v", action, err)
	}
	var exec agent.Execution
	_ = h.State.With(func(s *agent.State) error {
		hist := s.History()
		if len(hist) == 0 {
			h.t.Fatalf("dispatch %s recorded nothing", action)
		}
		exec = hist[len(hist)-1]
		return nil
	})
	return status, exec
}

// Storage returns a snapshot of the named storage entries.
func (h *Harness) Storage(name string) []agent.Entry {
	h.t.Helper()
	var entries []agent.Entry
	err := h.State.With(func(s *agent.State) error {
		st, err := s.Storage(name)
		if err != nil {
			return err
		}
		entries = st.Entries()
		return nil
	})
	if err != nil {
		h.t.Fatalf("storage %s: %v", name, err)
	}
	return entries
}

// Complete reports whether the task was marked complete.
func (h *Harness) Complete() bool {
	var done bool
	_ = h.State.With(func(s *agent.State) error {
		done = s.IsComplete()
		return nil
	})
	return done
}
