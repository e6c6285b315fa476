package agent

import (
	"context"
	"fmt"
	"time"
)

// Action is a single capability the model can invoke.
type Action interface {
	Name() string
	Description() string
	// ExampleAttributes and ExamplePayload are shown to the model. A non-empty
	// value also makes the attribute or payload mandatory on invocation.
	ExampleAttributes() map[string]string
	ExamplePayload() string
	// RequiredVariables must all be defined before Run is called.
	RequiredVariables() []string
	// Timeout bounds a single Run. Zero means no limit.
	Timeout() time.Duration
	// Run executes the action. It must only touch state through state.With.
	Run(ctx context.Context, state *SharedState, attrs map[string]string, payload string) (string, error)
}

// RunFunc is the body of a FuncAction.
type RunFunc func(ctx context.Context, state *SharedState, attrs map[string]string, payload string) (string, error)

// FuncAction is an Action assembled from plain values.
type FuncAction struct {
	ActionName        string
	ActionDescription string
	Attributes        map[string]string
	Payload           string
	Variables         []string
	Deadline          time.Duration
	Fn                RunFunc
}

func (a *FuncAction) Name() string                         { return a.ActionName }
func (a *FuncAction) Description() string                  { return a.ActionDescription }
func (a *FuncAction) ExampleAttributes() map[string]string { return a.Attributes }
func (a *FuncAction) ExamplePayload() string               { return a.Payload }
func (a *FuncAction) RequiredVariables() []string          { return a.Variables }
func (a *FuncAction) Timeout() time.Duration               { return a.Deadline }

// Run implements Action.
func (a *FuncAction) Run(ctx context.Context, state *SharedState, attrs map[string]string, payload string) (string, error) {
	if a.Fn == nil {
		return "", fmt.Errorf("action %s has no implementation", a.ActionName)
	}
	return a.Fn(ctx, state, attrs, payload)
}

// StorageDescriptor declares a storage a namespace needs.
type StorageDescriptor struct {
	Name       string
	Kind       StorageKind
	Predefined map[string]string
}

// Predefine returns a copy of d seeded with entries.
func (d StorageDescriptor) Predefine(entries map[string]string) StorageDescriptor {
	d.Predefined = entries
	return d
}

// Namespace groups related actions and the storages they use.
type Namespace struct {
	Name        string
	Description string
	Actions     []Action
	Storages    []StorageDescriptor
	Default     bool
}

// NamespaceFactory builds a fresh Namespace for one run.
type NamespaceFactory func() *Namespace

// Registry maps namespace names to factories, in registration order.
type Registry struct {
	names     []string
	factories map[string]NamespaceFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]NamespaceFactory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory NamespaceFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("namespace name and factory are required")
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("namespace '%s' already registered", name)
	}
	r.names = append(r.names, name)
	r.factories[name] = factory
	return nil
}

// Factory returns the factory registered under name.
func (r *Registry) Factory(name string) (NamespaceFactory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Build instantiates the namespace registered under name.
func (r *Registry) Build(name string) (*Namespace, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, NamespaceNotFound(name)
	}
	return f(), nil
}

// Defaults instantiates every namespace flagged as default, in registration order.
func (r *Registry) Defaults() []*Namespace {
	var out []*Namespace
	for _, name := range r.names {
		if ns := r.factories[name](); ns.Default {
			out = append(out, ns)
		}
	}
	return out
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
