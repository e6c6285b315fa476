package agent

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/rag"
)

// State is the execution context of one run. It is not safe for concurrent
// use; share it through SharedState.
type State struct {
	task       Task
	storages   map[string]*Storage
	namespaces []*Namespace
	history    History
	rag        *rag.Engine
	complete   bool
	events     *events.Sender
	variables  map[string]string

	// Metrics is mutated by OnStep and by the dispatcher.
	Metrics Metrics
}

type stateOptions struct {
	variables map[string]string
	logger    *slog.Logger
	ragOpts   []rag.Option
}

// StateOption configures NewState.
type StateOption func(*stateOptions)

// WithVariables defines task variables such as HTTP_TARGET.
func WithVariables(vars map[string]string) StateOption {
	return func(o *stateOptions) {
		if o.variables == nil {
			o.variables = make(map[string]string, len(vars))
		}
		for k, v := range vars {
			o.variables[k] = v
		}
	}
}

// WithStateLogger sets the logger used while building state.
func WithStateLogger(logger *slog.Logger) StateOption {
	return func(o *stateOptions) { o.logger = logger }
}

// WithRAGOptions forwards options to the retrieval engine.
func WithRAGOptions(opts ...rag.Option) StateOption {
	return func(o *stateOptions) { o.ragOpts = append(o.ragOpts, opts...) }
}

// NewState resolves the namespaces requested by task, prepares retrieval and
// creates the declared storages.
func NewState(ctx context.Context, registry *Registry, sender *events.Sender, task Task, embedder llm.Embedder, maxSteps int, opts ...StateOption) (*State, error) {
	o := stateOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var namespaces []*Namespace
	if using := task.Namespaces(); using != nil {
		names := make([]string, 0, len(using))
		wildcard := false
		for _, name := range using {
			if name == "*" && !wildcard {
				wildcard = true
				continue
			}
			names = append(names, name)
		}
		if wildcard {
			namespaces = append(namespaces, registry.Defaults()...)
		}
		for _, name := range names {
			ns, err := registry.Build(name)
			if err != nil {
				return nil, err
			}
			namespaces = append(namespaces, ns)
		}
	} else {
		namespaces = registry.Defaults()
	}

	var engine *rag.Engine
	if cfg := task.RAGConfig(); cfg != nil {
		ragOpts := append([]rag.Option{rag.WithLogger(o.logger)}, o.ragOpts...)
		var err error
		engine, err = rag.NewEngine(*cfg, embedder, ragOpts...)
		if err != nil {
			return nil, err
		}
		if _, err := engine.ImportNewDocuments(ctx); err != nil {
			return nil, err
		}
		ns, err := registry.Build("rag")
		if err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}

	namespaces = append(namespaces, task.Functions()...)

	storages := make(map[string]*Storage)
	for _, ns := range namespaces {
		for _, desc := range ns.Storages {
			if _, ok := storages[desc.Name]; !ok {
				storages[desc.Name] = newStorage(desc, sender)
			}
		}
	}

	if goal, ok := storages["goal"]; ok {
		prompt, err := task.ToPrompt()
		if err != nil {
			return nil, err
		}
		goal.SetCurrent(prompt)
	}

	return &State{
		task:       task,
		storages:   storages,
		namespaces: namespaces,
		rag:        engine,
		events:     sender,
		variables:  o.variables,
		Metrics:    Metrics{MaxSteps: maxSteps},
	}, nil
}

// OnStep advances the step counter and fails once a positive budget is reached.
func (s *State) OnStep() error {
	s.Metrics.CurrentStep++
	if s.Metrics.MaxSteps > 0 && s.Metrics.CurrentStep >= s.Metrics.MaxSteps {
		return BudgetExhausted(s.Metrics.MaxSteps)
	}
	return nil
}

// RAG returns the retrieval engine, or nil when none is configured.
func (s *State) RAG() *rag.Engine { return s.rag }

// RAGQuery returns up to topK documents by descending relevance.
func (s *State) RAGQuery(ctx context.Context, query string, topK int) ([]rag.Result, error) {
	if s.rag == nil {
		return nil, NoRAGEngine()
	}
	return s.rag.Retrieve(ctx, query, topK)
}

// ToChatHistory renders the most recent max executions.
func (s *State) ToChatHistory(max int) []llm.Message {
	return s.history.ToChatHistory(max)
}

// History returns a copy of the execution log.
func (s *State) History() []Execution {
	return s.history.Executions()
}

// Task returns the task.
func (s *State) Task() Task { return s.task }

// ToPrompt returns the task prompt.
func (s *State) ToPrompt() (string, error) { return s.task.ToPrompt() }

// Storage returns the storage declared under name.
func (s *State) Storage(name string) (*Storage, error) {
	if st, ok := s.storages[name]; ok {
		return st, nil
	}
	return nil, StorageNotFound(name)
}

// StorageMut is Storage for callers about to mutate it.
func (s *State) StorageMut(name string) (*Storage, error) {
	return s.Storage(name)
}

// Storages returns every storage sorted by name.
func (s *State) Storages() []*Storage {
	out := make([]*Storage, 0, len(s.storages))
	for _, st := range s.storages {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Namespaces returns the active namespaces in resolution order.
func (s *State) Namespaces() []*Namespace {
	return append([]*Namespace(nil), s.namespaces...)
}

// UsedNamespaces returns the active namespace names in resolution order.
func (s *State) UsedNamespaces() []string {
	names := make([]string, len(s.namespaces))
	for i, ns := range s.namespaces {
		names[i] = ns.Name
	}
	return names
}

// ActionNames returns the names of every active action in resolution order.
// A name shadowed by an earlier namespace is listed once.
func (s *State) ActionNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, ns := range s.namespaces {
		for _, a := range ns.Actions {
			if !seen[a.Name()] {
				seen[a.Name()] = true
				names = append(names, a.Name())
			}
		}
	}
	return names
}

// Action returns the first action named name, scanning namespaces in order.
func (s *State) Action(name string) (Action, bool) {
	for _, ns := range s.namespaces {
		for _, a := range ns.Actions {
			if a.Name() == name {
				return a, true
			}
		}
	}
	return nil, false
}

// Variable returns a task variable.
func (s *State) Variable(name string) (string, bool) {
	v, ok := s.variables[name]
	return v, ok
}

// Variables returns a copy of the task variables.
func (s *State) Variables() map[string]string {
	out := make(map[string]string, len(s.variables))
	for k, v := range s.variables {
		out[k] = v
	}
	return out
}

// AddSuccessToHistory records a successful invocation.
func (s *State) AddSuccessToHistory(inv Invocation, result string) {
	s.history.Push(NewSuccessExecution(inv, result))
}

// AddErrorToHistory records a failed invocation.
func (s *State) AddErrorToHistory(inv Invocation, err string) {
	s.history.Push(NewErrorExecution(inv, err))
}

// AddUnparsedResponseToHistory records a reply that produced no invocation.
func (s *State) AddUnparsedResponseToHistory(response, err string) {
	s.history.Push(NewUnparsedExecution(response, err))
}

// OnComplete marks the task done and emits the terminal event.
func (s *State) OnComplete(impossible bool, reason string) error {
	s.complete = true
	return s.OnEvent(events.TaskComplete(impossible, reason))
}

// IsComplete reports whether OnComplete was called.
func (s *State) IsComplete() bool { return s.complete }

// OnEvent forwards ev to the event sink.
func (s *State) OnEvent(ev events.Event) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Send(ev); err != nil {
		return WrapEventError(err)
	}
	return nil
}

// SharedState serializes access to a State. The lock covers exactly one
// critical section and is never held across a generator call or an action run.
type SharedState struct {
	mu    sync.Mutex
	state *State
}

// NewSharedState wraps s.
func NewSharedState(s *State) *SharedState {
	return &SharedState{state: s}
}

// With runs fn while holding the state lock.
func (s *SharedState) With(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}
