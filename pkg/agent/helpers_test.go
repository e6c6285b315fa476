package agent

import (
	"context"
	"testing"

	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/rag"
)

type testTask struct {
	system    string
	prompt    string
	using     []string
	functions []*Namespace
	ragConfig *rag.Config
	guidance  []string
}

func (t *testTask) SystemPrompt() (string, error) { return t.system, nil }
func (t *testTask) ToPrompt() (string, error)     { return t.prompt, nil }
func (t *testTask) Namespaces() []string          { return t.using }
func (t *testTask) Functions() []*Namespace       { return t.functions }
func (t *testTask) RAGConfig() *rag.Config        { return t.ragConfig }
func (t *testTask) Guidance() ([]string, error)   { return t.guidance, nil }

func saveMemory() Action {
	return &FuncAction{
		ActionName:        "save-memory",
		ActionDescription: "Save a memory.",
		Attributes:        map[string]string{"key": "my-note"},
		Payload:           "something to remember",
		Fn: func(_ context.Context, state *SharedState, attrs map[string]string, payload string) (string, error) {
			return "memory saved", state.With(func(s *State) error {
				st, err := s.StorageMut("memories")
				if err != nil {
					return err
				}
				st.AddTagged(attrs["key"], payload)
				return nil
			})
		},
	}
}

func httpRequest(ran *bool) Action {
	return &FuncAction{
		ActionName:        "http-request",
		ActionDescription: "Send an HTTP request.",
		Payload:           "/index.php",
		Variables:         []string{"HTTP_TARGET"},
		Fn: func(context.Context, *SharedState, map[string]string, string) (string, error) {
			if ran != nil {
				*ran = true
			}
			return "200 OK", nil
		},
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(r.Register("memory", func() *Namespace {
		return &Namespace{
			Name:     "memory",
			Default:  true,
			Actions:  []Action{saveMemory()},
			Storages: []StorageDescriptor{TaggedStorage("memories")},
		}
	}))
	must(r.Register("goal", func() *Namespace {
		return &Namespace{
			Name:     "goal",
			Default:  true,
			Storages: []StorageDescriptor{CurrentPreviousStorage("goal")},
		}
	}))
	must(r.Register("task", func() *Namespace {
		return &Namespace{
			Name:    "task",
			Default: true,
			Actions: []Action{&FuncAction{
				ActionName:        "task-complete",
				ActionDescription: "Mark the task as done.",
				Fn: func(_ context.Context, state *SharedState, _ map[string]string, payload string) (string, error) {
					return "", state.With(func(s *State) error { return s.OnComplete(false, payload) })
				},
			}},
		}
	}))
	must(r.Register("http", func() *Namespace {
		return &Namespace{
			Name:    "http",
			Actions: []Action{httpRequest(nil)},
			Storages: []StorageDescriptor{
				TaggedStorage("http-headers").Predefine(map[string]string{"User-Agent": "nerve"}),
			},
		}
	}))
	must(r.Register("rag", func() *Namespace {
		return &Namespace{Name: "rag"}
	}))
	return r
}

func newTestState(t *testing.T, task Task, maxSteps int, opts ...StateOption) (*State, *events.Receiver) {
	t.Helper()
	tx, rx := events.New(0)
	s, err := NewState(context.Background(), testRegistry(t), tx, task, llm.NewHashEmbedder(32), maxSteps, opts...)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	return s, rx
}
