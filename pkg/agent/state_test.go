package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/errors"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/rag"
)

func TestNamespaceResolution(t *testing.T) {
	tests := []struct {
		name    string
		using   []string
		want    []string
		wantErr string
	}{
		{name: "absent selects defaults", using: nil, want: []string{"memory", "goal", "task"}},
		{name: "wildcard plus explicit", using: []string{"*", "http"}, want: []string{"memory", "goal", "task", "http"}},
		{name: "explicit only", using: []string{"http"}, want: []string{"http"}},
		{name: "empty list selects nothing", using: []string{}, want: []string{}},
		{name: "wildcard keeps duplicates", using: []string{"memory", "*"}, want: []string{"memory", "goal", "task", "memory"}},
		{name: "undefined namespace", using: []string{"*", "nope"}, wantErr: "no namespace 'nope' defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, _ := events.New(0)
			s, err := NewState(context.Background(), testRegistry(t), tx, &testTask{using: tt.using}, nil, 0)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error %q", tt.wantErr)
				}
				if !errors.HasCode(err, errors.CodeNamespaceNotFound) {
					t.Errorf("expected NAMESPACE_NOT_FOUND, got %v", err)
				}
				if errorText(err) != tt.wantErr {
					t.Errorf("got %q, want %q", errorText(err), tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewState failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, s.UsedNamespaces()); diff != "" {
				t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTaskFunctionsAppended(t *testing.T) {
	extra := &Namespace{Name: "custom", Actions: []Action{saveMemory()}}
	s, _ := newTestState(t, &testTask{using: []string{"goal"}, functions: []*Namespace{extra}}, 0)

	if diff := cmp.Diff([]string{"goal", "custom"}, s.UsedNamespaces()); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestOnStepBudget(t *testing.T) {
	s, _ := newTestState(t, &testTask{}, 3)

	if err := s.OnStep(); err != nil {
		t.Fatalf("step 1 failed: %v", err)
	}
	if err := s.OnStep(); err != nil {
		t.Fatalf("step 2 failed: %v", err)
	}
	err := s.OnStep()
	if !errors.HasCode(err, errors.CodeBudgetExhausted) {
		t.Fatalf("step 3: expected budget exhausted, got %v", err)
	}
	if err := s.OnStep(); err == nil {
		t.Fatal("steps beyond the budget must keep failing")
	}
}

func TestOnStepUnbounded(t *testing.T) {
	s, _ := newTestState(t, &testTask{}, 0)
	for i := 0; i < 1000; i++ {
		if err := s.OnStep(); err != nil {
			t.Fatalf("step %d failed: %v", i+1, err)
		}
	}
	if s.Metrics.CurrentStep != 1000 {
		t.Errorf("expected 1000 steps, got %d", s.Metrics.CurrentStep)
	}
}

func TestStoragePresence(t *testing.T) {
	s, _ := newTestState(t, &testTask{}, 0)

	if _, err := s.StorageMut("http-headers"); !errors.HasCode(err, errors.CodeStorageNotFound) {
		t.Fatalf("expected storage not found, got %v", err)
	}
	if _, err := s.Storage("http-headers"); err == nil || errorText(err) != "storage http-headers not found" {
		t.Fatalf("unexpected error: %v", err)
	}

	withHTTP, _ := newTestState(t, &testTask{using: []string{"*", "http"}}, 0)
	st, err := withHTTP.StorageMut("http-headers")
	if err != nil {
		t.Fatalf("expected http-headers storage: %v", err)
	}
	if v, _ := st.Get("User-Agent"); v != "nerve" {
		t.Errorf("expected predefined header, got %q", v)
	}
	ro, _ := withHTTP.Storage("http-headers")
	if ro != st {
		t.Error("Storage and StorageMut must return the same storage")
	}
}

func TestStorageFirstDeclarationWins(t *testing.T) {
	extra := &Namespace{
		Name:     "other",
		Storages: []StorageDescriptor{UntaggedStorage("memories")},
	}
	s, _ := newTestState(t, &testTask{functions: []*Namespace{extra}}, 0)

	st, err := s.Storage("memories")
	if err != nil {
		t.Fatal(err)
	}
	if st.Kind() != StorageTagged {
		t.Errorf("expected the first declared kind, got %s", st.Kind())
	}
}

func TestGoalSeededFromPrompt(t *testing.T) {
	s, _ := newTestState(t, &testTask{prompt: "find the flag"}, 0)

	goal, err := s.Storage("goal")
	if err != nil {
		t.Fatal(err)
	}
	if goal.Current() != "find the flag" {
		t.Errorf("expected goal to be seeded, got %q", goal.Current())
	}
}

func TestToChatHistoryWindow(t *testing.T) {
	s, _ := newTestState(t, &testTask{}, 0)
	for i := 1; i <= 5; i++ {
		s.AddSuccessToHistory(Invocation{Action: "a", Payload: string(rune('0' + i))}, "ok")
	}

	got := s.ToChatHistory(2)
	want := []llm.Message{
		{Role: llm.RoleAssistant, Content: "<a>4</a>"},
		{Role: llm.RoleUser, Content: "ok"},
		{Role: llm.RoleAssistant, Content: "<a>5</a>"},
		{Role: llm.RoleUser, Content: "ok"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}

	if n := len(s.ToChatHistory(0)); n != 0 {
		t.Errorf("max=0 should render nothing, got %d messages", n)
	}
	if n := len(s.ToChatHistory(1)); n != 2 {
		t.Errorf("max=1 should render the last execution, got %d messages", n)
	}
	if n := len(s.ToChatHistory(50)); n != 10 {
		t.Errorf("max larger than history should render everything, got %d messages", n)
	}
	if len(s.History()) != 5 {
		t.Error("rendering must not mutate the history")
	}
}

func TestRAGQueryNotConfigured(t *testing.T) {
	s, _ := newTestState(t, &testTask{}, 0)

	_, err := s.RAGQuery(context.Background(), "anything", 3)
	if !errors.HasCode(err, errors.CodeNoRAGEngine) {
		t.Fatalf("expected no rag engine error, got %v", err)
	}
}

func TestRAGQueryConfigured(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"a.txt": "golang channels and goroutines",
		"b.txt": "baking bread with sourdough",
		"c.txt": "goroutines leak when channels block",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	s, _ := newTestState(t, &testTask{ragConfig: &rag.Config{SourcePath: dir}}, 0)

	used := s.UsedNamespaces()
	if used[len(used)-1] != "rag" {
		t.Errorf("expected rag namespace to be appended, got %v", used)
	}

	results, err := s.RAGQuery(context.Background(), "goroutines channels", 2)
	if err != nil {
		t.Fatalf("RAGQuery failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted by score: %v", results)
	}
}

func TestActionFirstMatchWins(t *testing.T) {
	first, second := false, false
	nsA := &Namespace{Name: "a", Actions: []Action{httpRequest(&first)}}
	nsB := &Namespace{Name: "b", Actions: []Action{httpRequest(&second)}}

	s, _ := newTestState(t, &testTask{using: []string{}, functions: []*Namespace{nsA, nsB}}, 0,
		WithVariables(map[string]string{"HTTP_TARGET": "localhost"}))

	a, ok := s.Action("http-request")
	if !ok {
		t.Fatal("expected to find http-request")
	}
	if _, err := a.Run(context.Background(), NewSharedState(s), nil, "/"); err != nil {
		t.Fatal(err)
	}
	if !first || second {
		t.Errorf("expected the first namespace's action to win (first=%v second=%v)", first, second)
	}

	if _, ok := s.Action("missing"); ok {
		t.Error("unexpected action found")
	}
}

func TestOnCompleteEmitsEvent(t *testing.T) {
	s, rx := newTestState(t, &testTask{}, 0)
	rx.Drain()

	if s.IsComplete() {
		t.Fatal("new state must not be complete")
	}
	if err := s.OnComplete(true, "target unreachable"); err != nil {
		t.Fatal(err)
	}
	if !s.IsComplete() {
		t.Fatal("expected completion")
	}

	evs := rx.Drain()
	if len(evs) != 1 || evs[0].Type != events.TypeTaskComplete {
		t.Fatalf("expected one task_complete event, got %+v", evs)
	}
	if evs[0].Payload["impossible"] != true || evs[0].String("reason") != "target unreachable" {
		t.Errorf("unexpected payload %+v", evs[0].Payload)
	}
}

func TestOnEventReceiverClosed(t *testing.T) {
	s, rx := newTestState(t, &testTask{}, 0)
	rx.Close()

	err := s.OnEvent(events.EmptyResponse())
	if !errors.HasCode(err, errors.CodeEventSink) {
		t.Fatalf("expected event sink error, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	factory := func() *Namespace { return &Namespace{Name: "x"} }
	if err := r.Register("x", factory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("x", factory); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if _, err := r.Build("missing"); !errors.HasCode(err, errors.CodeNamespaceNotFound) {
		t.Fatalf("expected namespace not found, got %v", err)
	}
}

func TestOnEventDoesNotBlockUnderLock(t *testing.T) {
	tx, rx := events.New(1)
	s, err := NewState(context.Background(), testRegistry(t), tx, &testTask{}, nil, 0)
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	shared := NewSharedState(s)

	done := make(chan error, 1)
	go func() {
		done <- shared.With(func(s *State) error {
			for i := 0; i < 10; i++ {
				if err := s.OnEvent(events.Thinking("still here")); err != nil {
					return err
				}
			}
			mem, err := s.StorageMut("memories")
			if err != nil {
				return err
			}
			mem.AddTagged("port", "22")
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("With failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("event emission blocked while holding the state lock")
	}
	if n := rx.Len(); n < 11 {
		t.Errorf("expected at least 11 queued events, got %d", n)
	}
}

func TestBuildChatOptionsUnboundedHistory(t *testing.T) {
	s, _ := newTestState(t, &testTask{}, 0)
	for i := 0; i < 3; i++ {
		s.AddSuccessToHistory(Invocation{Action: "a"}, "ok")
	}

	all, err := BuildChatOptions(s, 0, false)
	if err != nil {
		t.Fatalf("BuildChatOptions failed: %v", err)
	}
	if len(all.History) != 6 {
		t.Errorf("zero max history should send the whole log, got %d messages", len(all.History))
	}

	last, err := BuildChatOptions(s, 1, false)
	if err != nil {
		t.Fatalf("BuildChatOptions failed: %v", err)
	}
	if len(last.History) != 2 {
		t.Errorf("expected the last execution only, got %d messages", len(last.History))
	}
}
