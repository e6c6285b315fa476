package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/nerve/pkg/errors"
	"github.com/jllopis/nerve/pkg/llm"
)

func TestParseInvocations(t *testing.T) {
	known := []string{"save-memory", "clear-plan", "shell", "task-complete"}
	tests := []struct {
		name    string
		text    string
		actions []string
		want    []Invocation
	}{
		{
			name: "payload and attributes",
			text: `Let me store this. <save-memory key="target">10.0.0.1</save-memory>`,
			want: []Invocation{{Action: "save-memory", Attributes: map[string]string{"key": "target"}, Payload: "10.0.0.1"}},
		},
		{
			name: "self closing",
			text: `<clear-plan/>`,
			want: []Invocation{{Action: "clear-plan"}},
		},
		{
			name: "reasoning skipped",
			text: "<think>hmm</think>\n<shell>ls -la</shell>",
			want: []Invocation{{Action: "shell", Payload: "ls -la"}},
		},
		{
			name: "escaped payload",
			text: `<shell>echo a &amp;&amp; echo b</shell>`,
			want: []Invocation{{Action: "shell", Payload: "echo a && echo b"}},
		},
		{
			name: "several",
			text: `<a>1</a><b>2</b>`,
			want: []Invocation{{Action: "a", Payload: "1"}, {Action: "b", Payload: "2"}},
		},
		{
			name: "plain text",
			text: "I am not sure what to do.",
			want: nil,
		},
		{
			name:    "bare less-than in prose",
			text:    "Since 3 < 5 the port is open. <save-memory key=\"port\">22</save-memory>",
			actions: known,
			want:    []Invocation{{Action: "save-memory", Attributes: map[string]string{"key": "port"}, Payload: "22"}},
		},
		{
			name:    "redirection in payload",
			text:    "<shell>cat < /etc/hosts</shell>",
			actions: known,
			want:    []Invocation{{Action: "shell", Payload: "cat < /etc/hosts"}},
		},
		{
			name:    "unknown tags ignored",
			text:    "<b>bold</b> and then <task-complete>all ports listed</task-complete>",
			actions: known,
			want:    []Invocation{{Action: "task-complete", Payload: "all ports listed"}},
		},
		{
			name:    "action inside reasoning ignored",
			text:    "<think>maybe <shell>rm -rf /</shell></think><clear-plan/>",
			actions: known,
			want:    []Invocation{{Action: "clear-plan"}},
		},
		{
			name:    "name prefix is not a match",
			text:    "<shells>ls</shells>",
			actions: known,
			want:    nil,
		},
		{
			name:    "unclosed action skipped",
			text:    "I will call <shell> next, then <task-complete>done</task-complete>",
			actions: known,
			want:    []Invocation{{Action: "task-complete", Payload: "done"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInvocations(tt.text, tt.actions)
			if err != nil {
				t.Fatalf("ParseInvocations failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseResponseUnparsed(t *testing.T) {
	_, err := ParseResponse(&llm.ChatResponse{Content: "nothing actionable here"}, []string{"shell"})
	if !errors.HasCode(err, errors.CodeUnparsedResponse) {
		t.Fatalf("expected unparsed response error, got %v", err)
	}

	_, err = ParseResponse(&llm.ChatResponse{Content: "<think>only thoughts</think>"}, []string{"shell"})
	if !errors.HasCode(err, errors.CodeUnparsedResponse) {
		t.Fatalf("expected unparsed response error when only reasoning is present, got %v", err)
	}
}

func TestParseToolCall(t *testing.T) {
	inv, err := ParseToolCall(llm.ToolCall{Function: llm.FunctionCall{
		Name:      "http-request",
		Arguments: `{"payload":"/admin","method":"GET","retries":3}`,
	}})
	if err != nil {
		t.Fatalf("ParseToolCall failed: %v", err)
	}
	want := Invocation{
		Action:     "http-request",
		Attributes: map[string]string{"method": "GET", "retries": "3"},
		Payload:    "/admin",
	}
	if diff := cmp.Diff(want, inv); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseToolCall(llm.ToolCall{Function: llm.FunctionCall{Name: "x", Arguments: "{"}}); err == nil {
		t.Error("expected error for malformed arguments")
	}

	inv, err = ParseToolCall(llm.ToolCall{Function: llm.FunctionCall{Name: "clear-plan"}})
	if err != nil || inv.Action != "clear-plan" {
		t.Errorf("empty arguments should parse, got %+v, %v", inv, err)
	}
}

func TestInvocationXMLRoundTrip(t *testing.T) {
	inv := Invocation{
		Action:     "http-set-header",
		Attributes: map[string]string{"name": "X-Test", "b": `quote"d`},
		Payload:    "a < b",
	}
	parsed, err := ParseInvocations(inv.XML(), []string{inv.Action})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if diff := cmp.Diff([]Invocation{inv}, parsed); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
