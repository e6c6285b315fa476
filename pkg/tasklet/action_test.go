package tasklet

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jllopis/nerve/pkg/agent"
	nervetest "github.com/jllopis/nerve/pkg/testing"
)

const echoTask = `
prompt: test
functions:
  - name: Echo
    description: Echo things.
    actions:
      - name: echo
        description: Echo the payload.
        args:
          name: world
        example_payload: hello
        tool: echo {payload} {name} $GREETING
      - name: fail
        description: Always fails.
        tool: "false"
`

func TestFunctions(t *testing.T) {
	tl, err := Parse([]byte(echoTask))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	extra := &agent.Namespace{Name: "extra"}
	tl.Attach(extra)

	nss := tl.Functions()
	if len(nss) != 2 || nss[0].Name != "Echo" || nss[1] != extra {
		t.Fatalf("unexpected namespaces %+v", nss)
	}
	echo := nss[0].Actions[0]
	if echo.ExamplePayload() != "hello" {
		t.Errorf("example payload = %q", echo.ExamplePayload())
	}
	if diff := cmp.Diff(map[string]string{"name": "world"}, echo.ExampleAttributes()); diff != "" {
		t.Errorf("example attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestToolRun(t *testing.T) {
	tl, err := Parse([]byte(echoTask))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	h := nervetest.NewHarness(t, tl.Functions()[:1], nervetest.WithVariables(map[string]string{"GREETING": "bye"}))

	status, exec := h.Invoke("echo", map[string]string{"name": "$GREETING"}, "hi")
	if status != agent.StatusSuccess {
		t.Fatalf("status = %s (%s)", status, exec.Error())
	}
	// values from the invocation are not expanded
	nervetest.NewAssertions(t).AssertExecution(exec).Succeeded().ResultEquals("hi $GREETING bye")
}

func TestToolRunMissingVariable(t *testing.T) {
	tl, err := Parse([]byte(echoTask))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	h := nervetest.NewHarness(t, tl.Functions()[:1])

	status, exec := h.Invoke("echo", map[string]string{"name": "x"}, "hi")
	if status != agent.StatusError {
		t.Fatalf("status = %s", status)
	}
	if !strings.Contains(exec.Error(), "required variable 'GREETING' not defined") {
		t.Fatalf("unexpected error %q", exec.Error())
	}
}

func TestToolRunExitCode(t *testing.T) {
	tl, err := Parse([]byte(echoTask))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	h := nervetest.NewHarness(t, tl.Functions()[:1])

	_, exec := h.Invoke("fail", nil, "")
	nervetest.NewAssertions(t).AssertExecution(exec).Failed().ErrorContains("false exited with code 1")
}

func TestToolCommand(t *testing.T) {
	a := newToolAction(ActionSpec{Name: "scan", Tool: "nmap -p {ports} {payload} {unknown}"}, "")
	got, err := a.command(nil, map[string]string{"ports": "22,80"}, "10.0.0.1")
	if err != nil {
		t.Fatalf("command error: %v", err)
	}
	want := []string{"nmap", "-p", "22,80", "10.0.0.1", "{unknown}"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("argv mismatch (-want +got):\n%s", diff)
	}
}
