package shell

import (
	"testing"

	"github.com/jllopis/nerve/pkg/agent"
	nervetest "github.com/jllopis/nerve/pkg/testing"
)

func TestShell(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"stdout", "echo hello", "EXIT CODE: 0\n\nhello"},
		{"exit code", "exit 3", "EXIT CODE: 3"},
		{"stderr", "echo oops 1>&2; exit 1", "EXIT CODE: 1\n\nSTDERR:\noops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := nervetest.NewHarness(t, []*agent.Namespace{New()})
			_, exec := h.Invoke("shell", nil, tt.command)
			nervetest.NewAssertions(t).AssertExecution(exec).Succeeded().ResultEquals(tt.want)
		})
	}
}

func TestShellTimeout(t *testing.T) {
	ns := New()
	if got := ns.Actions[0].Timeout(); got != Timeout {
		t.Errorf("expected %s timeout, got %s", Timeout, got)
	}
}
