package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExecutionOwnsAttributes(t *testing.T) {
	attrs := map[string]string{"key": "port"}
	inv := Invocation{Action: "save-memory", Attributes: attrs, Payload: "22"}

	execs := []Execution{
		NewSuccessExecution(inv, "memory saved"),
		NewErrorExecution(inv, "storage full"),
	}
	attrs["key"] = "changed"
	attrs["extra"] = "x"

	want := map[string]string{"key": "port"}
	for _, e := range execs {
		got, ok := e.Invocation()
		if !ok {
			t.Fatal("expected an invocation")
		}
		if diff := cmp.Diff(want, got.Attributes); diff != "" {
			t.Errorf("attributes changed after construction (-want +got):\n%s", diff)
		}
		got.Attributes["key"] = "mutated"
		again, _ := e.Invocation()
		if again.Attributes["key"] != "port" {
			t.Errorf("returned invocation aliases the execution, key = %q", again.Attributes["key"])
		}
	}
}
