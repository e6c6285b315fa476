package memory

import (
	"testing"

	"github.com/jllopis/nerve/pkg/agent"
	nervetest "github.com/jllopis/nerve/pkg/testing"
)

func TestSaveAndDeleteMemory(t *testing.T) {
	h := nervetest.NewHarness(t, []*agent.Namespace{New()})
	a := nervetest.NewAssertions(t)

	_, exec := h.Invoke("save-memory", map[string]string{"key": "creds"}, "admin:admin")
	a.AssertExecution(exec).Succeeded().ResultEquals("memory saved")

	entries := h.Storage(StorageName)
	nervetest.RequireEqual(t, 1, len(entries), "entries after save")
	a.AssertEqual("creds", entries[0].Key, "key")
	a.AssertEqual("admin:admin", entries[0].Data, "data")

	_, exec = h.Invoke("delete-memory", map[string]string{"key": "creds"}, "")
	a.AssertExecution(exec).Succeeded().ResultEquals("memory deleted")
	a.AssertEqual(0, len(h.Storage(StorageName)), "entries after delete")

	_, exec = h.Invoke("delete-memory", map[string]string{"key": "creds"}, "")
	a.AssertExecution(exec).Failed().ErrorContains("memory 'creds' not found")
}

func TestSaveMemoryRequiresKey(t *testing.T) {
	h := nervetest.NewHarness(t, []*agent.Namespace{New()})

	status, exec := h.Invoke("save-memory", nil, "something")
	if status != agent.StatusInvalid {
		t.Fatalf("expected invalid status, got %s", status)
	}
	nervetest.NewAssertions(t).AssertExecution(exec).Failed().
		ErrorContains("no 'key' attribute specified for 'save-memory'")
}
