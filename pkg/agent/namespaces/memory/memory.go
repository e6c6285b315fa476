// Package memory provides actions to keep tagged notes across steps.
package memory

import (
	"context"
	"fmt"

	"github.com/jllopis/nerve/pkg/agent"
)

// StorageName is the tagged storage holding the memories.
const StorageName = "memories"

// New returns the memory namespace.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "memory",
		Description: "Use these actions to store and retrieve memories about what you learned while working on the task.",
		Default:     true,
		Storages:    []agent.StorageDescriptor{agent.TaggedStorage(StorageName)},
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "save-memory",
				ActionDescription: "Save a memory under a unique key to recall it later.",
				Attributes:        map[string]string{"key": "my-note"},
				Payload:           "put here whatever you want to remember",
				Fn:                save,
			},
			&agent.FuncAction{
				ActionName:        "delete-memory",
				ActionDescription: "Delete a memory you no longer need by its key.",
				Attributes:        map[string]string{"key": "my-note"},
				Fn:                remove,
			},
		},
	}
}

func save(_ context.Context, state *agent.SharedState, attrs map[string]string, payload string) (string, error) {
	err := state.With(func(s *agent.State) error {
		st, err := s.StorageMut(StorageName)
		if err != nil {
			return err
		}
		st.AddTagged(attrs["key"], payload)
		return nil
	})
	if err != nil {
		return "", err
	}
	return "memory saved", nil
}

func remove(_ context.Context, state *agent.SharedState, attrs map[string]string, _ string) (string, error) {
	key := attrs["key"]
	err := state.With(func(s *agent.State) error {
		st, err := s.StorageMut(StorageName)
		if err != nil {
			return err
		}
		if _, ok := st.DelTagged(key); !ok {
			return fmt.Errorf("memory '%s' not found", key)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return "memory deleted", nil
}
