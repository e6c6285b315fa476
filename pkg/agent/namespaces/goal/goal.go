// Package goal keeps the current objective of the agent visible in every prompt.
package goal

import (
	"context"

	"github.com/jllopis/nerve/pkg/agent"
)

// StorageName is seeded with the task prompt when the state is created.
const StorageName = "goal"

// New returns the goal namespace.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "goal",
		Description: "Use this action to refine the current goal when you learn something that changes it.",
		Default:     true,
		Storages:    []agent.StorageDescriptor{agent.CurrentPreviousStorage(StorageName)},
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "update-goal",
				ActionDescription: "Replace the current goal with a new one.",
				Payload:           "your new goal",
				Fn: func(_ context.Context, state *agent.SharedState, _ map[string]string, payload string) (string, error) {
					err := state.With(func(s *agent.State) error {
						st, err := s.StorageMut(StorageName)
						if err != nil {
							return err
						}
						st.SetCurrent(payload)
						return nil
					})
					if err != nil {
						return "", err
					}
					return "goal updated", nil
				},
			},
		},
	}
}
