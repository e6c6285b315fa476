// Package task holds the actions that end a run.
package task

import (
	"context"

	"github.com/jllopis/nerve/pkg/agent"
)

// New returns the task namespace.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "task",
		Description: "Use these actions once you are done with the task or you are sure it can't be done.",
		Default:     true,
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "task-complete",
				ActionDescription: "Signal that the task has been completed.",
				Payload:           "a brief report about why the task is complete",
				Fn:                complete(false),
			},
			&agent.FuncAction{
				ActionName:        "task-impossible",
				ActionDescription: "Signal that the task can't be completed.",
				Payload:           "a brief report about why the task is impossible",
				Fn:                complete(true),
			},
		},
	}
}

func complete(impossible bool) agent.RunFunc {
	return func(_ context.Context, state *agent.SharedState, _ map[string]string, payload string) (string, error) {
		err := state.With(func(s *agent.State) error {
			return s.OnComplete(impossible, payload)
		})
		if err != nil {
			return "", err
		}
		if impossible {
			return "task marked as impossible", nil
		}
		return "task complete", nil
	}
}
