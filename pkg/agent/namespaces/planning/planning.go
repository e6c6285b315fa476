// Package planning lets the agent keep an ordered plan with completion marks.
package planning

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jllopis/nerve/pkg/agent"
)

// StorageName is the completion storage holding the plan.
const StorageName = "plan"

// New returns the planning namespace. Step positions are 1-based.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "planning",
		Description: "Use these actions to break the task into steps and keep track of your progress.",
		Default:     true,
		Storages:    []agent.StorageDescriptor{agent.CompletionStorage(StorageName)},
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "add-plan-step",
				ActionDescription: "Append a new step to the plan.",
				Payload:           "complete the task",
				Fn: withPlan(func(st *agent.Storage, payload string) (string, error) {
					st.AddCompletion(payload)
					return "step added", nil
				}),
			},
			&agent.FuncAction{
				ActionName:        "delete-plan-step",
				ActionDescription: "Remove a step from the plan given its position.",
				Payload:           "2",
				Fn: withPosition(func(st *agent.Storage, pos int) bool {
					_, ok := st.DelCompletion(pos)
					return ok
				}, "step deleted"),
			},
			&agent.FuncAction{
				ActionName:        "set-step-completed",
				ActionDescription: "Mark a step of the plan as completed given its position.",
				Payload:           "2",
				Fn:                withPosition((*agent.Storage).SetComplete, "step marked as completed"),
			},
			&agent.FuncAction{
				ActionName:        "set-step-incomplete",
				ActionDescription: "Mark a step of the plan as not completed given its position.",
				Payload:           "2",
				Fn:                withPosition((*agent.Storage).SetIncomplete, "step marked as incomplete"),
			},
			&agent.FuncAction{
				ActionName:        "clear-plan",
				ActionDescription: "Remove every step from the plan to start over.",
				Fn: withPlan(func(st *agent.Storage, _ string) (string, error) {
					st.Clear()
					return "plan cleared", nil
				}),
			},
		},
	}
}

func withPlan(fn func(st *agent.Storage, payload string) (string, error)) agent.RunFunc {
	return func(_ context.Context, state *agent.SharedState, _ map[string]string, payload string) (string, error) {
		var out string
		err := state.With(func(s *agent.State) error {
			st, err := s.StorageMut(StorageName)
			if err != nil {
				return err
			}
			out, err = fn(st, payload)
			return err
		})
		return out, err
	}
}

func withPosition(fn func(st *agent.Storage, pos int) bool, result string) agent.RunFunc {
	return withPlan(func(st *agent.Storage, payload string) (string, error) {
		pos, err := strconv.Atoi(strings.TrimSpace(payload))
		if err != nil {
			return "", fmt.Errorf("invalid step position '%s'", payload)
		}
		if !fn(st, pos-1) {
			return "", fmt.Errorf("no step at position %d, the plan has %d steps", pos, st.Len())
		}
		return result, nil
	})
}
