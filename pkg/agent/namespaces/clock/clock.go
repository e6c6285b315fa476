// Package clock lets the agent pause, for instance to wait for a process.
package clock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/agent/events"
)

// New returns the time namespace.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "time",
		Description: "Use this action to wait before taking the next step.",
		Default:     true,
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "wait",
				ActionDescription: "Pause for the given number of seconds.",
				Payload:           "5",
				Fn:                wait,
			},
		},
	}
}

func wait(ctx context.Context, state *agent.SharedState, _ map[string]string, payload string) (string, error) {
	secs, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil || secs < 0 {
		return "", fmt.Errorf("invalid number of seconds '%s'", payload)
	}

	if err := state.With(func(s *agent.State) error {
		return s.OnEvent(events.Sleeping(secs))
	}); err != nil {
		return "", err
	}

	timer := time.NewTimer(time.Duration(secs) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}
	return fmt.Sprintf("waited %d seconds", secs), nil
}
