package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/errors"
	"github.com/jllopis/nerve/pkg/resilience"
)

// DispatchStatus classifies the outcome of one dispatch.
type DispatchStatus string

const (
	StatusSuccess         DispatchStatus = "success"
	StatusError           DispatchStatus = "error"
	StatusTimeout         DispatchStatus = "timeout"
	StatusUnknownAction   DispatchStatus = "unknown_action"
	StatusMissingVariable DispatchStatus = "missing_variable"
	StatusInvalid         DispatchStatus = "invalid"
)

// Dispatch validates and runs one invocation, recording the outcome in the
// history. Action failures never abort the run: the returned error is only
// set when an event could not be delivered.
func Dispatch(ctx context.Context, shared *SharedState, inv Invocation) (DispatchStatus, error) {
	var (
		action Action
		status DispatchStatus
	)
	err := shared.With(func(s *State) error {
		a, ok := s.Action(inv.Action)
		if !ok {
			s.Metrics.UnknownActions++
			uerr := UnknownAction(inv.Action)
			s.AddErrorToHistory(inv, errorText(uerr))
			status = StatusUnknownAction
			return s.OnEvent(events.InvalidAction(inv.Action, errorText(uerr)))
		}

		for _, name := range a.RequiredVariables() {
			if _, defined := s.Variable(name); !defined {
				s.Metrics.ErroredActions++
				verr := MissingVariable(name)
				s.AddErrorToHistory(inv, errorText(verr))
				status = StatusMissingVariable
				return s.OnEvent(events.ActionExecuted(inv.Action, "", errorText(verr), 0))
			}
		}

		if verr := validate(a, inv); verr != nil {
			s.Metrics.ErroredActions++
			s.AddErrorToHistory(inv, errorText(verr))
			status = StatusInvalid
			return s.OnEvent(events.ActionExecuted(inv.Action, "", errorText(verr), 0))
		}

		s.Metrics.ValidActions++
		action = a
		return nil
	})
	if err != nil || action == nil {
		return status, err
	}

	start := time.Now()
	result, runErr := resilience.WithTimeout(ctx, action.Timeout(), func(ctx context.Context) (string, error) {
		return action.Run(ctx, shared, inv.Attributes, inv.Payload)
	})
	elapsed := time.Since(start)

	err = shared.With(func(s *State) error {
		switch {
		case runErr == nil:
			s.Metrics.SuccessActions++
			s.AddSuccessToHistory(inv, result)
			status = StatusSuccess
			return s.OnEvent(events.ActionExecuted(inv.Action, result, "", elapsed))
		case errors.HasCode(runErr, errors.CodeTimeout):
			s.Metrics.TimedOutActions++
			s.AddErrorToHistory(inv, fmt.Sprintf("action '%s' timed out after %s", inv.Action, action.Timeout()))
			status = StatusTimeout
			return s.OnEvent(events.ActionTimeout(inv.Action, elapsed))
		default:
			s.Metrics.ErroredActions++
			msg := errorText(WrapActionError(runErr, inv.Action))
			s.AddErrorToHistory(inv, msg)
			status = StatusError
			return s.OnEvent(events.ActionExecuted(inv.Action, "", msg, elapsed))
		}
	})
	return status, err
}

// validate checks that the invocation carries what the action's examples
// promise to the model.
func validate(a Action, inv Invocation) error {
	if a.ExamplePayload() != "" && inv.Payload == "" {
		return errors.Newf(errors.CodeInvalidInput, "no content specified for '%s'", a.Name())
	}
	for _, key := range sortedKeys(a.ExampleAttributes()) {
		if _, ok := inv.Attributes[key]; !ok {
			return errors.Newf(errors.CodeInvalidInput, "no '%s' attribute specified for '%s'", key, a.Name())
		}
	}
	return nil
}
