// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	stderrors "errors"

	"github.com/jllopis/nerve/pkg/errors"
)

// NamespaceNotFound is returned when a task requests an unregistered namespace.
func NamespaceNotFound(name string) *errors.NerveError {
	return errors.Newf(errors.CodeNamespaceNotFound, "no namespace '%s' defined", name).
		WithContext("namespace", name)
}

// StorageNotFound is returned when no active namespace declared the storage.
func StorageNotFound(name string) *errors.NerveError {
	return errors.Newf(errors.CodeStorageNotFound, "storage %s not found", name).
		WithContext("storage", name)
}

// MissingVariable is returned when an action requires an undefined variable.
func MissingVariable(name string) *errors.NerveError {
	return errors.Newf(errors.CodeMissingVariable, "required variable '%s' not defined", name).
		WithContext("variable", name).
		WithRecoverable(true)
}

// BudgetExhausted terminates the run once the step budget is used up.
func BudgetExhausted(maxSteps int) *errors.NerveError {
	return errors.Newf(errors.CodeBudgetExhausted, "maximum number of steps reached").
		WithContext("max_steps", maxSteps)
}

// NoRAGEngine is returned by retrieval queries on tasks without a rag config.
func NoRAGEngine() *errors.NerveError {
	return errors.Newf(errors.CodeNoRAGEngine, "no RAG engine has been configured")
}

// UnknownAction is recorded when the model invokes an action nobody declared.
func UnknownAction(name string) *errors.NerveError {
	return errors.Newf(errors.CodeInvalidInput, "unknown action '%s'", name).
		WithContext("action", name).
		WithRecoverable(true)
}

// WrapLLMError wraps a generator failure.
func WrapLLMError(err error) *errors.NerveError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeLLMError, "generator call failed", err).
		WithRecoverable(true)
}

// WrapEventError wraps a failure to deliver an event.
func WrapEventError(err error) *errors.NerveError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeEventSink, "could not deliver event", err)
}

// WrapActionError wraps an error returned by an action.
func WrapActionError(err error, action string) *errors.NerveError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeActionFailure, "action failed", err).
		WithContext("action", action).
		WithRecoverable(true)
}

// errorText renders err for the model: the message without the code prefix.
func errorText(err error) string {
	var ne *errors.NerveError
	if !stderrors.As(err, &ne) {
		return err.Error()
	}
	if ne.Code == errors.CodeActionFailure && ne.Err != nil {
		return errorText(ne.Err)
	}
	if ne.Err != nil {
		return ne.Message + ": " + errorText(ne.Err)
	}
	return ne.Message
}
