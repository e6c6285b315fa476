// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy used across nerve.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies nerve errors for logging, metrics and recovery decisions.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid (malformed task, bad attributes).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNamespaceNotFound indicates a task requested an unknown namespace.
	CodeNamespaceNotFound ErrorCode = "NAMESPACE_NOT_FOUND"

	// CodeStorageNotFound indicates a storage was read before being declared.
	CodeStorageNotFound ErrorCode = "STORAGE_NOT_FOUND"

	// CodeMissingVariable indicates an action precondition on task variables failed.
	CodeMissingVariable ErrorCode = "MISSING_VARIABLE"

	// CodeActionFailure indicates an action returned an error.
	CodeActionFailure ErrorCode = "ACTION_FAILURE"

	// CodeUnparsedResponse indicates a model reply could not be turned into an invocation.
	CodeUnparsedResponse ErrorCode = "UNPARSED_RESPONSE"

	// CodeNoRAGEngine indicates a retrieval query without a configured engine.
	CodeNoRAGEngine ErrorCode = "NO_RAG_ENGINE"

	// CodeBudgetExhausted indicates the step budget has been consumed.
	CodeBudgetExhausted ErrorCode = "BUDGET_EXHAUSTED"

	// CodeEventSink indicates the outbound event receiver is gone.
	CodeEventSink ErrorCode = "EVENT_SINK"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeLLMError indicates a generator backend error.
	CodeLLMError ErrorCode = "LLM_ERROR"
)

// NerveError is a typed error carrying a code and structured context.
// It implements the error interface and can be unwrapped with errors.As().
type NerveError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *NerveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *NerveError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *NerveError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new NerveError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *NerveError {
	return &NerveError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *NerveError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *NerveError) WithContext(key string, value interface{}) *NerveError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the run can continue after this error.
func (e *NerveError) WithRecoverable(recoverable bool) *NerveError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *NerveError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsNerveError returns err as a NerveError, wrapping foreign errors as internal.
func AsNerveError(err error) *NerveError {
	if err == nil {
		return nil
	}
	var ne *NerveError
	if stderrors.As(err, &ne) {
		return ne
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether any NerveError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var ne *NerveError
		if !stderrors.As(err, &ne) {
			return false
		}
		if ne.Code == code {
			return true
		}
		err = ne.Err
	}
	return false
}

// CodeOf returns the code of the outermost NerveError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ne *NerveError
	if stderrors.As(err, &ne) {
		return ne.Code
	}
	return ""
}
