// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package testing

import (
	"strings"
	"testing"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/errors"
	"github.com/jllopis/nerve/pkg/llm"
)

// Assertions provides assertion helpers for testing.
type Assertions struct {
	t      *testing.T
	failed bool
}

// NewAssertions creates a new assertions helper.
func NewAssertions(t *testing.T) *Assertions {
	return &Assertions{t: t}
}

// Failed returns true if any assertion has failed.
func (a *Assertions) Failed() bool {
	return a.failed
}

func (a *Assertions) fail(format string, args ...any) {
	a.t.Helper()
	a.t.Errorf(format, args...)
	a.failed = true
}

// AssertEqual asserts that two values are equal.
func (a *Assertions) AssertEqual(expected, actual any, msg string) {
	a.t.Helper()
	if expected != actual {
		a.fail("%s: expected %v, got %v", msg, expected, actual)
	}
}

// AssertContains asserts that the string contains the substring.
func (a *Assertions) AssertContains(s, substr, msg string) {
	a.t.Helper()
	if !strings.Contains(s, substr) {
		a.fail("%s: %q does not contain %q", msg, s, substr)
	}
}

// AssertNoError asserts that the error is nil.
func (a *Assertions) AssertNoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.fail("%s: unexpected error: %v", msg, err)
	}
}

// AssertErrorCode asserts that err carries code.
func (a *Assertions) AssertErrorCode(err error, code errors.ErrorCode, msg string) {
	a.t.Helper()
	if !errors.HasCode(err, code) {
		a.fail("%s: expected error code %s, got %v", msg, code, err)
	}
}

// ExecutionAssertions provides assertion helpers for one history entry.
type ExecutionAssertions struct {
	*Assertions
	exec agent.Execution
}

// AssertExecution creates execution assertions.
func (a *Assertions) AssertExecution(exec agent.Execution) *ExecutionAssertions {
	return &ExecutionAssertions{Assertions: a, exec: exec}
}

// Succeeded asserts the execution did not fail.
func (e *ExecutionAssertions) Succeeded() *ExecutionAssertions {
	e.t.Helper()
	if e.exec.Failed() {
		e.fail("expected success, got error %q", e.exec.Error())
	}
	return e
}

// Failed asserts the execution failed.
func (e *ExecutionAssertions) Failed() *ExecutionAssertions {
	e.t.Helper()
	if !e.exec.Failed() {
		e.fail("expected failure, got result %q", e.exec.Result())
	}
	return e
}

// ResultContains asserts the result contains substr.
func (e *ExecutionAssertions) ResultContains(substr string) *ExecutionAssertions {
	e.t.Helper()
	if !strings.Contains(e.exec.Result(), substr) {
		e.fail("result %q does not contain %q", e.exec.Result(), substr)
	}
	return e
}

// ResultEquals asserts the exact result.
func (e *ExecutionAssertions) ResultEquals(expected string) *ExecutionAssertions {
	e.t.Helper()
	if e.exec.Result() != expected {
		e.fail("expected result %q, got %q", expected, e.exec.Result())
	}
	return e
}

// ErrorContains asserts the recorded error contains substr.
func (e *ExecutionAssertions) ErrorContains(substr string) *ExecutionAssertions {
	e.t.Helper()
	if !strings.Contains(e.exec.Error(), substr) {
		e.fail("error %q does not contain %q", e.exec.Error(), substr)
	}
	return e
}

// RequestAssertions provides assertion helpers for generator requests.
type RequestAssertions struct {
	*Assertions
	req *llm.ChatOptions
}

// AssertRequest creates request assertions for the given request.
func (a *Assertions) AssertRequest(req *llm.ChatOptions) *RequestAssertions {
	a.t.Helper()
	if req == nil {
		a.fail("request is nil")
		return &RequestAssertions{Assertions: a, req: &llm.ChatOptions{}}
	}
	return &RequestAssertions{Assertions: a, req: req}
}

// HasHistoryLen asserts the number of history messages.
func (r *RequestAssertions) HasHistoryLen(n int) *RequestAssertions {
	r.t.Helper()
	if len(r.req.History) != n {
		r.fail("expected %d history messages, got %d", n, len(r.req.History))
	}
	return r
}

// SystemPromptContains asserts the system prompt contains substr.
func (r *RequestAssertions) SystemPromptContains(substr string) *RequestAssertions {
	r.t.Helper()
	if !strings.Contains(r.req.SystemPrompt, substr) {
		r.fail("system prompt does not contain %q", substr)
	}
	return r
}

// HasTool asserts a tool with the given name exists.
func (r *RequestAssertions) HasTool(name string) *RequestAssertions {
	r.t.Helper()
	for _, tool := range r.req.Tools {
		if tool.Function.Name == name {
			return r
		}
	}
	r.fail("tool %q not found in request", name)
	return r
}

// RequireNoError fails the test immediately if err is not nil.
func RequireNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

// RequireEqual fails the test immediately if values are not equal.
func RequireEqual(t *testing.T, expected, actual any, msg string) {
	t.Helper()
	if expected != actual {
		t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}
