// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

// Package testing provides utilities for testing nerve namespaces and runs.
//
// This package includes:
//   - A Harness to dispatch single actions against a real State
//   - Scenario definitions driving a full run with scripted replies
//   - Assertion helpers for common validations
//
// Example usage:
//
//	scenario := testing.NewScenario("remember").
//	    WithReplies(`<save-memory key="a">b</save-memory>`, `<task-complete>ok</task-complete>`).
//	    ExpectComplete().
//	    ExpectAction("save-memory")
//
//	result := scenario.Run(t, registry)
//	result.Assert(t, scenario)
package testing

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/resilience"
)

// Scenario defines a scripted run of the agent.
type Scenario struct {
	name         string
	task         *Task
	replies      []*llm.ChatResponse
	nativeTools  bool
	maxSteps     int
	variables    map[string]string
	timeout      time.Duration
	expectations []Expectation
}

// Expectation defines a condition to verify after running a scenario.
type Expectation interface {
	// Check verifies the expectation against the result.
	Check(result *ScenarioResult) error
	// Description returns a human-readable description of the expectation.
	Description() string
}

// ScenarioResult contains the outcome of running a scenario.
type ScenarioResult struct {
	Error      error
	Complete   bool
	Steps      int
	Executions []agent.Execution
	Events     []events.Event
	Requests   []*llm.ChatOptions
	Storages   map[string][]agent.Entry
	Duration   time.Duration
}

// NewScenario creates a new scenario with the given name. Without an explicit
// task it uses the default namespaces of the registry.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:    name,
		task:    &Task{Prompt: name},
		timeout: 30 * time.Second,
	}
}

// WithTask sets the task to run.
func (s *Scenario) WithTask(task *Task) *Scenario {
	s.task = task
	return s
}

// WithReplies queues plain text generator replies.
func (s *Scenario) WithReplies(replies ...string) *Scenario {
	for _, r := range replies {
		s.replies = append(s.replies, &llm.ChatResponse{Content: r})
	}
	return s
}

// WithToolCall queues a native tool call reply and enables native tools.
func (s *Scenario) WithToolCall(name, arguments string) *Scenario {
	s.nativeTools = true
	s.replies = append(s.replies, &llm.ChatResponse{ToolCalls: []llm.ToolCall{{
		Type:     llm.ToolTypeFunction,
		Function: llm.FunctionCall{Name: name, Arguments: arguments},
	}}})
	return s
}

// WithMaxSteps sets the step budget. Zero is unbounded.
func (s *Scenario) WithMaxSteps(n int) *Scenario {
	s.maxSteps = n
	return s
}

// WithVariables defines task variables.
func (s *Scenario) WithVariables(vars map[string]string) *Scenario {
	s.variables = vars
	return s
}

// WithTimeout bounds the whole run.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// Expect adds an expectation to the scenario.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectNoError expects the run to end without error.
func (s *Scenario) ExpectNoError() *Scenario {
	return s.Expect(&noErrorExpectation{})
}

// ExpectError expects the run to fail with a matching error.
func (s *Scenario) ExpectError(matcher StringMatcher) *Scenario {
	return s.Expect(&errorExpectation{matcher: matcher})
}

// ExpectComplete expects the task to be marked complete.
func (s *Scenario) ExpectComplete() *Scenario {
	return s.Expect(&completeExpectation{})
}

// ExpectAction expects at least one execution of the named action.
func (s *Scenario) ExpectAction(name string) *Scenario {
	return s.Expect(&actionExpectation{action: name})
}

// ExpectResult expects an execution of action whose result or error matches.
func (s *Scenario) ExpectResult(action string, matcher StringMatcher) *Scenario {
	return s.Expect(&actionExpectation{action: action, matcher: matcher})
}

// ExpectStorage expects key in storage to hold a matching value.
func (s *Scenario) ExpectStorage(storage, key string, matcher StringMatcher) *Scenario {
	return s.Expect(&storageExpectation{storage: storage, key: key, matcher: matcher})
}

// ExpectEvent expects an event of the given type.
func (s *Scenario) ExpectEvent(eventType events.Type) *Scenario {
	return s.Expect(&eventExpectation{eventType: eventType})
}

// ExpectSteps expects the run to take exactly n steps.
func (s *Scenario) ExpectSteps(n int) *Scenario {
	return s.Expect(&stepsExpectation{steps: n})
}

// Run executes the scenario against registry.
func (s *Scenario) Run(t *testing.T, registry *agent.Registry) *ScenarioResult {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, rx := events.New(0)
	defer rx.Close()

	var stateOpts []agent.StateOption
	if s.variables != nil {
		stateOpts = append(stateOpts, agent.WithVariables(s.variables))
	}
	state, err := agent.NewState(ctx, registry, tx, s.task, llm.NewHashEmbedder(0), s.maxSteps, stateOpts...)
	if err != nil {
		t.Fatalf("scenario %q: NewState failed: %v", s.name, err)
	}

	gen := &llm.ScriptedGenerator{Responses: s.replies, NativeTools: s.nativeTools}
	mode := agent.ToolsText
	if s.nativeTools {
		mode = agent.ToolsNative
	}
	a, err := agent.New(gen, state,
		agent.WithToolsMode(mode),
		agent.WithRetry(resilience.DefaultRetryConfig().WithMaxAttempts(1)),
	)
	if err != nil {
		t.Fatalf("scenario %q: agent.New failed: %v", s.name, err)
	}

	start := time.Now()
	runErr := a.Run(ctx)
	result := &ScenarioResult{
		Error:    runErr,
		Duration: time.Since(start),
		Requests: gen.Requests,
		Events:   rx.Drain(),
		Storages: map[string][]agent.Entry{},
	}
	_ = a.State().With(func(st *agent.State) error {
		result.Complete = st.IsComplete()
		result.Steps = st.Metrics.CurrentStep
		result.Executions = st.History()
		for _, storage := range st.Storages() {
			result.Storages[storage.Name()] = storage.Entries()
		}
		return nil
	})
	return result
}

// Assert checks all expectations and reports failures to the test.
func (r *ScenarioResult) Assert(t *testing.T, scenario *Scenario) {
	t.Helper()

	for _, exp := range scenario.expectations {
		if err := exp.Check(r); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", scenario.name, exp.Description(), err)
		}
	}
}

// StringMatcher defines how to match strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains returns a matcher that checks if the string contains the substring.
func Contains(substr string) StringMatcher {
	return &containsMatcher{substr: substr}
}

// Equals returns a matcher that checks exact string equality.
func Equals(expected string) StringMatcher {
	return &equalsMatcher{expected: expected}
}

// Regex returns a matcher that checks against a regular expression.
func Regex(pattern string) StringMatcher {
	return &regexMatcher{pattern: pattern}
}

// HasPrefix returns a matcher that checks if the string has the given prefix.
func HasPrefix(prefix string) StringMatcher {
	return &prefixMatcher{prefix: prefix}
}

type containsMatcher struct {
	substr string
}

func (m *containsMatcher) Match(s string) bool { return strings.Contains(s, m.substr) }

func (m *containsMatcher) Description() string { return fmt.Sprintf("contains %q", m.substr) }

type equalsMatcher struct {
	expected string
}

func (m *equalsMatcher) Match(s string) bool { return s == m.expected }

func (m *equalsMatcher) Description() string { return fmt.Sprintf("equals %q", m.expected) }

type regexMatcher struct {
	pattern string
}

func (m *regexMatcher) Match(s string) bool {
	re, err := regexp.Compile(m.pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func (m *regexMatcher) Description() string { return fmt.Sprintf("matches regex %q", m.pattern) }

type prefixMatcher struct {
	prefix string
}

func (m *prefixMatcher) Match(s string) bool { return strings.HasPrefix(s, m.prefix) }

func (m *prefixMatcher) Description() string { return fmt.Sprintf("has prefix %q", m.prefix) }

// Expectation implementations

type noErrorExpectation struct{}

func (e *noErrorExpectation) Check(r *ScenarioResult) error {
	if r.Error != nil {
		return fmt.Errorf("unexpected error: %v", r.Error)
	}
	return nil
}

func (e *noErrorExpectation) Description() string { return "no error" }

type errorExpectation struct {
	matcher StringMatcher
}

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if r.Error == nil {
		return fmt.Errorf("expected error, got nil")
	}
	if !e.matcher.Match(r.Error.Error()) {
		return fmt.Errorf("error %q does not match: %s", r.Error, e.matcher.Description())
	}
	return nil
}

func (e *errorExpectation) Description() string {
	return "error " + e.matcher.Description()
}

type completeExpectation struct{}

func (e *completeExpectation) Check(r *ScenarioResult) error {
	if !r.Complete {
		return fmt.Errorf("task not complete after %d steps", r.Steps)
	}
	return nil
}

func (e *completeExpectation) Description() string { return "task complete" }

type actionExpectation struct {
	action  string
	matcher StringMatcher
}

func (e *actionExpectation) Check(r *ScenarioResult) error {
	var seen []string
	for _, exec := range r.Executions {
		inv, ok := exec.Invocation()
		if !ok || inv.Action != e.action {
			continue
		}
		out := exec.Result()
		if exec.Failed() {
			out = exec.Error()
		}
		if e.matcher == nil || e.matcher.Match(out) {
			return nil
		}
		seen = append(seen, out)
	}
	if len(seen) > 0 {
		return fmt.Errorf("no output of %s %s, got %q", e.action, e.matcher.Description(), seen)
	}
	return fmt.Errorf("action %s was never executed", e.action)
}

func (e *actionExpectation) Description() string {
	if e.matcher == nil {
		return "action " + e.action
	}
	return fmt.Sprintf("action %s output %s", e.action, e.matcher.Description())
}

type storageExpectation struct {
	storage string
	key     string
	matcher StringMatcher
}

func (e *storageExpectation) Check(r *ScenarioResult) error {
	entries, ok := r.Storages[e.storage]
	if !ok {
		return fmt.Errorf("storage %s not found", e.storage)
	}
	for _, entry := range entries {
		if entry.Key == e.key {
			if !e.matcher.Match(entry.Data) {
				return fmt.Errorf("%s[%s] = %q does not match: %s", e.storage, e.key, entry.Data, e.matcher.Description())
			}
			return nil
		}
	}
	return fmt.Errorf("key %s not in storage %s", e.key, e.storage)
}

func (e *storageExpectation) Description() string {
	return fmt.Sprintf("storage %s[%s] %s", e.storage, e.key, e.matcher.Description())
}

type eventExpectation struct {
	eventType events.Type
}

func (e *eventExpectation) Check(r *ScenarioResult) error {
	for _, ev := range r.Events {
		if ev.Type == e.eventType {
			return nil
		}
	}
	return fmt.Errorf("event %s not emitted", e.eventType)
}

func (e *eventExpectation) Description() string { return fmt.Sprintf("event %s", e.eventType) }

type stepsExpectation struct {
	steps int
}

func (e *stepsExpectation) Check(r *ScenarioResult) error {
	if r.Steps != e.steps {
		return fmt.Errorf("expected %d steps, got %d", e.steps, r.Steps)
	}
	return nil
}

func (e *stepsExpectation) Description() string { return fmt.Sprintf("%d steps", e.steps) }
