// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package tasklet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/jllopis/nerve/pkg/agent"
)

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z0-9_-]+\}`)

// toolAction runs an external command. The command line is split into fields
// before substitution, so values never need quoting and no shell is involved.
type toolAction struct {
	spec   ActionSpec
	folder string
}

func newToolAction(spec ActionSpec, folder string) *toolAction {
	return &toolAction{spec: spec, folder: folder}
}

func (a *toolAction) Name() string                         { return a.spec.Name }
func (a *toolAction) Description() string                  { return a.spec.Description }
func (a *toolAction) ExampleAttributes() map[string]string { return a.spec.Args }
func (a *toolAction) ExamplePayload() string               { return a.spec.ExamplePayload }
func (a *toolAction) RequiredVariables() []string          { return nil }
func (a *toolAction) Timeout() time.Duration               { return a.spec.Timeout }

// Run implements agent.Action.
func (a *toolAction) Run(ctx context.Context, state *agent.SharedState, attrs map[string]string, payload string) (string, error) {
	var vars map[string]string
	_ = state.With(func(s *agent.State) error {
		vars = s.Variables()
		return nil
	})

	argv, err := a.command(vars, attrs, payload)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = a.folder

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = strings.TrimSpace(stdout.String())
			}
			return "", fmt.Errorf("%s exited with code %d: %s", argv[0], exitErr.ExitCode(), msg)
		}
		return "", err
	}

	out := stdout.String()
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		out += "\n" + errOut
	}
	return strings.TrimSpace(out), nil
}

// command expands the tool template into argv. Variables are resolved
// before placeholders so values coming from the model are never expanded.
func (a *toolAction) command(vars, attrs map[string]string, payload string) ([]string, error) {
	fields := strings.Fields(a.spec.Tool)
	argv := make([]string, 0, len(fields))
	for _, field := range fields {
		var missing string
		field = variablePattern.ReplaceAllStringFunc(field, func(m string) string {
			name := strings.Trim(m[1:], "{}")
			if v, ok := lookup(vars, name); ok {
				return v
			}
			if missing == "" {
				missing = name
			}
			return m
		})
		if missing != "" {
			return nil, agent.MissingVariable(missing)
		}

		field = placeholderPattern.ReplaceAllStringFunc(field, func(m string) string {
			key := m[1 : len(m)-1]
			if key == "payload" {
				return payload
			}
			if v, ok := attrs[key]; ok {
				return v
			}
			return m
		})
		argv = append(argv, field)
	}
	return argv, nil
}
