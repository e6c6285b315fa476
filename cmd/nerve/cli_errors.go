// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/jllopis/nerve/pkg/errors"
)

// CLIError wraps NerveError with a hint for the user.
type CLIError struct {
	*errors.NerveError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ne *errors.NerveError, hint string) *CLIError {
	return &CLIError{NerveError: ne, Hint: hint}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.NerveError == nil {
		return "unknown error"
	}
	msg := e.NerveError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Print writes the error to w as text or as a JSON object.
func (e *CLIError) Print(w io.Writer, asJSON bool) {
	if asJSON {
		writeJSONLine(w, map[string]any{"error": map[string]string{
			"code":    string(e.Code),
			"message": e.Message,
			"hint":    e.Hint,
		}})
		return
	}
	fmt.Fprintf(w, "Error [%s]: %s\n", e.Code, e.Message)
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewMissingVariablesError reports tasklet variables nobody defined.
func NewMissingVariablesError(names []string) *CLIError {
	ne := errors.Newf(errors.CodeMissingVariable, "undefined variables: %s", strings.Join(names, ", ")).
		WithContext("variables", names)
	return NewCLIError(ne, "define them with -D NAME=VALUE or export them in the environment")
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ne := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithRecoverable(false)
	return NewCLIError(ne, "run 'nerve help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ne := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ne, hint)
}

// NewGeneratorError reports a generator that could not be created.
func NewGeneratorError(err error, generator string) *CLIError {
	ne := errors.New(errors.CodeLLMError, "cannot create generator", err).
		WithContext("generator", generator)
	return NewCLIError(ne, "use the provider://model@host:port form, e.g. ollama://llama3@localhost:11434")
}

// asCLIError converts err for printing, keeping existing hints.
func asCLIError(err error) *CLIError {
	var cliErr *CLIError
	if stderrors.As(err, &cliErr) {
		return cliErr
	}
	if ne := errors.AsNerveError(err); ne != nil {
		return NewCLIError(ne, hintFor(ne.Code))
	}
	return NewCLIError(errors.New(errors.CodeInternal, err.Error(), err), "")
}

func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeBudgetExhausted:
		return "raise agent.max_iterations or pass --max-iterations 0 for no limit"
	case errors.CodeNamespaceNotFound:
		return "run 'nerve namespaces' to list the available namespaces"
	case errors.CodeLLMError:
		return "check that the generator is reachable and the model exists"
	case errors.CodeMissingVariable:
		return "define it with -D NAME=VALUE"
	default:
		return ""
	}
}
