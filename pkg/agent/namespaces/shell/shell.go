// Package shell runs commands through the system shell.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jllopis/nerve/pkg/agent"
)

const (
	// Timeout bounds a single command.
	Timeout = 120 * time.Second

	maxOutputBytes = 32 * 1024
)

// New returns the shell namespace.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "shell",
		Description: "Use this action to execute commands on the local system.",
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "shell",
				ActionDescription: "Execute a shell command and get its exit code and output.",
				Payload:           "ls -la",
				Deadline:          Timeout,
				Fn:                run,
			},
		},
	}
}

func run(ctx context.Context, _ *agent.SharedState, _ map[string]string, payload string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("failed to run command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXIT CODE: %d\n", exitCode)
	if out := stdout.String(); out != "" {
		fmt.Fprintf(&b, "\n%s", truncate(out))
	}
	if out := stderr.String(); out != "" {
		fmt.Fprintf(&b, "\nSTDERR:\n%s", truncate(out))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n\n[... output truncated ...]"
}
