// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

// Package filesystem exposes read-only access to local files.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/nerve/pkg/agent"
)

// maxReadBytes caps read-file output.
const maxReadBytes = 64 * 1024

// New returns the filesystem namespace.
func New() *agent.Namespace {
	return &agent.Namespace{
		Name:        "filesystem",
		Description: "Use these actions to inspect the local filesystem.",
		Actions: []agent.Action{
			&agent.FuncAction{
				ActionName:        "list-folder-contents",
				ActionDescription: "List the contents of a folder.",
				Payload:           "/path/to/folder",
				Fn:                listFolder,
			},
			&agent.FuncAction{
				ActionName:        "read-file",
				ActionDescription: "Read the contents of a file.",
				Payload:           "/path/to/file",
				Fn:                readFile,
			},
		},
	}
}

func listFolder(_ context.Context, _ *agent.SharedState, _ map[string]string, payload string) (string, error) {
	dir := filepath.Clean(strings.TrimSpace(payload))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return "folder is empty", nil
	}

	var b strings.Builder
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		fmt.Fprintf(&b, "%s %10d %s %s\n", info.Mode(), info.Size(), info.ModTime().Format("2006-01-02 15:04"), name)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func readFile(_ context.Context, _ *agent.SharedState, _ map[string]string, payload string) (string, error) {
	path := filepath.Clean(strings.TrimSpace(payload))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > maxReadBytes {
		return string(data[:maxReadBytes]) + "\n\n[... file truncated ...]", nil
	}
	return string(data), nil
}
