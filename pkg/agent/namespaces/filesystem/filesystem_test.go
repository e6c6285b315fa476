// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package filesystem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jllopis/nerve/pkg/agent"
	nervetest "github.com/jllopis/nerve/pkg/testing"
)

func TestListFolderContents(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	h := nervetest.NewHarness(t, []*agent.Namespace{New()})
	_, exec := h.Invoke("list-folder-contents", nil, dir)
	nervetest.NewAssertions(t).AssertExecution(exec).Succeeded().
		ResultContains("notes.txt").
		ResultContains("sub/")

	lines := strings.Split(exec.Result(), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d: %q", len(lines), exec.Result())
	}
}

func TestListEmptyFolder(t *testing.T) {
	h := nervetest.NewHarness(t, []*agent.Namespace{New()})
	_, exec := h.Invoke("list-folder-contents", nil, t.TempDir())
	nervetest.NewAssertions(t).AssertExecution(exec).Succeeded().ResultEquals("folder is empty")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte("[main]\nport=8080\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := nervetest.NewHarness(t, []*agent.Namespace{New()})
	a := nervetest.NewAssertions(t)

	_, exec := h.Invoke("read-file", nil, path)
	a.AssertExecution(exec).Succeeded().ResultEquals("[main]\nport=8080\n")

	_, exec = h.Invoke("read-file", nil, filepath.Join(t.TempDir(), "missing"))
	a.AssertExecution(exec).Failed().ErrorContains("failed to read")
}

func TestReadFileTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(path, []byte(strings.Repeat("a", maxReadBytes+10)), 0o644); err != nil {
		t.Fatal(err)
	}

	h := nervetest.NewHarness(t, []*agent.Namespace{New()})
	_, exec := h.Invoke("read-file", nil, path)
	nervetest.NewAssertions(t).AssertExecution(exec).Succeeded().ResultContains("[... file truncated ...]")
}
