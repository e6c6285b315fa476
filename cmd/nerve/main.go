// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the nerve CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jllopis/nerve/pkg/config"
)

var version = "dev"

type globalFlags struct {
	ConfigArgs []string
	ConfigPath string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fail(NewInvalidArgumentError("flags", err.Error()), false)
	}
	if global.Help || len(args) == 0 {
		printUsage(os.Stdout)
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fail(NewConfigError(err, global.ConfigPath), global.JSON)
	}

	switch args[0] {
	case "run":
		err = runRun(ctx, global, cfg, args[1:])
	case "runs":
		err = runRuns(ctx, global, cfg, args[1:], os.Stdout)
	case "namespaces":
		err = runNamespaces(global, args[1:], os.Stdout)
	case "help":
		printUsage(os.Stdout)
	case "version":
		fmt.Println("nerve", version)
	default:
		err = NewInvalidArgumentError(args[0], fmt.Sprintf("unknown command %q", args[0]))
	}
	if err != nil {
		fail(err, global.JSON)
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		name, value, inline := strings.Cut(arg, "=")
		switch name {
		case "-h", "--help":
			flags.Help = true
			return flags, nil, nil
		case "--json":
			flags.JSON = true
		case "--config", "--set", "--profile", "--env":
			if !inline {
				if i+1 >= len(args) {
					return flags, nil, fmt.Errorf("missing value for %s", name)
				}
				i++
				value = args[i]
			}
			flags.ConfigArgs = append(flags.ConfigArgs, name, value)
			if name == "--config" {
				flags.ConfigPath = value
			}
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `nerve runs LLM agents that complete tasks by invoking actions.

Usage:
  nerve [global flags] <command> [args]

Global flags:
  --config <path>      Path to a YAML configuration file
  --profile <name>     Also load the <config>.<name>.yaml profile file
  --set key=value      Override config (repeatable)
  --json               JSON output
  -h, --help           Show this help

Commands:
  run <tasklet> [-D NAME=VALUE]... [--prompt text] [--generator provider://model@host:port]
  runs [--run-id id] [--status success|error|unparsed] [--limit N]
  namespaces
  version
`)
}

func fail(err error, asJSON bool) {
	asCLIError(err).Print(os.Stderr, asJSON)
	os.Exit(1)
}

func writeJSONLine(w io.Writer, value any) {
	enc := json.NewEncoder(w)
	if err := enc.Encode(value); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writeRow(w *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	return truncate(value, 60)
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ",")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}
