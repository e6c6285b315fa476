package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/jllopis/nerve/pkg/config"
	"github.com/jllopis/nerve/pkg/runstore"
)

func runRuns(ctx context.Context, flags globalFlags, cfg *config.Config, args []string, out io.Writer) error {
	cmd := flag.NewFlagSet("runs", flag.ContinueOnError)
	path := cmd.String("runstore", cfg.RunStore.Path, "SQLite file holding the recorded runs")
	runID := cmd.String("run-id", "", "Only show this run")
	status := cmd.String("status", "", "Only show executions with this status")
	limit := cmd.Int("limit", 0, "Maximum number of executions")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("runs", err.Error())
	}
	if *path == "" {
		return NewInvalidArgumentError("runstore", "no run store configured, set runstore.path or pass --runstore")
	}

	store, err := runstore.Open(*path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx, runstore.Filter{RunID: *runID, Status: *status, Limit: *limit})
	if err != nil {
		return err
	}
	printRecords(out, records, flags.JSON)
	return nil
}

func printRecords(out io.Writer, records []runstore.Record, asJSON bool) {
	if asJSON {
		for _, rec := range records {
			writeJSONLine(out, rec)
		}
		return
	}
	w := newTabWriter(out)
	writeRow(w, "RUN", "STEP", "ACTION", "STATUS", "OUTPUT")
	for _, rec := range records {
		output := rec.Result
		if rec.Error != "" {
			output = rec.Error
		}
		action := rec.Action
		if action == "" {
			action = "-"
		}
		writeRow(w, rec.RunID, strconv.Itoa(rec.Step), action, rec.Status, output)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(out, err)
	}
}
