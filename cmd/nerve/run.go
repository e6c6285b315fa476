// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jllopis/nerve/pkg/agent"
	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/agent/namespaces"
	"github.com/jllopis/nerve/pkg/config"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/mcp"
	"github.com/jllopis/nerve/pkg/resilience"
	"github.com/jllopis/nerve/pkg/runstore"
	"github.com/jllopis/nerve/pkg/tasklet"
	"github.com/jllopis/nerve/pkg/telemetry"
)

type runOptions struct {
	tasklet       string
	defines       map[string]string
	prompt        string
	generator     string
	embedder      string
	maxIterations int
	maxHistory    int
	nativeTools   string
	runID         string
	runStore      string
	timeout       time.Duration
}

func parseRunFlags(cfg *config.Config, args []string) (runOptions, error) {
	cmd := flag.NewFlagSet("run", flag.ContinueOnError)
	var defines multiFlag
	cmd.Var(&defines, "D", "Define a tasklet variable as NAME=VALUE (repeatable)")
	prompt := cmd.String("prompt", "", "Override the tasklet prompt")
	generator := cmd.String("generator", "", "Generator as provider://model@host:port")
	embedder := cmd.String("embedder", "", "Embedder as provider://model@host:port")
	maxIterations := cmd.Int("max-iterations", cfg.Agent.MaxIterations, "Maximum number of steps, 0 for no limit")
	maxHistory := cmd.Int("max-history", cfg.Agent.MaxHistory, "Executions sent back to the model, 0 for all")
	nativeTools := cmd.String("native-tools", cfg.Agent.NativeTools, "Native tool calls: auto, on or off")
	runID := cmd.String("run-id", "", "Run identifier, generated when empty")
	store := cmd.String("runstore", cfg.RunStore.Path, "SQLite file recording every execution")
	timeout := cmd.Duration("timeout", 0, "Abort the run after this duration")

	// the tasklet may come before the flags
	var positional string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional, args = args[0], args[1:]
	}
	if err := cmd.Parse(args); err != nil {
		return runOptions{}, err
	}
	if positional == "" {
		positional = cmd.Arg(0)
	}
	if positional == "" {
		return runOptions{}, fmt.Errorf("a tasklet file or folder is required")
	}

	vars, err := parseDefines(defines)
	if err != nil {
		return runOptions{}, err
	}
	return runOptions{
		tasklet:       positional,
		defines:       vars,
		prompt:        *prompt,
		generator:     *generator,
		embedder:      *embedder,
		maxIterations: *maxIterations,
		maxHistory:    *maxHistory,
		nativeTools:   *nativeTools,
		runID:         *runID,
		runStore:      *store,
		timeout:       *timeout,
	}, nil
}

func parseDefines(defines []string) (map[string]string, error) {
	vars := make(map[string]string, len(defines))
	for _, d := range defines {
		name, value, ok := strings.Cut(d, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid definition %q, expected NAME=VALUE", d)
		}
		vars[strings.TrimSpace(name)] = value
	}
	return vars, nil
}

func generatorConfig(base llm.Config, raw string) (llm.Config, error) {
	if raw == "" {
		return base, nil
	}
	cfg, err := llm.ParseGeneratorString(raw)
	if err != nil {
		return cfg, err
	}
	if cfg.APIKey == "" {
		cfg.APIKey = base.APIKey
	}
	if cfg.ContextWindow == 0 {
		cfg.ContextWindow = base.ContextWindow
	}
	return cfg, nil
}

// mergeServers combines configured MCP servers with the tasklet ones, which
// win on name clashes.
func mergeServers(global, local map[string]mcp.ServerConfig) map[string]mcp.ServerConfig {
	out := make(map[string]mcp.ServerConfig, len(global)+len(local))
	maps.Copy(out, global)
	maps.Copy(out, local)
	return out
}

func runRun(ctx context.Context, flags globalFlags, cfg *config.Config, args []string) error {
	opts, err := parseRunFlags(cfg, args)
	if err != nil {
		return NewInvalidArgumentError("run", err.Error())
	}

	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	shutdown, err := telemetry.Init("nerve", version, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	metrics, err := telemetry.NewAgentMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	task, err := tasklet.Load(opts.tasklet)
	if err != nil {
		return err
	}
	task.Define(opts.defines)
	if opts.prompt != "" {
		task.SetPrompt(opts.prompt)
	}
	if missing := task.MissingVariables(); len(missing) > 0 {
		return NewMissingVariablesError(missing)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	genCfg, err := generatorConfig(cfg.Generator, opts.generator)
	if err != nil {
		return NewGeneratorError(err, opts.generator)
	}
	generator, err := llm.New(ctx, genCfg)
	if err != nil {
		return NewGeneratorError(err, genCfg.Provider)
	}

	var embedder llm.Embedder
	if task.RAGConfig() != nil {
		embCfg, err := generatorConfig(cfg.Embedder, opts.embedder)
		if err != nil {
			return NewGeneratorError(err, opts.embedder)
		}
		if embedder, err = llm.NewEmbedder(ctx, embCfg); err != nil {
			return NewGeneratorError(err, embCfg.Provider)
		}
	}

	if servers := mergeServers(cfg.MCP, task.MCP); len(servers) > 0 {
		manager, err := mcp.Connect(ctx, servers, mcp.WithLogger(logger))
		if err != nil {
			return err
		}
		defer func() {
			if err := manager.Close(); err != nil {
				logger.Warn("closing mcp servers", slog.String("error", err.Error()))
			}
		}()
		nss, err := manager.Namespaces(ctx)
		if err != nil {
			return err
		}
		task.Attach(nss...)
	}

	tx, rx := events.New(0)
	defer rx.Close()

	state, err := agent.NewState(ctx, namespaces.Registry(logger), tx, task, embedder, opts.maxIterations,
		agent.WithVariables(task.Variables()),
		agent.WithStateLogger(logger),
	)
	if err != nil {
		return err
	}

	agentOpts := []agent.Option{
		agent.WithMaxHistory(opts.maxHistory),
		agent.WithToolsMode(agent.ToolsMode(opts.nativeTools)),
		agent.WithLogger(logger),
		agent.WithMetrics(metrics),
	}
	if cfg.Agent.RetryAttempts > 0 {
		agentOpts = append(agentOpts, agent.WithRetry(resilience.DefaultRetryConfig().WithMaxAttempts(cfg.Agent.RetryAttempts)))
	}
	if opts.runID != "" {
		agentOpts = append(agentOpts, agent.WithRunID(opts.runID))
	}
	if opts.runStore != "" {
		store, err := runstore.Open(opts.runStore)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer store.Close()
		agentOpts = append(agentOpts, agent.WithRecorder(store))
	}

	a, err := agent.New(generator, state, agentOpts...)
	if err != nil {
		return err
	}
	logger.Info("starting run",
		slog.String("run_id", a.RunID()),
		slog.String("tasklet", task.Name),
		slog.String("generator", genCfg.Provider+"://"+genCfg.Model),
		slog.Int("max_iterations", opts.maxIterations),
	)

	printer := newEventPrinter(logger)
	evCtx, stopEvents := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = rx.Run(evCtx, printer.handle)
	}()

	runErr := a.Run(ctx)

	stopEvents()
	wg.Wait()
	for _, ev := range rx.Drain() {
		printer.handle(ev)
	}

	if runErr != nil {
		return runErr
	}
	if flags.JSON {
		writeJSONLine(os.Stdout, runSummary(a, printer))
	}
	return nil
}

type summary struct {
	RunID      string        `json:"run_id"`
	Complete   bool          `json:"complete"`
	Impossible bool          `json:"impossible"`
	Reason     string        `json:"reason,omitempty"`
	Metrics    agent.Metrics `json:"metrics"`
}

func runSummary(a *agent.Agent, p *eventPrinter) summary {
	s := summary{RunID: a.RunID(), Complete: a.IsComplete(), Impossible: p.impossible, Reason: p.reason}
	_ = a.State().With(func(st *agent.State) error {
		s.Metrics = st.Metrics
		return nil
	})
	return s
}
