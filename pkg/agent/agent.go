// Package agent implements the task execution loop: state, namespaces and
// actions, history, prompt rendering, reply parsing and dispatch.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/nerve/pkg/agent/events"
	"github.com/jllopis/nerve/pkg/llm"
	"github.com/jllopis/nerve/pkg/resilience"
	"github.com/jllopis/nerve/pkg/telemetry"
)

// ToolsMode selects how actions are offered to the model.
type ToolsMode string

const (
	// ToolsAuto probes the generator on the first step.
	ToolsAuto ToolsMode = "auto"
	// ToolsNative always sends actions as function tools.
	ToolsNative ToolsMode = "on"
	// ToolsText always describes actions in the system prompt.
	ToolsText ToolsMode = "off"
)

// Recorder persists executions as they happen.
type Recorder interface {
	Record(ctx context.Context, runID string, step int, exec Execution) error
}

// Agent drives one run.
type Agent struct {
	runID      string
	generator  llm.Generator
	state      *SharedState
	maxHistory int
	toolsMode  ToolsMode
	native     *bool
	retry      resilience.RetryConfig
	recorder   Recorder
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *telemetry.AgentMetrics
}

var ErrMissingGenerator = errors.New("agent generator is required")

// Option configures an Agent instance.
type Option func(*Agent) error

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(a *Agent) error {
		if id == "" {
			return errors.New("run id must not be empty")
		}
		a.runID = id
		return nil
	}
}

// WithMaxHistory bounds the executions sent back to the model. Zero sends all.
func WithMaxHistory(n int) Option {
	return func(a *Agent) error {
		if n < 0 {
			return fmt.Errorf("max history must be >= 0, got %d", n)
		}
		a.maxHistory = n
		return nil
	}
}

// WithToolsMode selects native tool calls, text prompting or auto detection.
func WithToolsMode(mode ToolsMode) Option {
	return func(a *Agent) error {
		switch mode {
		case ToolsAuto, ToolsNative, ToolsText:
			a.toolsMode = mode
			return nil
		case "":
			a.toolsMode = ToolsAuto
			return nil
		default:
			return fmt.Errorf("unknown tools mode '%s'", mode)
		}
	}
}

// WithRetry sets the retry policy for generator calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(a *Agent) error {
		a.retry = cfg
		return nil
	}
}

// WithRecorder attaches an execution recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Agent) error {
		a.recorder = r
		return nil
	}
}

// WithLogger sets the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithMetrics attaches OpenTelemetry instruments.
func WithMetrics(m *telemetry.AgentMetrics) Option {
	return func(a *Agent) error {
		a.metrics = m
		return nil
	}
}

// New creates an agent over state.
func New(generator llm.Generator, state *State, opts ...Option) (*Agent, error) {
	if generator == nil {
		return nil, ErrMissingGenerator
	}
	if state == nil {
		return nil, errors.New("agent state is required")
	}
	a := &Agent{
		runID:     uuid.NewString(),
		generator: generator,
		state:     NewSharedState(state),
		toolsMode: ToolsAuto,
		retry:     resilience.DefaultRetryConfig(),
		logger:    slog.Default(),
		tracer:    otel.Tracer("nerve/agent"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// RunID returns the run identifier.
func (a *Agent) RunID() string { return a.runID }

// State returns the shared state.
func (a *Agent) State() *SharedState { return a.state }

// IsComplete reports whether the task reached a terminal completion.
func (a *Agent) IsComplete() bool {
	var done bool
	_ = a.state.With(func(s *State) error {
		done = s.IsComplete()
		return nil
	})
	return done
}

// Run steps until the task completes or a step fails.
func (a *Agent) Run(ctx context.Context) error {
	ctx = telemetry.WithRunID(ctx, a.runID)
	for !a.IsComplete() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) nativeTools(ctx context.Context) bool {
	if a.native != nil {
		return *a.native
	}
	native := false
	switch a.toolsMode {
	case ToolsNative:
		native = true
	case ToolsAuto:
		supported, err := a.generator.CheckNativeToolsSupport(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "native tools probe failed, using text prompting", slog.String("error", err.Error()))
		}
		native = supported
	}
	a.logger.DebugContext(ctx, "tools mode resolved", slog.Bool("native", native))
	a.native = &native
	return native
}

// Step runs one iteration: advance the budget, query the generator, interpret
// the reply and dispatch at most one action. Errors are fatal to the run.
func (a *Agent) Step(ctx context.Context) (err error) {
	ctx = telemetry.WithRunID(ctx, a.runID)

	ctx, span := a.tracer.Start(ctx, "agent.step")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var (
		opts       *llm.ChatOptions
		step       int
		maxSteps   int
		historyLen int
		actions    []string
	)
	err = a.state.With(func(s *State) error {
		stepErr := s.OnStep()
		step, maxSteps = s.Metrics.CurrentStep, s.Metrics.MaxSteps
		return stepErr
	})
	span.SetAttributes(telemetry.StepAttributes(a.runID, step, maxSteps)...)
	if err != nil {
		return err
	}
	a.metrics.RecordStep(ctx, a.runID)

	native := a.nativeTools(ctx)
	err = a.state.With(func(s *State) error {
		historyLen = s.history.Len()
		actions = s.ActionNames()
		var buildErr error
		opts, buildErr = BuildChatOptions(s, a.maxHistory, native)
		if buildErr != nil {
			return buildErr
		}
		return s.OnEvent(events.MetricsUpdate(s.Metrics))
	})
	if err != nil {
		return err
	}

	resp, err := a.chat(ctx, opts)
	if err != nil {
		return err
	}

	if strings.TrimSpace(resp.Content) == "" && len(resp.ToolCalls) == 0 {
		a.metrics.RecordResponse(ctx, "empty")
		a.logger.WarnContext(ctx, "empty response", slog.Int("step", step))
		return a.state.With(func(s *State) error {
			s.Metrics.EmptyResponses++
			return s.OnEvent(events.EmptyResponse())
		})
	}

	invocations, parseErr := ParseResponse(resp, actions)
	if parseErr != nil {
		a.metrics.RecordResponse(ctx, "unparsed")
		a.logger.WarnContext(ctx, "unparsed response", slog.Int("step", step), slog.String("error", parseErr.Error()))
		err = a.state.With(func(s *State) error {
			s.Metrics.UnparsedResponses++
			feedback := describeParseError(parseErr)
			s.AddUnparsedResponseToHistory(resp.Content, feedback)
			return s.OnEvent(events.InvalidResponse(resp.Content, feedback))
		})
		if err != nil {
			return err
		}
		a.record(ctx, step, historyLen)
		return nil
	}

	a.metrics.RecordResponse(ctx, "valid")
	if len(invocations) > 1 {
		a.logger.DebugContext(ctx, "ignoring extra invocations", slog.Int("count", len(invocations)-1))
	}
	inv := invocations[0]

	err = a.state.With(func(s *State) error {
		s.Metrics.ValidResponses++
		if thought := strings.TrimSpace(resp.Content); thought != "" && len(resp.ToolCalls) > 0 {
			return s.OnEvent(events.Thinking(thought))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := a.dispatch(ctx, inv); err != nil {
		return err
	}
	a.record(ctx, step, historyLen)
	return nil
}

func (a *Agent) chat(ctx context.Context, opts *llm.ChatOptions) (*llm.ChatResponse, error) {
	ctx, span := a.tracer.Start(ctx, "generator.chat")
	defer span.End()
	span.SetAttributes(telemetry.LLMAttributes(len(opts.Messages()), len(opts.Tools), 0)...)

	start := time.Now()
	resp, err := resilience.DoValue(ctx, a.retry, func() (*llm.ChatResponse, error) {
		resp, err := a.generator.Chat(ctx, opts)
		if err != nil {
			a.logger.WarnContext(ctx, "generator call failed", slog.String("error", err.Error()))
			return nil, WrapLLMError(err)
		}
		return resp, nil
	})
	elapsed := time.Since(start)
	a.metrics.RecordGeneratorDuration(ctx, elapsed, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, float64(elapsed.Milliseconds()))...)
	span.SetAttributes(attribute.Int(telemetry.AttrLLMToolCalls, len(resp.ToolCalls)))
	return resp, nil
}

func (a *Agent) dispatch(ctx context.Context, inv Invocation) error {
	ctx, span := a.tracer.Start(ctx, "action.run")
	defer span.End()

	start := time.Now()
	status, err := Dispatch(ctx, a.state, inv)
	elapsed := time.Since(start)

	var result string
	_ = a.state.With(func(s *State) error {
		if n := s.history.Len(); n > 0 {
			last := s.history.executions[n-1]
			result = last.Result()
			if last.Failed() {
				result = last.Error()
			}
		}
		return nil
	})

	span.SetAttributes(telemetry.ActionAttributes(inv.Action, string(status), inv.Payload, result, float64(elapsed.Microseconds())/1000.0, 500)...)
	a.metrics.RecordAction(ctx, inv.Action, string(status))

	level := slog.LevelInfo
	if status != StatusSuccess {
		level = slog.LevelWarn
		span.SetStatus(codes.Error, string(status))
	}
	a.logger.Log(ctx, level, "action executed",
		slog.String("action", inv.Action),
		slog.String("status", string(status)),
		slog.Duration("elapsed", elapsed),
	)

	if err != nil {
		span.RecordError(err)
	}
	return err
}

// record hands every execution appended since historyLen to the recorder.
func (a *Agent) record(ctx context.Context, step, historyLen int) {
	if a.recorder == nil {
		return
	}
	var fresh []Execution
	_ = a.state.With(func(s *State) error {
		if s.history.Len() > historyLen {
			fresh = append(fresh, s.history.executions[historyLen:]...)
		}
		return nil
	})
	for _, exec := range fresh {
		if err := a.recorder.Record(ctx, a.runID, step, exec); err != nil {
			a.logger.WarnContext(ctx, "failed to record execution", slog.String("error", err.Error()))
		}
	}
}
