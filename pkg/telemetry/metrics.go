// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AgentMetrics records step loop activity through the global meter provider.
// A nil *AgentMetrics is valid and records nothing.
type AgentMetrics struct {
	// stepCounter tracks loop iterations
	stepCounter metric.Int64Counter

	// actionCounter tracks dispatched actions by name and outcome
	actionCounter metric.Int64Counter

	// responseCounter tracks model replies by kind (valid, empty, unparsed)
	responseCounter metric.Int64Counter

	generatorDuration metric.Float64Histogram
}

// NewAgentMetrics creates the agent instruments.
func NewAgentMetrics() (*AgentMetrics, error) {
	meter := otel.Meter("nerve/agent")

	stepCounter, err := meter.Int64Counter(
		"nerve.steps.total",
		metric.WithDescription("Total agent steps"),
	)
	if err != nil {
		return nil, err
	}

	actionCounter, err := meter.Int64Counter(
		"nerve.actions.total",
		metric.WithDescription("Dispatched actions by name and status"),
	)
	if err != nil {
		return nil, err
	}

	responseCounter, err := meter.Int64Counter(
		"nerve.responses.total",
		metric.WithDescription("Model responses by kind"),
	)
	if err != nil {
		return nil, err
	}

	generatorDuration, err := meter.Float64Histogram(
		"nerve.generator.duration_ms",
		metric.WithDescription("Generator chat latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &AgentMetrics{
		stepCounter:       stepCounter,
		actionCounter:     actionCounter,
		responseCounter:   responseCounter,
		generatorDuration: generatorDuration,
	}, nil
}

// RecordStep increments the step counter.
func (m *AgentMetrics) RecordStep(ctx context.Context, runID string) {
	if m == nil {
		return
	}
	m.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRunID, runID)))
}

// RecordAction counts one dispatch outcome.
func (m *AgentMetrics) RecordAction(ctx context.Context, action, status string) {
	if m == nil {
		return
	}
	m.actionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrActionName, action),
		attribute.String(AttrActionStatus, status),
	))
}

// RecordResponse counts one model reply of the given kind.
func (m *AgentMetrics) RecordResponse(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.responseCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrResponseKind, kind)))
}

// RecordGeneratorDuration records the latency of one chat call.
func (m *AgentMetrics) RecordGeneratorDuration(ctx context.Context, d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.generatorDuration.Record(ctx, float64(d.Microseconds())/1000.0,
		metric.WithAttributes(attribute.Bool("success", success)))
}
