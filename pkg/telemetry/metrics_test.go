// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestNewAgentMetrics(t *testing.T) {
	m, err := NewAgentMetrics()
	if err != nil {
		t.Fatalf("failed to create agent metrics: %v", err)
	}
	if m == nil {
		t.Fatal("expected non-nil AgentMetrics")
	}

	ctx := context.Background()
	m.RecordStep(ctx, "run-1")
	m.RecordAction(ctx, "save-memory", "success")
	m.RecordResponse(ctx, "unparsed")
	m.RecordGeneratorDuration(ctx, 250*time.Millisecond, true)
}

func TestNilAgentMetrics(t *testing.T) {
	var m *AgentMetrics
	ctx := context.Background()

	// Should not panic
	m.RecordStep(ctx, "run-1")
	m.RecordAction(ctx, "shell", "timeout")
	m.RecordResponse(ctx, "empty")
	m.RecordGeneratorDuration(ctx, time.Second, false)
}
