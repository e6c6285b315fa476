// Copyright 2026 © The Nerve Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for nerve agent telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Run attributes
	AttrRunID       = "nerve.run.id"
	AttrRunStep     = "nerve.run.step"
	AttrRunMaxSteps = "nerve.run.max_steps"
	AttrNamespaces  = "nerve.run.namespaces"

	// Action attributes
	AttrActionName       = "nerve.action.name"
	AttrActionStatus     = "nerve.action.status"
	AttrActionPayload    = "nerve.action.payload"
	AttrActionResult     = "nerve.action.result"
	AttrActionDurationMs = "nerve.action.duration_ms"

	// Response attributes
	AttrResponseKind = "nerve.response.kind"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTools        = "gen_ai.request.tools"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

// StepAttributes returns common attributes for step spans.
func StepAttributes(runID string, step, maxSteps int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.Int(AttrRunStep, step),
	}
	if maxSteps > 0 {
		attrs = append(attrs, attribute.Int(AttrRunMaxSteps, maxSteps))
	}
	return attrs
}

// ActionAttributes returns attributes for an action span. Payload and result
// are truncated to maxLen bytes.
func ActionAttributes(name, status, payload, result string, durationMs float64, maxLen int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrActionName, name),
		attribute.String(AttrActionStatus, status),
		attribute.Float64(AttrActionDurationMs, durationMs),
	}
	if payload != "" {
		attrs = append(attrs, attribute.String(AttrActionPayload, truncate(payload, maxLen)))
	}
	if result != "" {
		attrs = append(attrs, attribute.String(AttrActionResult, truncate(result, maxLen)))
	}
	return attrs
}

// LLMAttributes returns attributes for generator call spans.
func LLMAttributes(msgCount, toolCount, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if toolCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTools, toolCount))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 500
	}
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
