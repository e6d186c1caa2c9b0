/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records review session telemetry.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"chainguard.dev/reviewagent/agenttrace"
)

// MeterName is the instrumentation scope for review session metrics.
const MeterName = "chainguard.dev/reviewagent"

// AttributeEnricher adds contextual attributes before a measurement is
// recorded.
type AttributeEnricher func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue

// FromExecutionContext enriches with the bounded labels of the session's
// agenttrace.ExecutionContext.
func FromExecutionContext(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue {
	return agenttrace.GetExecutionContext(ctx).EnrichAttributes(base)
}

// Session holds the OpenTelemetry instruments of review sessions. Any
// instrument that fails to register degrades to a no-op.
type Session struct {
	sessions         metric.Int64Counter
	toolCalls        metric.Int64Counter
	decodeErrors     metric.Int64Counter
	turns            metric.Int64Histogram
	cost             metric.Float64Counter
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	enrich           AttributeEnricher
}

// NewSession registers instruments on the global meter provider.
func NewSession() *Session {
	return NewSessionWithProvider(otel.GetMeterProvider())
}

// NewSessionWithProvider registers instruments on mp.
func NewSessionWithProvider(mp metric.MeterProvider) *Session {
	meter := mp.Meter(MeterName, metric.WithInstrumentationVersion("1.0.0"))

	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			slog.Warn("Failed to create counter, metric disabled", "error", err, "metric", name)
			return noop.Int64Counter{}
		}
		return c
	}

	turns, err := meter.Int64Histogram("review.session.turns",
		metric.WithDescription("Turns used by finished review sessions"),
		metric.WithUnit("{turns}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 30, 50, 100))
	if err != nil {
		slog.Warn("Failed to create turns histogram, metric disabled", "error", err)
		turns = noop.Int64Histogram{}
	}
	cost, err := meter.Float64Counter("review.session.cost",
		metric.WithDescription("Model cost reported by review sessions"),
		metric.WithUnit("USD"))
	if err != nil {
		slog.Warn("Failed to create cost counter, metric disabled", "error", err)
		cost = noop.Float64Counter{}
	}

	return &Session{
		sessions:         counter("review.sessions", "Finished review sessions by verdict", "{sessions}"),
		toolCalls:        counter("review.tool.calls", "Tool invocations requested by the agent", "{calls}"),
		decodeErrors:     counter("review.decode.errors", "Session events skipped because they could not be decoded", "{events}"),
		turns:            turns,
		cost:             cost,
		promptTokens:     counter("genai.token.prompt", "The number of prompt tokens used", "{tokens}"),
		completionTokens: counter("genai.token.completion", "The number of completion tokens used", "{tokens}"),
		enrich:           FromExecutionContext,
	}
}

// SetAttributeEnricher replaces the enricher; nil disables enrichment.
func (m *Session) SetAttributeEnricher(enricher AttributeEnricher) {
	m.enrich = enricher
}

func (m *Session) attrs(ctx context.Context, base ...attribute.KeyValue) metric.MeasurementOption {
	if m.enrich != nil {
		base = m.enrich(ctx, base)
	}
	return metric.WithAttributes(base...)
}

// RecordToolCall counts one tool invocation.
func (m *Session) RecordToolCall(ctx context.Context, tool string) {
	m.toolCalls.Add(ctx, 1, m.attrs(ctx, attribute.String("tool", tool)))
}

// RecordDecodeError counts one skipped event.
func (m *Session) RecordDecodeError(ctx context.Context) {
	m.decodeErrors.Add(ctx, 1, m.attrs(ctx))
}

// RecordOutcome records a finished session. turns and cost are only
// recorded when the session produced a terminal result.
func (m *Session) RecordOutcome(ctx context.Context, verdict string, terminal bool, turns int, costUSD float64) {
	m.sessions.Add(ctx, 1, m.attrs(ctx, attribute.String("verdict", verdict)))
	if !terminal {
		return
	}
	m.turns.Record(ctx, int64(turns), m.attrs(ctx))
	m.cost.Add(ctx, costUSD, m.attrs(ctx))
}

// RecordTokens records token usage of one model call.
func (m *Session) RecordTokens(ctx context.Context, model string, prompt, completion int64) {
	opt := m.attrs(ctx, attribute.String("model", model))
	m.promptTokens.Add(ctx, prompt, opt)
	m.completionTokens.Add(ctx, completion, opt)
}
