/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agenttrace records review sessions as OpenTelemetry spans.
//
// One "review.session" span covers a supervisor run. Each session event
// becomes a span event, so a trace backend shows the same turn-by-turn
// record as the diagnostics log without a second storage path.
package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"chainguard.dev/reviewagent/event"
)

const instrumentationName = "chainguard.dev/reviewagent/agenttrace"

// Session is the span of one supervisor run.
type Session struct {
	span oteltrace.Span
}

// StartSession opens the session span. The returned context carries it.
func StartSession(ctx context.Context, key string) (context.Context, *Session) {
	tr := otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))

	attrs := append([]attribute.KeyValue{attribute.String("session.key", key)},
		GetExecutionContext(ctx).spanAttributes()...)
	ctx, span := tr.Start(ctx, "review.session", oteltrace.WithAttributes(attrs...))
	return ctx, &Session{span: span}
}

// Observe adds ev as a span event.
func (s *Session) Observe(ev event.Event) {
	event.Dispatch(ev, spanHandler{span: s.span})
}

// Skip records a decode error without failing the span.
func (s *Session) Skip(err error) {
	s.span.AddEvent("decode_error", oteltrace.WithAttributes(attribute.String("error", err.Error())))
}

// End closes the span with the session verdict. A non-nil fault marks the
// span as failed.
func (s *Session) End(verdict, note string, fault error) {
	s.span.SetAttributes(attribute.String("review.verdict", verdict))
	if note != "" {
		s.span.SetAttributes(attribute.String("review.note", note))
	}
	if fault != nil {
		s.span.RecordError(fault)
		s.span.SetStatus(codes.Error, note)
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

type spanHandler struct {
	span oteltrace.Span
}

func (h spanHandler) OnSystemInit(e event.SystemInit) {
	h.span.SetAttributes(
		attribute.String("agent.session_id", e.SessionID),
		attribute.String("agent.model", e.Model),
	)
	h.span.AddEvent("system_init", oteltrace.WithAttributes(
		attribute.StringSlice("tools", e.Tools),
		attribute.StringSlice("mcp_servers", e.MCPServers),
	))
}

func (h spanHandler) OnAssistant(e event.Assistant) {
	var texts, tools int
	var names []string
	for _, seg := range e.Segments {
		switch s := seg.(type) {
		case event.Text:
			texts++
		case event.ToolInvocation:
			tools++
			names = append(names, s.Name)
		}
	}
	h.span.AddEvent("assistant", oteltrace.WithAttributes(
		attribute.Int("segments.text", texts),
		attribute.Int("segments.tool_use", tools),
		attribute.StringSlice("tools", names),
	))
}

func (h spanHandler) OnResult(e event.Result) {
	h.span.AddEvent("result", oteltrace.WithAttributes(
		attribute.String("subtype", string(e.Subtype)),
		attribute.Int64("duration_ms", e.DurationMs),
		attribute.Int("turns", e.TurnCount),
		attribute.Float64("cost_usd", e.CostUSD),
		attribute.Int("permission_denials", e.PermissionDenials),
	))
}
