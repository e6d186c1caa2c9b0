/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"chainguard.dev/reviewagent/event"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestSessionSpan(t *testing.T) {
	sr := withRecorder(t)

	ctx := WithExecutionContext(context.Background(), ExecutionContext{
		Repository: "acme/widgets",
		PRNumber:   7,
		CommitSHA:  "abc",
		Runtime:    "claude-code",
	})
	_, s := StartSession(ctx, "acme/widgets#7@abc")
	s.Observe(event.SystemInit{Model: "m1", Tools: []string{"Bash"}})
	s.Observe(event.Assistant{Segments: []event.Segment{event.Text{Body: "hi"}, event.ToolInvocation{Name: "Bash"}}})
	s.Skip(errors.New("bad line"))
	s.Observe(event.Result{Subtype: event.ResultSuccess, TurnCount: 2})
	s.End("approve", "", nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "review.session" {
		t.Errorf("Name() = %s", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("Status() = %v, want Ok", span.Status())
	}

	var names []string
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	want := []string{"system_init", "assistant", "decode_error", "result"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["pr_number"].AsInt64() != 7 {
		t.Errorf("pr_number = %v", attrs["pr_number"])
	}
	if attrs["review.verdict"].AsString() != "approve" {
		t.Errorf("review.verdict = %v", attrs["review.verdict"])
	}
	if attrs["agent.model"].AsString() != "m1" {
		t.Errorf("agent.model = %v", attrs["agent.model"])
	}
}

func TestSessionSpanFault(t *testing.T) {
	sr := withRecorder(t)

	_, s := StartSession(context.Background(), "k")
	s.End("aborted", "stream ended without terminal result", errors.New("eof"))

	span := sr.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("Status().Code = %v, want Error", span.Status().Code)
	}
	if span.Status().Description != "stream ended without terminal result" {
		t.Errorf("Status().Description = %q", span.Status().Description)
	}
}

func TestExecutionContext(t *testing.T) {
	if got := GetExecutionContext(context.Background()); got != (ExecutionContext{}) {
		t.Errorf("GetExecutionContext(empty) = %+v", got)
	}

	ec := ExecutionContext{Repository: "acme/widgets", PRNumber: 1, Runtime: "messages"}
	ctx := WithExecutionContext(context.Background(), ec)
	if got := GetExecutionContext(ctx); got != ec {
		t.Errorf("GetExecutionContext() = %+v, want %+v", got, ec)
	}

	attrs := ec.EnrichAttributes([]attribute.KeyValue{attribute.String("verdict", "approve")})
	if len(attrs) != 3 {
		t.Fatalf("EnrichAttributes() = %v", attrs)
	}
	for _, kv := range attrs {
		if kv.Key == "pr_number" {
			t.Error("pr_number must not be a metric label")
		}
	}
}
