/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agentruntime

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/session"
)

func TestConfigFor(t *testing.T) {
	req, err := session.NewRequest(
		session.Identity{Owner: "acme", Repo: "widgets", PRNumber: 3, CommitSHA: "abc"},
		session.Limits{MaxTurns: 12, Model: "claude-sonnet-4-5", Permission: session.Interactive},
		session.WithWorkingDirectory("/src"),
		session.WithCredential("ANTHROPIC_API_KEY", "k"),
	)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	want := Config{
		Permission:       session.Interactive,
		MaxTurns:         12,
		Model:            "claude-sonnet-4-5",
		WorkingDirectory: "/src",
		Env:              []string{"ANTHROPIC_API_KEY=k"},
	}
	got := ConfigFor(req)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ConfigFor() mismatch (-want +got):\n%s", diff)
	}

	clone := got.Clone()
	clone.Env[0] = "changed"
	if got.Env[0] != "ANTHROPIC_API_KEY=k" {
		t.Error("Clone() shares the Env slice")
	}
}

func TestFunc(t *testing.T) {
	var gotInstructions string
	rt := Func(func(_ context.Context, instructions string, _ Config) (event.Stream, error) {
		gotInstructions = instructions
		return event.Replay(), nil
	})
	s, err := rt.Start(context.Background(), "review", Config{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()
	if gotInstructions != "review" {
		t.Errorf("instructions = %q", gotInstructions)
	}
}
