/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agentruntime defines how the supervisor starts an agent session.
//
// A Runtime turns instructions plus a Config into an event.Stream. Two
// implementations live in subpackages: claudecode drives the Claude Code
// CLI as a child process, and messages runs the conversation loop in
// process against the Anthropic Messages API.
package agentruntime

import (
	"context"
	"slices"

	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/session"
)

// Config carries the per-session settings a runtime needs.
type Config struct {
	Permission       session.PermissionPolicy
	MaxTurns         int
	Model            string
	WorkingDirectory string
	// Env holds KEY=VALUE entries added to the runtime environment.
	Env []string
}

// ConfigFor derives the runtime configuration of a request.
func ConfigFor(r *session.Request) Config {
	limits := r.Limits()
	return Config{
		Permission:       limits.Permission,
		MaxTurns:         limits.MaxTurns,
		Model:            limits.Model,
		WorkingDirectory: r.WorkingDirectory(),
		Env:              r.Env(),
	}
}

// Runtime starts agent sessions.
type Runtime interface {
	// Start launches a session. An error means no session is running and
	// nothing needs to be closed. On success the caller owns the stream and
	// must Close it.
	Start(ctx context.Context, instructions string, cfg Config) (event.Stream, error)
}

// Func adapts a function to Runtime.
type Func func(ctx context.Context, instructions string, cfg Config) (event.Stream, error)

// Start implements Runtime.
func (f Func) Start(ctx context.Context, instructions string, cfg Config) (event.Stream, error) {
	return f(ctx, instructions, cfg)
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.Env = slices.Clone(c.Env)
	return c
}
