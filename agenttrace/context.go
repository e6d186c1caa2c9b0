/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// ExecutionContext identifies the review a session belongs to.
type ExecutionContext struct {
	Repository string `json:"repository,omitempty"` // "owner/repo"
	PRNumber   int    `json:"pr_number,omitempty"`
	CommitSHA  string `json:"commit_sha,omitempty"`
	Runtime    string `json:"runtime,omitempty"` // "claude-code" or "messages"
}

// EnrichAttributes appends the bounded execution attributes to base.
// PR number and commit SHA stay on spans only: as metric labels every
// pull request would create a new time series.
func (e ExecutionContext) EnrichAttributes(base []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(base), len(base)+2)
	copy(attrs, base)
	if e.Repository != "" {
		attrs = append(attrs, attribute.String("repository", e.Repository))
	}
	if e.Runtime != "" {
		attrs = append(attrs, attribute.String("runtime", e.Runtime))
	}
	return attrs
}

func (e ExecutionContext) spanAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if e.Repository != "" {
		attrs = append(attrs, attribute.String("repository", e.Repository))
	}
	if e.PRNumber != 0 {
		attrs = append(attrs, attribute.Int("pr_number", e.PRNumber))
	}
	if e.CommitSHA != "" {
		attrs = append(attrs, attribute.String("commit_sha", e.CommitSHA))
	}
	if e.Runtime != "" {
		attrs = append(attrs, attribute.String("runtime", e.Runtime))
	}
	return attrs
}

type contextKey string

const executionContextKey contextKey = "execution_context"

// WithExecutionContext adds execution context to the Go context.
func WithExecutionContext(ctx context.Context, execCtx ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, execCtx)
}

// GetExecutionContext retrieves execution context from the Go context.
func GetExecutionContext(ctx context.Context) ExecutionContext {
	if execCtx, ok := ctx.Value(executionContextKey).(ExecutionContext); ok {
		return execCtx
	}
	return ExecutionContext{}
}
