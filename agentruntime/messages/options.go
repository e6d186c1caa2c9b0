/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package messages

import (
	"errors"
	"fmt"

	"chainguard.dev/reviewagent/metrics"
	"chainguard.dev/reviewagent/retry"
	"chainguard.dev/reviewagent/session"
)

// Option configures a Runtime.
type Option func(*Runtime) error

// WithMaxTokens sets the maximum tokens per model response.
func WithMaxTokens(tokens int64) Option {
	return func(r *Runtime) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		if tokens > 32000 {
			return fmt.Errorf("max tokens %d exceeds maximum of 32000", tokens)
		}
		r.maxTokens = tokens
		return nil
	}
}

// WithRetryConfig sets the retry configuration for transient API errors
// (429 rate limits, 529 overloaded).
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(r *Runtime) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		r.retry = cfg
		return nil
	}
}

// WithMetrics records token usage on m.
func WithMetrics(m *metrics.Session) Option {
	return func(r *Runtime) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		r.metrics = m
		return nil
	}
}

// WithGuidelines hides the files the guidelines ignore from
// get_changed_files.
func WithGuidelines(g *session.Guidelines) Option {
	return func(r *Runtime) error {
		r.guidelines = g
		return nil
	}
}
