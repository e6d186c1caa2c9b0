/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command review-agent runs one automated code review session against a
// pull request and exits with a status describing how it ended.
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"

	"chainguard.dev/reviewagent/agentruntime"
	"chainguard.dev/reviewagent/agentruntime/claudecode"
	"chainguard.dev/reviewagent/agentruntime/messages"
	"chainguard.dev/reviewagent/agenttrace"
	"chainguard.dev/reviewagent/checkout"
	"chainguard.dev/reviewagent/metrics"
	"chainguard.dev/reviewagent/platform"
	"chainguard.dev/reviewagent/reporter"
	"chainguard.dev/reviewagent/session"
	"chainguard.dev/reviewagent/supervisor"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, envconfig.OsLookuper(), defaultDeps(os.Stderr))
	cancel()
	os.Exit(code.Int())
}

// deps are the collaborators run builds from the configuration; tests
// replace them.
type deps struct {
	stderr      io.Writer
	newPlatform func(ctx context.Context, cfg *config) (platform.Client, error)
	newRuntime  func(ctx context.Context, cfg *config, req *session.Request, gh platform.Client, m *metrics.Session) (agentruntime.Runtime, error)
}

func defaultDeps(stderr io.Writer) deps {
	return deps{stderr: stderr, newPlatform: newPlatform, newRuntime: newRuntime}
}

func newPlatform(ctx context.Context, cfg *config) (platform.Client, error) {
	return platform.NewGitHub(ctx, cfg.GitHubToken, platform.WithBaseURLs(cfg.GitHubAPIURL, cfg.GitHubGraphQLURL))
}

func newRuntime(ctx context.Context, cfg *config, req *session.Request, gh platform.Client, m *metrics.Session) (agentruntime.Runtime, error) {
	switch cfg.Runtime {
	case runtimeMessages:
		var auth option.RequestOption
		if cfg.useVertex() {
			auth = vertex.WithGoogleAuth(ctx, cfg.VertexRegion, cfg.VertexProject)
		} else {
			auth = option.WithAPIKey(cfg.AnthropicAPIKey)
		}
		return messages.New(anthropic.NewClient(auth), gh, req.Identity(),
			messages.WithGuidelines(req.Guidelines()),
			messages.WithMetrics(m))
	default:
		opts := []claudecode.Option{
			claudecode.WithBinary(cfg.ClaudeBinary),
			claudecode.WithAllowedTools(cfg.AllowedTools...),
		}
		if cfg.MCPConfig != "" {
			opts = append(opts, claudecode.WithMCPConfig(cfg.MCPConfig))
		}
		return claudecode.New(opts...)
	}
}

// run executes the command and returns its exit code.
func run(ctx context.Context, lookuper envconfig.Lookuper, d deps) session.ExitCode {
	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		clog.ErrorContextf(ctx, "processing config: %v", err)
		return session.ExitConfig
	}

	lvl, err := cfg.logLevel()
	if err != nil {
		clog.ErrorContextf(ctx, "processing config: %v", err)
		return session.ExitConfig
	}
	ctx = clog.WithLogger(ctx, clog.New(slog.NewTextHandler(d.stderr, &slog.HandlerOptions{Level: lvl})))

	req, err := cfg.request()
	if err != nil {
		clog.ErrorContextf(ctx, "invalid configuration: %v", err)
		return session.ExitConfig
	}
	id := req.Identity()
	ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
		Repository: id.Repository(),
		PRNumber:   id.PRNumber,
		CommitSHA:  id.CommitSHA,
		Runtime:    cfg.Runtime,
	})
	clog.InfoContextf(ctx, "Reviewing %s with runtime %s and model %s", req.Key(), cfg.Runtime, cfg.Model)

	preflight(ctx, req)

	gh, err := d.newPlatform(ctx, &cfg)
	if err != nil {
		clog.ErrorContextf(ctx, "creating platform client: %v", err)
		return session.ExitConfig
	}

	m := metrics.NewSession()
	m.SetAttributeEnricher(metrics.FromExecutionContext)

	rt, err := d.newRuntime(ctx, &cfg, req, gh, m)
	if err != nil {
		clog.ErrorContextf(ctx, "creating %s runtime: %v", cfg.Runtime, err)
		return session.ExitConfig
	}

	supOpts := []supervisor.Option{
		supervisor.WithWatchdog(cfg.SessionTimeout),
		supervisor.WithMetrics(m),
	}
	if cfg.VerifyReview {
		supOpts = append(supOpts, supervisor.WithVerifier(gh))
		if cfg.ReviewAuthor != "" {
			supOpts = append(supOpts, supervisor.WithReviewAuthor(cfg.ReviewAuthor))
		}
	}
	sup, err := supervisor.New(rt, supOpts...)
	if err != nil {
		clog.ErrorContextf(ctx, "creating supervisor: %v", err)
		return session.ExitConfig
	}

	repOpts := []reporter.Option{
		reporter.WithWriter(d.stderr),
		reporter.WithStepSummary(cfg.StepSummary),
		reporter.WithDiagnosticsFile(cfg.DiagnosticsFile),
	}
	if cfg.PostAbortNote {
		repOpts = append(repOpts, reporter.WithNoter(gh))
	}
	if cfg.PushgatewayURL != "" {
		repOpts = append(repOpts, reporter.WithPusher(metrics.NewPusher(cfg.PushgatewayURL, "review-agent")))
	}
	rep, err := reporter.New(repOpts...)
	if err != nil {
		clog.ErrorContextf(ctx, "creating reporter: %v", err)
		return session.ExitConfig
	}

	if ctx.Err() != nil {
		clog.WarnContextf(ctx, "interrupted before the session started")
		return session.ExitInterrupted
	}

	outcome, err := sup.Run(ctx, req)
	if err != nil {
		var se *supervisor.RuntimeStartError
		if errors.As(err, &se) {
			clog.ErrorContextf(ctx, "%v", err)
			return session.ExitRuntimeStart
		}
		clog.ErrorContextf(ctx, "running session: %v", err)
		return session.ExitAborted
	}

	// Reporting runs on a fresh context so an interrupted session is
	// still summarized.
	code, err := rep.Report(context.WithoutCancel(ctx), outcome)
	if err != nil {
		clog.WarnContextf(ctx, "reporting outcome: %v", err)
	}
	return code
}

// preflight warns when the working tree does not hold the commit under
// review. The agent can still fetch the diff remotely, so it is not fatal.
func preflight(ctx context.Context, req *session.Request) {
	dir := req.WorkingDirectory()
	if dir == "" {
		dir = "."
	}
	st, err := checkout.Verify(dir, req.Identity().CommitSHA)
	if err != nil {
		clog.WarnContextf(ctx, "checkout preflight: %v", err)
		return
	}
	if !st.Clean {
		clog.WarnContextf(ctx, "working tree at %s has uncommitted changes", dir)
	}
}
