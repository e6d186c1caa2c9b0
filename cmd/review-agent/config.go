/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chainguard.dev/reviewagent/session"
)

const (
	runtimeClaudeCode = "claude-code"
	runtimeMessages   = "messages"
)

// config is the whole environment surface of the command. Nothing below
// main reads the environment.
type config struct {
	// Identity. The session builder reports every missing field at once,
	// so none of these is marked required here.
	RepoOwner       string `env:"REPO_OWNER"`
	RepositoryOwner string `env:"GITHUB_REPOSITORY_OWNER"`
	RepoName        string `env:"REPO_NAME"`
	PRNumber        string `env:"PR_NUMBER"`
	CommitSHA       string `env:"COMMIT_SHA"`

	// Credentials.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	GitHubToken     string `env:"GITHUB_TOKEN"`

	// Vertex AI replaces the API key when both are set.
	VertexRegion  string `env:"CLOUD_ML_REGION"`
	VertexProject string `env:"ANTHROPIC_VERTEX_PROJECT_ID"`

	// Session.
	Runtime          string        `env:"RUNTIME,default=claude-code"`
	Model            string        `env:"MODEL,default=claude-sonnet-4-5"`
	MaxTurns         int           `env:"MAX_TURNS,default=30"`
	Permission       string        `env:"PERMISSION,default=auto_approve"`
	SessionTimeout   time.Duration `env:"SESSION_TIMEOUT,default=0s"`
	WorkingDirectory string        `env:"GITHUB_WORKSPACE"`
	GuidelinesFile   string        `env:"REVIEW_GUIDELINES_FILE"`
	VerifyReview     bool          `env:"VERIFY_REVIEW,default=false"`
	ReviewAuthor     string        `env:"REVIEW_AUTHOR"`

	// claude-code runtime.
	ClaudeBinary string   `env:"CLAUDE_BINARY,default=claude"`
	AllowedTools []string `env:"ALLOWED_TOOLS"`
	MCPConfig    string   `env:"MCP_CONFIG"`

	// GitHub endpoints, overridden for GitHub Enterprise.
	GitHubAPIURL     string `env:"GITHUB_API_URL,default=https://api.github.com/"`
	GitHubGraphQLURL string `env:"GITHUB_GRAPHQL_URL,default=https://api.github.com/graphql"`

	// Reporting.
	LogLevel        string `env:"LOG_LEVEL,default=info"`
	PostAbortNote   bool   `env:"POST_ABORT_NOTE,default=false"`
	DiagnosticsFile string `env:"DIAGNOSTICS_FILE"`
	StepSummary     string `env:"GITHUB_STEP_SUMMARY"`
	PushgatewayURL  string `env:"PUSHGATEWAY_URL"`
}

func (c *config) owner() string {
	if c.RepoOwner != "" {
		return c.RepoOwner
	}
	return c.RepositoryOwner
}

func (c *config) useVertex() bool {
	return c.VertexRegion != "" && c.VertexProject != ""
}

func (c *config) logLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, &session.ConfigurationError{Fields: []string{"LOG_LEVEL"}, Err: err}
	}
	return lvl, nil
}

// request builds the session request. Identity, limits and credentials
// are validated together.
func (c *config) request() (*session.Request, error) {
	var prNumber int
	if strings.TrimSpace(c.PRNumber) != "" {
		n, err := session.ParsePRNumber(c.PRNumber)
		if err != nil {
			return nil, err
		}
		prNumber = n
	}

	permission, err := session.ParsePermissionPolicy(c.Permission)
	if err != nil {
		return nil, &session.ConfigurationError{Fields: []string{"PERMISSION"}, Err: err}
	}
	switch c.Runtime {
	case runtimeClaudeCode, runtimeMessages:
	default:
		return nil, &session.ConfigurationError{
			Fields: []string{"RUNTIME"},
			Reason: fmt.Sprintf("%q is not one of %s, %s", c.Runtime, runtimeClaudeCode, runtimeMessages),
		}
	}

	opts := []session.Option{
		session.WithCredential("GITHUB_TOKEN", c.GitHubToken),
		session.WithEnv("GH_TOKEN=" + c.GitHubToken),
	}
	if c.useVertex() {
		opts = append(opts, session.WithEnv(
			"CLAUDE_CODE_USE_VERTEX=1",
			"CLOUD_ML_REGION="+c.VertexRegion,
			"ANTHROPIC_VERTEX_PROJECT_ID="+c.VertexProject,
		))
	} else {
		opts = append(opts, session.WithCredential("ANTHROPIC_API_KEY", c.AnthropicAPIKey))
	}
	if c.WorkingDirectory != "" {
		opts = append(opts, session.WithWorkingDirectory(c.WorkingDirectory))
	}
	if c.GuidelinesFile != "" {
		g, err := session.LoadGuidelines(c.GuidelinesFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, session.WithGuidelines(g))
	}

	return session.NewRequest(
		session.Identity{
			Owner:     c.owner(),
			Repo:      c.RepoName,
			PRNumber:  prNumber,
			CommitSHA: c.CommitSHA,
		},
		session.Limits{
			MaxTurns:   c.MaxTurns,
			Model:      c.Model,
			Permission: permission,
		},
		opts...,
	)
}
