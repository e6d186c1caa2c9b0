/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package session holds the validated inputs of one review run and the
// verdict and exit code vocabulary shared by the rest of the module.
package session

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
)

// PermissionPolicy controls whether the runtime asks before running
// mutating tools.
type PermissionPolicy string

const (
	// Interactive leaves the runtime's default permission prompts in place.
	// In a non-interactive run every prompt becomes a denial.
	Interactive PermissionPolicy = "interactive"
	// AutoApprove lets the runtime execute every tool without asking.
	AutoApprove PermissionPolicy = "auto_approve"
)

// ParsePermissionPolicy accepts the policy names plus the CLI spellings
// "default" and "bypassPermissions".
func ParsePermissionPolicy(s string) (PermissionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interactive", "default":
		return Interactive, nil
	case "auto_approve", "auto-approve", "bypasspermissions":
		return AutoApprove, nil
	default:
		return "", fmt.Errorf("unknown permission policy %q", s)
	}
}

// Identity names the pull request under review.
type Identity struct {
	Owner     string
	Repo      string
	PRNumber  int
	CommitSHA string
}

// Repository returns "owner/repo".
func (id Identity) Repository() string {
	return id.Owner + "/" + id.Repo
}

// Limits bound a session.
type Limits struct {
	MaxTurns   int
	Model      string
	Permission PermissionPolicy
}

// Request is the immutable description of one review session. It is
// built by NewRequest and handed to a runtime at most once.
type Request struct {
	identity     Identity
	limits       Limits
	instructions string
	workDir      string
	env          []string
	guidelines   *Guidelines

	claimed atomic.Bool
}

// Option configures a Request under construction.
type Option func(*Request) error

// WithWorkingDirectory sets the directory the runtime operates in.
func WithWorkingDirectory(dir string) Option {
	return func(r *Request) error {
		if strings.TrimSpace(dir) == "" {
			return &ConfigurationError{Fields: []string{"working directory"}}
		}
		r.workDir = dir
		return nil
	}
}

// WithEnv adds KEY=VALUE entries to the runtime environment.
func WithEnv(kv ...string) Option {
	return func(r *Request) error {
		for _, e := range kv {
			if k, _, ok := strings.Cut(e, "="); !ok || k == "" {
				return &ConfigurationError{Reason: fmt.Sprintf("malformed environment entry %q", e)}
			}
		}
		r.env = append(r.env, kv...)
		return nil
	}
}

// WithCredential adds a required secret to the runtime environment.
// An empty value is a configuration error.
func WithCredential(name, value string) Option {
	return func(r *Request) error {
		if strings.TrimSpace(value) == "" {
			return &ConfigurationError{Fields: []string{name}}
		}
		r.env = append(r.env, name+"="+value)
		return nil
	}
}

// WithGuidelines appends operator review guidelines to the instructions.
func WithGuidelines(g *Guidelines) Option {
	return func(r *Request) error {
		r.guidelines = g
		return nil
	}
}

// NewRequest validates the identity and limits and renders the session
// instructions. All validation failures are reported together in a
// *ConfigurationError.
func NewRequest(id Identity, limits Limits, opts ...Option) (*Request, error) {
	id = Identity{
		Owner:     strings.TrimSpace(id.Owner),
		Repo:      strings.TrimSpace(id.Repo),
		PRNumber:  id.PRNumber,
		CommitSHA: strings.TrimSpace(id.CommitSHA),
	}
	limits.Model = strings.TrimSpace(limits.Model)

	var fields []string
	if id.Owner == "" {
		fields = append(fields, "repository owner")
	}
	if id.Repo == "" {
		fields = append(fields, "repository name")
	}
	if id.PRNumber <= 0 {
		fields = append(fields, "pull request number")
	}
	if id.CommitSHA == "" {
		fields = append(fields, "commit SHA")
	}
	if limits.MaxTurns <= 0 {
		fields = append(fields, "max turns")
	}
	if limits.Model == "" {
		fields = append(fields, "model")
	}
	switch limits.Permission {
	case Interactive, AutoApprove:
	default:
		fields = append(fields, "permission policy")
	}
	cerr := &ConfigurationError{Fields: fields}
	r := &Request{identity: id, limits: limits}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			cerr.merge(err)
		}
	}
	if len(cerr.Fields) > 0 || cerr.Reason != "" || cerr.Err != nil {
		return nil, cerr
	}

	instructions, err := renderInstructions(id, r.guidelines)
	if err != nil {
		return nil, &ConfigurationError{Reason: "rendering instructions", Err: err}
	}
	r.instructions = instructions
	r.env = slices.Clip(r.env)
	return r, nil
}

// ParsePRNumber converts the PR_NUMBER input.
func ParsePRNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, &ConfigurationError{Fields: []string{"pull request number"}, Reason: fmt.Sprintf("%q is not a positive integer", s)}
	}
	return n, nil
}

func (r *Request) Identity() Identity   { return r.identity }
func (r *Request) Limits() Limits       { return r.limits }
func (r *Request) Instructions() string { return r.instructions }

// WorkingDirectory is empty when the runtime should use its own.
func (r *Request) WorkingDirectory() string { return r.workDir }

// Env returns a copy of the extra environment entries for the runtime.
func (r *Request) Env() []string { return slices.Clone(r.env) }

// Guidelines is nil when none were configured.
func (r *Request) Guidelines() *Guidelines { return r.guidelines }

// Key identifies the request in logs and metrics: owner/repo#N@sha.
func (r *Request) Key() string {
	return fmt.Sprintf("%s#%d@%s", r.identity.Repository(), r.identity.PRNumber, r.identity.CommitSHA)
}

// Claim marks the request as handed to a runtime. It reports false if the
// request was already claimed.
func (r *Request) Claim() bool {
	return r.claimed.CompareAndSwap(false, true)
}
