/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudecode runs review sessions through the Claude Code CLI in
// non-interactive stream-json mode.
package claudecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"chainguard.dev/reviewagent/agentruntime"
	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/session"
)

const (
	// DefaultBinary is looked up on PATH.
	DefaultBinary = "claude"

	stderrTailSize = 4096
	waitDelay      = 5 * time.Second
)

// ExitError reports a CLI process that exited non-zero before producing a
// terminal result.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("claude exited with code %d", e.Code)
	}
	return fmt.Sprintf("claude exited with code %d: %s", e.Code, e.Stderr)
}

// Runtime implements agentruntime.Runtime on top of the claude CLI.
type Runtime struct {
	binary       string
	allowedTools []string
	mcpConfig    string
}

var _ agentruntime.Runtime = (*Runtime)(nil)

// Option configures a Runtime.
type Option func(*Runtime) error

// WithBinary overrides the CLI executable.
func WithBinary(path string) Option {
	return func(r *Runtime) error {
		if path == "" {
			return errors.New("claude binary path cannot be empty")
		}
		r.binary = path
		return nil
	}
}

// WithAllowedTools pre-approves tools, e.g. "Bash(gh pr review:*)". They
// apply under the interactive permission policy.
func WithAllowedTools(tools ...string) Option {
	return func(r *Runtime) error {
		r.allowedTools = append(r.allowedTools, tools...)
		return nil
	}
}

// WithMCPConfig passes an MCP server configuration file to the CLI.
func WithMCPConfig(path string) Option {
	return func(r *Runtime) error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("mcp config: %w", err)
		}
		r.mcpConfig = path
		return nil
	}
}

// New returns a Runtime using DefaultBinary unless overridden.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{binary: DefaultBinary}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runtime) args(cfg agentruntime.Config) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--max-turns", strconv.Itoa(cfg.MaxTurns),
		"--model", cfg.Model,
		"--permission-mode", permissionMode(cfg.Permission),
	}
	if len(r.allowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(r.allowedTools, ","))
	}
	if r.mcpConfig != "" {
		args = append(args, "--mcp-config", r.mcpConfig)
	}
	return args
}

func permissionMode(p session.PermissionPolicy) string {
	if p == session.AutoApprove {
		return "bypassPermissions"
	}
	return "default"
}

// Start implements agentruntime.Runtime. The instructions are written to
// the CLI's stdin; stdout is decoded line by line into session events.
func (r *Runtime) Start(ctx context.Context, instructions string, cfg agentruntime.Config) (event.Stream, error) {
	procCtx, cancel := context.WithCancel(ctx)

	// #nosec G204 - the binary is operator configuration, not agent input.
	cmd := exec.CommandContext(procCtx, r.binary, r.args(cfg)...)
	cmd.Dir = cfg.WorkingDirectory
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stdin = strings.NewReader(instructions)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole group so tool subprocesses go with the CLI.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s: %w", r.binary, err)
	}

	log := clog.FromContext(ctx).With("pid", cmd.Process.Pid)
	log.Info("Started claude CLI", "binary", r.binary, "model", cfg.Model, "max_turns", cfg.MaxTurns)

	items := make(chan event.Item)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(items)
		r.pump(procCtx, cmd, stdout, stderr, items)
	}()

	return event.NewChanStream(items, func() error {
		cancel()
		<-done
		return nil
	}), nil
}

// pump forwards decoded events until stdout is exhausted, then reaps the
// process. If the process fails before a Result was sent, the failure is
// delivered as a final stream error.
func (r *Runtime) pump(ctx context.Context, cmd *exec.Cmd, stdout, stderr io.Reader, items chan<- event.Item) {
	send := func(it event.Item) bool {
		select {
		case items <- it:
			return true
		case <-ctx.Done():
			return false
		}
	}

	tail := &tailBuffer{limit: stderrTailSize}
	sawResult := false

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(tail, stderr)
		return err
	})
	g.Go(func() error {
		err := event.Scan(stdout, func(ev event.Event, err error) bool {
			if err == nil && ev.Kind() == event.KindResult {
				sawResult = true
			}
			return send(event.Item{Event: ev, Err: err})
		})
		// The CLI blocks on a full stdout pipe and would never exit.
		_, _ = io.Copy(io.Discard, stdout)
		return err
	})
	scanErr := g.Wait()
	waitErr := cmd.Wait()

	log := clog.FromContext(ctx)
	if sawResult || ctx.Err() != nil {
		if waitErr != nil {
			log.Debug("claude CLI exited", "error", waitErr)
		}
		return
	}

	var exitErr *exec.ExitError
	switch {
	case scanErr != nil && !errors.Is(scanErr, os.ErrClosed):
		send(event.Item{Err: scanErr})
	case errors.As(waitErr, &exitErr):
		send(event.Item{Err: &ExitError{Code: exitErr.ExitCode(), Stderr: tail.String()}})
	case waitErr != nil:
		send(event.Item{Err: fmt.Errorf("waiting for claude: %w", waitErr)})
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
