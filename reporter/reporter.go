/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package reporter turns a session outcome into the operator summary and
// the process exit code. It never submits a review: that is the agent's
// job during the session. For aborted sessions it can post one neutral
// pull request comment.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/reviewagent/metrics"
	"chainguard.dev/reviewagent/session"
	"chainguard.dev/reviewagent/supervisor"
)

// ErrAlreadyReported is returned when an outcome is reported twice.
var ErrAlreadyReported = errors.New("outcome has already been reported")

// Noter posts a plain pull request comment. platform.Client satisfies it.
type Noter interface {
	Comment(ctx context.Context, id session.Identity, body string) error
}

// Reporter publishes outcomes.
type Reporter struct {
	out             io.Writer
	stepSummary     string
	diagnosticsFile string
	noter           Noter
	pusher          *metrics.Pusher
}

// Option configures a Reporter.
type Option func(*Reporter) error

// WithWriter sets the operator-facing writer. The default is os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(r *Reporter) error {
		if w == nil {
			return errors.New("writer cannot be nil")
		}
		r.out = w
		return nil
	}
}

// WithStepSummary appends a Markdown summary to the file at path, as
// GitHub Actions expects for $GITHUB_STEP_SUMMARY.
func WithStepSummary(path string) Option {
	return func(r *Reporter) error {
		r.stepSummary = path
		return nil
	}
}

// WithDiagnosticsFile writes the diagnostics log as JSON lines to path.
func WithDiagnosticsFile(path string) Option {
	return func(r *Reporter) error {
		r.diagnosticsFile = path
		return nil
	}
}

// WithNoter posts a neutral comment on the pull request when a session
// is aborted.
func WithNoter(n Noter) Option {
	return func(r *Reporter) error {
		if n == nil {
			return errors.New("noter cannot be nil")
		}
		r.noter = n
		return nil
	}
}

// WithPusher pushes the outcome gauges after each report.
func WithPusher(p *metrics.Pusher) Option {
	return func(r *Reporter) error {
		if p == nil {
			return errors.New("pusher cannot be nil")
		}
		r.pusher = p
		return nil
	}
}

// New returns a Reporter.
func New(opts ...Option) (*Reporter, error) {
	r := &Reporter{out: os.Stderr}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return r, nil
}

// ExitCode maps an outcome onto the process exit status.
func ExitCode(o *supervisor.Outcome) session.ExitCode {
	if o.Aborted() {
		return session.ExitAborted
	}
	return session.ExitSuccess
}

// Report publishes o and returns the exit code the process should end
// with. Each outcome is reported once; a second call has no effect and
// returns ErrAlreadyReported. Failures of the optional sinks are returned
// joined, without changing the exit code.
func (r *Reporter) Report(ctx context.Context, o *supervisor.Outcome) (session.ExitCode, error) {
	if o == nil {
		return session.ExitAborted, errors.New("no outcome to report")
	}
	code := ExitCode(o)
	if !o.Claim() {
		return code, ErrAlreadyReported
	}

	r.log(ctx, o)

	var errs []error
	if err := renderSummary(r.out, summaryRows(o)); err != nil {
		errs = append(errs, fmt.Errorf("writing summary: %w", err))
	}
	if r.stepSummary != "" {
		if err := r.appendStepSummary(o); err != nil {
			errs = append(errs, err)
		}
	}
	if r.diagnosticsFile != "" {
		if err := r.writeDiagnostics(o); err != nil {
			errs = append(errs, err)
		}
	}
	if r.noter != nil && o.Aborted() {
		if err := r.noter.Comment(ctx, o.Identity, abortNote(o)); err != nil {
			errs = append(errs, fmt.Errorf("posting abort note: %w", err))
		}
	}
	if r.pusher != nil {
		r.pusher.Record(sample(o))
		if err := r.pusher.Push(ctx, map[string]string{"repository": o.Identity.Repository()}); err != nil {
			errs = append(errs, err)
		}
	}
	return code, errors.Join(errs...)
}

func (r *Reporter) log(ctx context.Context, o *supervisor.Outcome) {
	log := clog.FromContext(ctx).
		With("verdict", o.Verdict).
		With("repository", o.Identity.Repository()).
		With("pull_request", o.Identity.PRNumber).
		With("commit_sha", o.Identity.CommitSHA).
		With("decode_errors", o.DecodeErrors)
	if res := o.Result; res != nil {
		log = log.With("duration_ms", res.DurationMs).
			With("turns", res.TurnCount).
			With("cost_usd", res.CostUSD).
			With("permission_denials", res.PermissionDenials)
	}
	if o.Note != "" {
		log = log.With("note", o.Note)
	}
	if o.Aborted() {
		log.With("fault", o.Fault).Warn("Review session aborted")
		return
	}
	log.Info("Review session completed")
}

func summaryRows(o *supervisor.Outcome) [][]string {
	id := o.Identity
	rows := [][]string{
		{"Pull request", fmt.Sprintf("%s#%d @ %s", id.Repository(), id.PRNumber, id.CommitSHA)},
		{"Verdict", string(o.Verdict)},
	}
	if res := o.Result; res != nil {
		rows = append(rows,
			[]string{"Duration", fmt.Sprintf("%dms", res.DurationMs)},
			[]string{"Turns", strconv.Itoa(res.TurnCount)},
			[]string{"Cost", formatCost(res.CostUSD)},
			[]string{"Permission denials", strconv.Itoa(res.PermissionDenials)},
		)
	} else {
		rows = append(rows,
			[]string{"Duration", "-"},
			[]string{"Turns", "-"},
			[]string{"Cost", "-"},
			[]string{"Permission denials", "-"},
		)
	}
	rows = append(rows, []string{"Tool calls", formatToolCalls(o.ToolCalls)})
	if o.DecodeErrors > 0 {
		rows = append(rows, []string{"Malformed events", strconv.Itoa(o.DecodeErrors)})
	}
	if o.Note != "" {
		rows = append(rows, []string{"Note", o.Note})
	}
	return rows
}

// formatCost prints dollars with at least two and at most four decimals.
func formatCost(usd float64) string {
	s := strconv.FormatFloat(usd, 'f', 4, 64)
	for strings.HasSuffix(s, "0") && len(s)-strings.IndexByte(s, '.') > 3 {
		s = s[:len(s)-1]
	}
	return "$" + s
}

func formatToolCalls(calls map[string]int) string {
	if len(calls) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(calls))
	for _, name := range slices.Sorted(maps.Keys(calls)) {
		parts = append(parts, fmt.Sprintf("%s=%d", name, calls[name]))
	}
	return strings.Join(parts, ", ")
}

func (r *Reporter) appendStepSummary(o *supervisor.Outcome) error {
	f, err := os.OpenFile(r.stepSummary, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening step summary: %w", err)
	}
	if _, err := fmt.Fprintf(f, "### Review session: %s\n\n", o.Verdict); err != nil {
		f.Close()
		return fmt.Errorf("writing step summary: %w", err)
	}
	if err := renderSummary(f, summaryRows(o)); err != nil {
		f.Close()
		return fmt.Errorf("writing step summary: %w", err)
	}
	if _, err := io.WriteString(f, "\n"); err != nil {
		f.Close()
		return fmt.Errorf("writing step summary: %w", err)
	}
	return f.Close()
}

func (r *Reporter) writeDiagnostics(o *supervisor.Outcome) error {
	f, err := os.Create(r.diagnosticsFile)
	if err != nil {
		return fmt.Errorf("creating diagnostics file: %w", err)
	}
	if err := o.Diagnostics.WriteJSONL(f); err != nil {
		f.Close()
		return fmt.Errorf("writing diagnostics: %w", err)
	}
	return f.Close()
}

// abortNote carries no verdict: an aborted session must not read as an
// approval or a rejection.
func abortNote(o *supervisor.Outcome) string {
	return fmt.Sprintf("Automated review of %s did not complete (%s). No review was submitted by this run.",
		o.Identity.CommitSHA, o.Note)
}

func sample(o *supervisor.Outcome) metrics.Sample {
	s := metrics.Sample{
		Verdict:      string(o.Verdict),
		DecodeErrors: o.DecodeErrors,
		ToolCalls:    o.ToolCalls,
	}
	if res := o.Result; res != nil {
		s.DurationMs = res.DurationMs
		s.Turns = res.TurnCount
		s.CostUSD = res.CostUSD
		s.PermissionDenials = res.PermissionDenials
	}
	return s
}
