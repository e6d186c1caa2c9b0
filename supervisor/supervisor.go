/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package supervisor runs one review session: it starts the agent runtime,
// feeds every event to a classifier in arrival order and maps the way the
// stream ends onto an Outcome.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"chainguard.dev/reviewagent/agentruntime"
	"chainguard.dev/reviewagent/agenttrace"
	"chainguard.dev/reviewagent/classifier"
	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/metrics"
	"chainguard.dev/reviewagent/platform"
	"chainguard.dev/reviewagent/session"
)

// Verifier looks up the reviews submitted for a pull request commit.
// platform.Client satisfies it.
type Verifier interface {
	Reviews(ctx context.Context, id session.Identity) ([]platform.SubmittedReview, error)
}

// Supervisor drives sessions on one runtime.
type Supervisor struct {
	runtime      agentruntime.Runtime
	verifier     Verifier
	reviewAuthor string
	watchdog     time.Duration
	metrics      *metrics.Session
}

// reviewClockSkew widens the verification window: platform timestamps
// have second precision and the local clock may run ahead.
const reviewClockSkew = 30 * time.Second

// Option configures a Supervisor.
type Option func(*Supervisor) error

// WithVerifier checks, after a successful session, that a review for the
// commit exists on the platform. The platform's review state then decides
// the verdict.
func WithVerifier(v Verifier) Option {
	return func(s *Supervisor) error {
		if v == nil {
			return errors.New("verifier cannot be nil")
		}
		s.verifier = v
		return nil
	}
}

// WithReviewAuthor restricts verification to reviews submitted by login.
func WithReviewAuthor(login string) Option {
	return func(s *Supervisor) error {
		if strings.TrimSpace(login) == "" {
			return errors.New("review author cannot be empty")
		}
		s.reviewAuthor = login
		return nil
	}
}

// WithWatchdog aborts sessions that run longer than d. Zero disables it.
func WithWatchdog(d time.Duration) Option {
	return func(s *Supervisor) error {
		if d < 0 {
			return fmt.Errorf("watchdog must not be negative, got %s", d)
		}
		s.watchdog = d
		return nil
	}
}

// WithMetrics records session metrics on m.
func WithMetrics(m *metrics.Session) Option {
	return func(s *Supervisor) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		s.metrics = m
		return nil
	}
}

// New returns a Supervisor for rt.
func New(rt agentruntime.Runtime, opts ...Option) (*Supervisor, error) {
	if rt == nil {
		return nil, errors.New("runtime cannot be nil")
	}
	s := &Supervisor{runtime: rt}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return s, nil
}

// Run executes the session for req and returns its outcome. A request runs
// at most once: later calls return ErrAlreadyRun without starting the
// runtime. A start failure is returned as *RuntimeStartError with no
// outcome; every failure after the start is folded into the outcome.
func (s *Supervisor) Run(ctx context.Context, req *session.Request) (*Outcome, error) {
	if !req.Claim() {
		return nil, ErrAlreadyRun
	}

	id := req.Identity()
	if agenttrace.GetExecutionContext(ctx).Repository == "" {
		ctx = agenttrace.WithExecutionContext(ctx, agenttrace.ExecutionContext{
			Repository: id.Repository(),
			PRNumber:   id.PRNumber,
			CommitSHA:  id.CommitSHA,
		})
	}
	log := clog.FromContext(ctx).With("session", req.Key())
	ctx = clog.WithLogger(ctx, log)

	ctx, span := agenttrace.StartSession(ctx, req.Key())

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.watchdog > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.watchdog)
	}
	defer cancel()

	started := time.Now()
	stream, err := s.runtime.Start(runCtx, req.Instructions(), agentruntime.ConfigFor(req))
	if err != nil {
		startErr := &RuntimeStartError{Err: err}
		span.End(string(session.VerdictAborted), "runtime start failed", startErr)
		return nil, startErr
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.With("error", err).Warn("Closing event stream")
		}
	}()
	log.Info("Review session started")

	c := classifier.New()
	fault := s.consume(ctx, runCtx, stream, c, span)

	o := s.conclude(ctx, id, c, fault, started)
	span.End(string(o.Verdict), o.Note, o.Fault)
	if s.metrics != nil {
		var turns int
		var cost float64
		if o.Result != nil {
			turns, cost = o.Result.TurnCount, o.Result.CostUSD
		}
		s.metrics.RecordOutcome(ctx, string(o.Verdict), o.Result != nil, turns, cost)
	}

	log.With("verdict", o.Verdict).With("note", o.Note).Info("Review session finished")
	return o, nil
}

// consume pulls events until the terminal Result. It returns nil once a
// Result was observed and the reason the stream stopped otherwise.
func (s *Supervisor) consume(ctx, runCtx context.Context, stream event.Stream, c *classifier.Classifier, span *agenttrace.Session) *StreamFault {
	log := clog.FromContext(ctx)
	for {
		ev, err := stream.Next(runCtx)
		if err != nil {
			var de *event.DecodeError
			switch {
			case errors.As(err, &de):
				log.With("error", err).Warn("Skipping malformed event")
				c.Skip(err)
				span.Skip(err)
				if s.metrics != nil {
					s.metrics.RecordDecodeError(ctx)
				}
				continue
			case ctx.Err() != nil:
				return &StreamFault{Reason: NoteInterrupted, Err: ctx.Err()}
			case runCtx.Err() != nil:
				return &StreamFault{Reason: NoteWatchdog, Err: runCtx.Err()}
			default:
				return &StreamFault{Reason: NoteStreamEnded, Err: err}
			}
		}

		span.Observe(ev)
		if s.metrics != nil {
			if a, ok := ev.(event.Assistant); ok {
				for _, seg := range a.Segments {
					if inv, ok := seg.(event.ToolInvocation); ok {
						s.metrics.RecordToolCall(ctx, inv.Name)
					}
				}
			}
		}
		if c.Observe(ev) {
			return nil
		}
	}
}

// conclude maps how the session ended onto its outcome.
func (s *Supervisor) conclude(ctx context.Context, id session.Identity, c *classifier.Classifier, fault *StreamFault, started time.Time) *Outcome {
	o := &Outcome{
		Identity:     id,
		ToolCalls:    c.ToolCalls(),
		DecodeErrors: c.DecodeErrors(),
	}
	abort := func(note string, err error) *Outcome {
		c.Note(note)
		o.Verdict = session.VerdictAborted
		o.Note = note
		o.Summary = note
		o.Fault = err
		o.Diagnostics = c.Diagnostics()
		return o
	}

	if fault != nil {
		return abort(fault.Reason, fault)
	}

	res, _ := c.Terminal()
	o.Result = &res
	switch res.Subtype {
	case event.ResultSuccess:
		// The claude CLI reports API failures, such as a rejected key, as
		// a success carrying is_error.
		if res.IsError {
			return abort(NoteErrorResult, &ResultError{Result: res})
		}
	case event.ResultErrorMaxTurns:
		return abort(NoteTurnLimit, &ResultError{Result: res})
	case event.ResultErrorDuringExecution:
		return abort(NoteExecutionError, &ResultError{Result: res})
	default:
		return abort(NoteUnknownResult, &ResultError{Result: res})
	}

	o.Summary = res.ResultText
	action, ok := c.LastReviewAction()
	if ok {
		o.Review = &action
		o.Verdict = action.Verdict
	} else if rejectedReview(c.ReviewActions()) {
		// The agent tried to review and was stopped; its final text is no
		// evidence of a verdict.
		o.Verdict = session.VerdictComment
		o.Note = NoteReviewRejected
	} else if v, ok := verdictHint(res.ResultText); ok {
		o.Verdict = v
		o.Note = NoteVerdictFromText
	} else {
		o.Verdict = session.VerdictComment
		o.Note = NoteNoReview
	}

	if s.verifier != nil {
		v, err := s.verify(ctx, id, started)
		if err != nil {
			clog.FromContext(ctx).With("error", err).Warn("Review verification failed")
			return abort(NoteReviewNotFound, err)
		}
		o.Verdict = v
		o.Note = ""
	}

	o.Diagnostics = c.Diagnostics()
	return o
}

func rejectedReview(actions []classifier.ReviewAction) bool {
	for _, a := range actions {
		if a.Rejected {
			return true
		}
	}
	return false
}

// verify returns the verdict of the newest review at the commit submitted
// during this session, by the configured author if there is one. Reviews
// without a submission time cannot be placed in the session and are
// passed over.
func (s *Supervisor) verify(ctx context.Context, id session.Identity, since time.Time) (session.Verdict, error) {
	reviews, err := s.verifier.Reviews(ctx, id)
	if err != nil {
		return "", &VerificationError{CommitSHA: id.CommitSHA, Err: err}
	}
	cutoff := since.Add(-reviewClockSkew)
	for i := len(reviews) - 1; i >= 0; i-- {
		r := reviews[i]
		if s.reviewAuthor != "" && !strings.EqualFold(r.Author, s.reviewAuthor) {
			continue
		}
		if r.SubmittedAt.Before(cutoff) {
			continue
		}
		if v, err := session.ParseVerdict(r.State); err == nil && v.IsReview() {
			return v, nil
		}
	}
	return "", &VerificationError{CommitSHA: id.CommitSHA}
}

// verdictHint reads a verdict from the opening words of the agent's final
// message, e.g. "Approved, no issues".
func verdictHint(text string) (session.Verdict, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(t, "approve"):
		return session.VerdictApprove, true
	case strings.HasPrefix(t, "request changes"),
		strings.HasPrefix(t, "requested changes"),
		strings.HasPrefix(t, "changes requested"):
		return session.VerdictRequestChanges, true
	case strings.HasPrefix(t, "comment"):
		return session.VerdictComment, true
	}
	return "", false
}
