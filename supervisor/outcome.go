/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package supervisor

import (
	"sync/atomic"

	"chainguard.dev/reviewagent/classifier"
	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/session"
)

// Notes attached to outcomes.
const (
	NoteNoReview        = "no review submission observed"
	NoteVerdictFromText = "verdict taken from result text"
	NoteReviewNotFound  = "expected review submission not found"
	NoteTurnLimit       = "turn limit reached"
	NoteExecutionError  = "runtime execution error"
	NoteErrorResult     = "runtime reported an error result"
	NoteReviewRejected  = "review submission denied or failed"
	NoteUnknownResult   = "runtime reported unknown result subtype"
	NoteStreamEnded     = "stream ended without terminal result"
	NoteWatchdog        = "session watchdog expired"
	NoteInterrupted     = "session interrupted"
)

// Outcome is the disposition of one session. It is built once by Run and
// never modified afterwards, apart from the report claim.
type Outcome struct {
	Identity session.Identity
	Verdict  session.Verdict
	// Summary is the agent's final text on success and the note otherwise.
	Summary     string
	Note        string
	Diagnostics classifier.Diagnostics
	// Result is the terminal event, nil when none arrived.
	Result *event.Result
	// Review is the review submission the verdict was derived from, if any.
	Review *classifier.ReviewAction
	// Fault is set exactly when the verdict is aborted.
	Fault        error
	ToolCalls    map[string]int
	DecodeErrors int

	reported atomic.Bool
}

// Aborted reports whether the session ended without a usable result.
func (o *Outcome) Aborted() bool {
	return o.Verdict == session.VerdictAborted
}

// Claim marks the outcome as reported. Only the first call returns true.
func (o *Outcome) Claim() bool {
	return o.reported.CompareAndSwap(false, true)
}
