/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package supervisor

import (
	"errors"
	"fmt"

	"chainguard.dev/reviewagent/event"
)

// ErrAlreadyRun is returned when a request is run a second time.
var ErrAlreadyRun = errors.New("session request has already been run")

// RuntimeStartError reports a runtime that could not start a session.
type RuntimeStartError struct {
	Err error
}

func (e *RuntimeStartError) Error() string {
	return fmt.Sprintf("starting agent runtime: %v", e.Err)
}

func (e *RuntimeStartError) Unwrap() error { return e.Err }

// StreamFault reports a session whose event stream stopped before a
// terminal result: the producer closed it, the transport broke, the
// watchdog fired or the session was interrupted.
type StreamFault struct {
	Reason string
	Err    error
}

func (e *StreamFault) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *StreamFault) Unwrap() error { return e.Err }

// ResultError reports a terminal result other than success.
type ResultError struct {
	Result event.Result
}

func (e *ResultError) Error() string {
	if e.Result.ResultText == "" {
		return fmt.Sprintf("session ended with %s", e.Result.Subtype)
	}
	return fmt.Sprintf("session ended with %s: %s", e.Result.Subtype, e.Result.ResultText)
}

// VerificationError reports a successful session whose review could not
// be found on the platform.
type VerificationError struct {
	CommitSHA string
	Err       error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no review found for commit %s", e.CommitSHA)
	}
	return fmt.Sprintf("verifying review for commit %s: %v", e.CommitSHA, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
