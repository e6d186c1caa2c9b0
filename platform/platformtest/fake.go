/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"sync"
	"time"

	"chainguard.dev/reviewagent/platform"
	"chainguard.dev/reviewagent/session"
)

// Fake records every write and serves canned reads.
type Fake struct {
	Files      []platform.File
	DiffText   string
	Existing   []platform.SubmittedReview
	SubmitErr  error
	CommentErr error

	mu        sync.Mutex
	submitted []platform.Review
	comments  []string
}

var _ platform.Client = (*Fake)(nil)

func (f *Fake) ChangedFiles(context.Context, session.Identity) ([]platform.File, error) {
	return f.Files, nil
}

func (f *Fake) Diff(context.Context, session.Identity) (string, error) {
	return f.DiffText, nil
}

func (f *Fake) SubmitReview(_ context.Context, id session.Identity, r platform.Review) (*platform.SubmittedReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	f.submitted = append(f.submitted, r)
	commit := r.CommitSHA
	if commit == "" {
		commit = id.CommitSHA
	}
	sr := platform.SubmittedReview{
		ID:          int64(len(f.submitted)),
		State:       r.Verdict.ReviewEvent(),
		CommitSHA:   commit,
		Author:      "fake",
		SubmittedAt: time.Now(),
	}
	f.Existing = append(f.Existing, sr)
	return &sr, nil
}

func (f *Fake) Reviews(context.Context, session.Identity) ([]platform.SubmittedReview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.SubmittedReview(nil), f.Existing...), nil
}

func (f *Fake) Comment(_ context.Context, _ session.Identity, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommentErr != nil {
		return f.CommentErr
	}
	f.comments = append(f.comments, body)
	return nil
}

// Submitted returns the reviews submitted so far.
func (f *Fake) Submitted() []platform.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Review(nil), f.submitted...)
}

// Comments returns the comments posted so far.
func (f *Fake) Comments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments...)
}
