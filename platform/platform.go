/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package platform is the review-platform client: it reads pull request
// contents and writes reviews and comments.
package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/reviewagent/session"
)

// Side selects which version of a line an inline comment anchors to.
type Side string

const (
	// SideLeft is the base version (removed lines).
	SideLeft Side = "LEFT"
	// SideRight is the head version (added and context lines).
	SideRight Side = "RIGHT"
)

// ParseSide accepts LEFT/RIGHT and the aliases before/after.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LEFT", "BEFORE":
		return SideLeft, nil
	case "RIGHT", "AFTER", "":
		return SideRight, nil
	default:
		return "", fmt.Errorf("unknown comment side %q", s)
	}
}

// File is one changed file of a pull request.
type File struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// InlineComment is a review comment anchored to a diff line.
type InlineComment struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Side Side   `json:"side"`
	Body string `json:"body"`
}

// Review is a review submission.
type Review struct {
	CommitSHA string
	Verdict   session.Verdict
	Body      string
	Comments  []InlineComment
}

// SubmittedReview is a review as the platform reports it.
type SubmittedReview struct {
	ID        int64
	State     string
	CommitSHA string
	Author    string
	URL       string
	// SubmittedAt is zero when the platform did not report it.
	SubmittedAt time.Time
	// Dropped counts inline comments removed because their line was not
	// part of the diff.
	Dropped int
}

// Client is the review platform.
type Client interface {
	ChangedFiles(ctx context.Context, id session.Identity) ([]File, error)
	Diff(ctx context.Context, id session.Identity) (string, error)
	SubmitReview(ctx context.Context, id session.Identity, review Review) (*SubmittedReview, error)
	// Reviews lists submitted reviews on the pull request at id.CommitSHA.
	Reviews(ctx context.Context, id session.Identity) ([]SubmittedReview, error)
	// Comment posts a plain pull request comment.
	Comment(ctx context.Context, id session.Identity, body string) error
}
