/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"

	"chainguard.dev/reviewagent/classifier"
	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/platform"
	"chainguard.dev/reviewagent/schema"
	"chainguard.dev/reviewagent/session"
)

const (
	toolChangedFiles = "get_changed_files"
	toolDiff         = "get_diff"
	toolSubmitReview = classifier.SubmitReviewTool

	// maxDiffBytes bounds the diff returned to the model.
	maxDiffBytes = 256 << 10
)

type changedFilesInput struct{}

type diffInput struct{}

type reviewComment struct {
	Path string `json:"path" jsonschema:"required,description=Path of the file relative to the repository root"`
	Line int    `json:"line" jsonschema:"required,minimum=1,description=Line number in the chosen side of the diff"`
	Side string `json:"side,omitempty" jsonschema:"enum=LEFT,enum=RIGHT,description=LEFT for removed lines and RIGHT (default) for added or context lines"`
	Body string `json:"body" jsonschema:"required,description=Comment text in Markdown"`
}

type submitReviewInput struct {
	Event    string          `json:"event" jsonschema:"required,enum=APPROVE,enum=REQUEST_CHANGES,enum=COMMENT,description=The review verdict"`
	Body     string          `json:"body" jsonschema:"required,description=Review summary in Markdown"`
	Comments []reviewComment `json:"comments,omitempty" jsonschema:"description=Inline comments anchored to lines of the diff"`
}

// tool is one callable of the in-process runtime.
type tool struct {
	def anthropic.ToolParam
	// mutating tools are denied unless the session auto-approves.
	mutating bool
	run      func(ctx context.Context, input json.RawMessage) (string, error)
}

type toolbox map[string]tool

func (tb toolbox) names() []string {
	return event.ToolSet(slices.Collect(maps.Keys(tb))...)
}

// definitions returns the tool definitions in name order so requests are
// reproducible.
func (tb toolbox) definitions() []anthropic.ToolUnionParam {
	defs := make([]anthropic.ToolUnionParam, 0, len(tb))
	for _, name := range tb.names() {
		def := tb[name].def
		defs = append(defs, anthropic.ToolUnionParam{OfTool: &def})
	}
	return defs
}

func definition[T any](name, description string) anthropic.ToolParam {
	o := schema.MustObjectFor[T]()
	return anthropic.ToolParam{
		Name:        name,
		Description: anthropic.String(description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: o.Properties,
			Required:   o.Required,
		},
	}
}

func (r *Runtime) newToolbox() toolbox {
	return toolbox{
		toolChangedFiles: {
			def: definition[changedFilesInput](toolChangedFiles,
				"List the files changed by the pull request with their status and line counts."),
			run: r.changedFiles,
		},
		toolDiff: {
			def: definition[diffInput](toolDiff,
				"Return the unified diff of the pull request."),
			run: r.diff,
		},
		toolSubmitReview: {
			def: definition[submitReviewInput](toolSubmitReview,
				"Submit the review of the pull request at the commit under review. Call this exactly once, when the review is complete."),
			mutating: true,
			run:      r.submitReview,
		},
	}
}

func (r *Runtime) changedFiles(ctx context.Context, _ json.RawMessage) (string, error) {
	files, err := r.platform.ChangedFiles(ctx, r.identity)
	if err != nil {
		return "", fmt.Errorf("listing changed files: %w", err)
	}
	kept := make([]platform.File, 0, len(files))
	for _, f := range files {
		if !r.guidelines.Ignored(f.Filename) {
			kept = append(kept, f)
		}
	}
	b, err := json.Marshal(kept)
	if err != nil {
		return "", fmt.Errorf("marshaling changed files: %w", err)
	}
	return string(b), nil
}

func (r *Runtime) diff(ctx context.Context, _ json.RawMessage) (string, error) {
	d, err := r.platform.Diff(ctx, r.identity)
	if err != nil {
		return "", fmt.Errorf("fetching diff: %w", err)
	}
	if len(d) > maxDiffBytes {
		return truncateUTF8(d, maxDiffBytes) + "\n... diff truncated, use get_changed_files to see every file", nil
	}
	return d, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (r *Runtime) submitReview(ctx context.Context, input json.RawMessage) (string, error) {
	var in submitReviewInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid submit_review input: %w", err)
	}
	verdict, err := session.ParseVerdict(in.Event)
	if err != nil {
		return "", err
	}
	if !verdict.IsReview() {
		return "", fmt.Errorf("event %q is not a review verdict", in.Event)
	}

	review := platform.Review{
		CommitSHA: r.identity.CommitSHA,
		Verdict:   verdict,
		Body:      in.Body,
	}
	for _, c := range in.Comments {
		side, err := platform.ParseSide(c.Side)
		if err != nil {
			return "", err
		}
		review.Comments = append(review.Comments, platform.InlineComment{
			Path: c.Path,
			Line: c.Line,
			Side: side,
			Body: c.Body,
		})
	}

	submitted, err := r.platform.SubmitReview(ctx, r.identity, review)
	if err != nil {
		return "", fmt.Errorf("submitting review: %w", err)
	}
	b, err := json.Marshal(map[string]any{
		"id":               submitted.ID,
		"state":            submitted.State,
		"url":              submitted.URL,
		"dropped_comments": submitted.Dropped,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling review: %w", err)
	}
	return string(b), nil
}
