/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"fmt"
	"strings"
)

// Verdict is the disposition of a review session.
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictComment        Verdict = "comment"
	VerdictRequestChanges Verdict = "request_changes"
	// VerdictAborted marks a session that did not reach a successful
	// terminal result. It never carries review semantics.
	VerdictAborted Verdict = "aborted"
)

// ParseVerdict accepts the spellings used by the gh CLI flags, the REST
// review events and our own names.
func ParseVerdict(s string) (Verdict, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.TrimPrefix(norm, "--")
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "approve", "approved":
		return VerdictApprove, nil
	case "comment", "commented":
		return VerdictComment, nil
	case "request_changes", "changes_requested":
		return VerdictRequestChanges, nil
	default:
		return "", fmt.Errorf("unknown review verdict %q", s)
	}
}

// ReviewEvent returns the GitHub review event for v. Aborted has none.
func (v Verdict) ReviewEvent() string {
	switch v {
	case VerdictApprove:
		return "APPROVE"
	case VerdictRequestChanges:
		return "REQUEST_CHANGES"
	case VerdictComment:
		return "COMMENT"
	default:
		return ""
	}
}

// IsReview reports whether v is one of the three review verdicts.
func (v Verdict) IsReview() bool {
	return v.ReviewEvent() != ""
}
