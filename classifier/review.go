/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package classifier

import (
	"regexp"
	"strings"

	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/session"
)

// ReviewAction is a review submission the agent requested through one of
// its tools.
type ReviewAction struct {
	// Seq is the diagnostics entry the invocation was recorded in.
	Seq       int
	ToolUseID string
	Tool      string
	Verdict   session.Verdict
	// Rejected is set once the terminal Result reports the invocation as
	// denied or failed. A review that never reached the platform does not
	// decide the verdict.
	Rejected bool
}

// SubmitReviewTool is the in-process review submission tool name.
const SubmitReviewTool = "submit_review"

var reviewsEndpoint = regexp.MustCompile(`/pulls/\d+/reviews(/\d+/events)?\b`)

// reviewAction inspects a tool invocation and reports the review verdict it
// submits, if any.
func reviewAction(inv event.ToolInvocation) (session.Verdict, bool) {
	params, err := inv.Params()
	if err != nil {
		return "", false
	}

	switch {
	case inv.Name == "Bash":
		cmd, _ := params["command"].(string)
		return shellReviewAction(cmd)

	case inv.Name == SubmitReviewTool, strings.Contains(inv.Name, "pull_request_review"):
		for _, key := range []string{"event", "verdict"} {
			if s, ok := params[key].(string); ok {
				if v, err := session.ParseVerdict(s); err == nil {
					return v, true
				}
			}
		}
	}
	return "", false
}

// shellReviewAction recognizes `gh pr review` and `gh api .../reviews`
// invocations. When a command line submits several reviews the last one
// wins, matching the order GitHub applies them in.
func shellReviewAction(cmd string) (session.Verdict, bool) {
	var (
		verdict session.Verdict
		found   bool
	)
	for _, part := range splitCommands(cmd) {
		fields := strings.Fields(part)
		if len(fields) < 2 || fields[0] != "gh" {
			continue
		}
		switch {
		case len(fields) >= 3 && fields[1] == "pr" && fields[2] == "review":
			if v, ok := ghPRReviewFlag(fields[3:]); ok {
				verdict, found = v, true
			}
		case fields[1] == "api" && reviewsEndpoint.MatchString(part):
			if v, ok := ghAPIEventField(fields[2:]); ok {
				verdict, found = v, true
			}
		}
	}
	return verdict, found
}

func ghPRReviewFlag(args []string) (session.Verdict, bool) {
	for _, a := range args {
		switch a {
		case "--approve", "-a":
			return session.VerdictApprove, true
		case "--request-changes", "-r":
			return session.VerdictRequestChanges, true
		case "--comment", "-c":
			return session.VerdictComment, true
		}
	}
	return "", false
}

func ghAPIEventField(args []string) (session.Verdict, bool) {
	for i, a := range args {
		var field string
		switch {
		case a == "-f" || a == "-F" || a == "--field" || a == "--raw-field":
			if i+1 < len(args) {
				field = args[i+1]
			}
		case strings.HasPrefix(a, "--field="), strings.HasPrefix(a, "--raw-field="):
			_, field, _ = strings.Cut(a, "=")
		default:
			continue
		}
		key, value, ok := strings.Cut(unquote(field), "=")
		if !ok || key != "event" {
			continue
		}
		if v, err := session.ParseVerdict(unquote(value)); err == nil {
			return v, true
		}
	}
	return "", false
}

// splitCommands breaks a shell line on the common list operators. It is
// not a shell parser; quoted operators are split too.
func splitCommands(cmd string) []string {
	return strings.FieldsFunc(cmd, func(r rune) bool {
		return r == ';' || r == '&' || r == '|' || r == '\n'
	})
}

func unquote(s string) string {
	return strings.Trim(s, `"'`)
}
