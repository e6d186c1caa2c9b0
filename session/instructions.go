/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

import (
	"chainguard.dev/reviewagent/promptbuilder"
)

var instructionTemplate = promptbuilder.MustNewPrompt(`You are reviewing a single GitHub pull request.

Pull request:
{{pull_request}}

Work only on this pull request and this commit.

1. Fetch the list of changed files and the diff.
2. Review the changes for correctness, security problems, missing tests and
   clear readability issues. Skip nitpicks a formatter or linter would catch.
3. Submit exactly one review on the commit above. Attach each finding as an
   inline comment on the changed line (path, line, side RIGHT for added or
   context lines, LEFT for removed lines).
4. Pick the review event yourself:
   - APPROVE when you found nothing that must change.
   - REQUEST_CHANGES when at least one finding must be fixed before merge.
   - COMMENT when you only have suggestions.

Do not push commits, edit files or merge the pull request.

Operator guidelines:
{{guidelines}}

When the review has been submitted, reply with a one-paragraph summary.`)

type pullRequestBinding struct {
	Repository string `yaml:"repository"`
	Number     int    `yaml:"number"`
	CommitSHA  string `yaml:"commit_sha"`
}

type guidelinesBinding struct {
	Rules       []string `yaml:"rules,omitempty"`
	IgnorePaths []string `yaml:"do_not_comment_on,omitempty"`
}

func renderInstructions(id Identity, g *Guidelines) (string, error) {
	p, err := instructionTemplate.BindYAML("pull_request", pullRequestBinding{
		Repository: id.Repository(),
		Number:     id.PRNumber,
		CommitSHA:  id.CommitSHA,
	})
	if err != nil {
		return "", err
	}

	if g == nil || (len(g.Rules) == 0 && len(g.IgnorePaths) == 0) {
		p, err = p.BindLiteral("guidelines", "none")
	} else {
		p, err = p.BindYAML("guidelines", guidelinesBinding{Rules: g.Rules, IgnorePaths: g.IgnorePaths})
	}
	if err != nil {
		return "", err
	}
	return p.Build()
}
