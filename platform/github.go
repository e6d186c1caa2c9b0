/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"chainguard.dev/reviewagent/retry"
	"chainguard.dev/reviewagent/session"
)

// GitHub implements Client with the REST API for reads and writes and the
// GraphQL API for review lookup.
type GitHub struct {
	rest  *github.Client
	gql   *githubv4.Client
	retry retry.RetryConfig
}

var _ Client = (*GitHub)(nil)

// Option configures a GitHub client.
type Option func(*GitHub) error

// WithBaseURLs points the client at a GitHub Enterprise server or a test
// double. restURL must end in a slash.
func WithBaseURLs(restURL, graphqlURL string) Option {
	return func(g *GitHub) error {
		u, err := url.Parse(restURL)
		if err != nil {
			return fmt.Errorf("parsing REST URL: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		g.rest.BaseURL = u
		g.gql = githubv4.NewEnterpriseClient(graphqlURL, g.rest.Client())
		return nil
	}
}

// WithRetry overrides the retry policy for API calls.
func WithRetry(cfg retry.RetryConfig) Option {
	return func(g *GitHub) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		g.retry = cfg
		return nil
	}
}

// NewGitHub returns a client authenticated with token.
func NewGitHub(ctx context.Context, token string, opts ...Option) (*GitHub, error) {
	if token == "" {
		return nil, errors.New("github token cannot be empty")
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	rest := github.NewClient(httpClient)
	g := &GitHub{
		rest:  rest,
		gql:   githubv4.NewClient(rest.Client()),
		retry: retry.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ChangedFiles lists every file the pull request touches.
func (g *GitHub) ChangedFiles(ctx context.Context, id session.Identity) ([]File, error) {
	var files []File
	opts := &github.ListOptions{PerPage: 100}
	for {
		p, err := retry.RetryWithBackoff(ctx, g.retry, "list files", isTransient, func() (paged[*github.CommitFile], error) {
			items, resp, err := g.rest.PullRequests.ListFiles(ctx, id.Owner, id.Repo, id.PRNumber, opts)
			return paged[*github.CommitFile]{items: items, resp: resp}, err
		})
		if err != nil {
			return nil, fmt.Errorf("listing files of %s#%d: %w", id.Repository(), id.PRNumber, err)
		}
		for _, f := range p.items {
			files = append(files, File{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
			})
		}
		if p.resp == nil || p.resp.NextPage == 0 {
			return files, nil
		}
		opts.Page = p.resp.NextPage
	}
}

// Diff returns the unified diff of the pull request.
func (g *GitHub) Diff(ctx context.Context, id session.Identity) (string, error) {
	diff, err := retry.RetryWithBackoff(ctx, g.retry, "get diff", isTransient, func() (string, error) {
		diff, _, err := g.rest.PullRequests.GetRaw(ctx, id.Owner, id.Repo, id.PRNumber, github.RawOptions{Type: github.Diff})
		return diff, err
	})
	if err != nil {
		return "", fmt.Errorf("fetching diff of %s#%d: %w", id.Repository(), id.PRNumber, err)
	}
	return diff, nil
}

// SubmitReview posts review. Inline comments on lines outside the diff are
// dropped first, because GitHub rejects the whole review otherwise.
func (g *GitHub) SubmitReview(ctx context.Context, id session.Identity, review Review) (*SubmittedReview, error) {
	if !review.Verdict.IsReview() {
		return nil, fmt.Errorf("verdict %q cannot be submitted as a review", review.Verdict)
	}
	commit := review.CommitSHA
	if commit == "" {
		commit = id.CommitSHA
	}
	log := clog.FromContext(ctx).With("repository", id.Repository()).With("pr", id.PRNumber)

	comments := review.Comments
	var dropped []InlineComment
	if len(comments) > 0 {
		diff, err := g.Diff(ctx, id)
		if err != nil {
			return nil, err
		}
		idx, err := parseAnchors(diff)
		if err != nil {
			return nil, err
		}
		comments, dropped = idx.filter(comments)
		for _, c := range dropped {
			log.Warn("Dropping inline comment outside the diff", "path", c.Path, "line", c.Line, "side", c.Side)
		}
	}

	req := &github.PullRequestReviewRequest{
		CommitID: github.Ptr(commit),
		Body:     github.Ptr(review.Body),
		Event:    github.Ptr(review.Verdict.ReviewEvent()),
	}
	for _, c := range comments {
		side := c.Side
		if side == "" {
			side = SideRight
		}
		req.Comments = append(req.Comments, &github.DraftReviewComment{
			Path: github.Ptr(c.Path),
			Line: github.Ptr(c.Line),
			Side: github.Ptr(string(side)),
			Body: github.Ptr(c.Body),
		})
	}

	// Only rate-limit rejections are retried: GitHub refused those before
	// creating anything.
	created, err := retry.RetryWithBackoff(ctx, g.retry, "create review", isRateLimited, func() (*github.PullRequestReview, error) {
		created, _, err := g.rest.PullRequests.CreateReview(ctx, id.Owner, id.Repo, id.PRNumber, req)
		return created, err
	})
	if err != nil {
		return nil, fmt.Errorf("creating review on %s#%d: %w", id.Repository(), id.PRNumber, err)
	}
	log.Info("Submitted review", "review_id", created.GetID(), "state", created.GetState(), "comments", len(comments))

	return &SubmittedReview{
		ID:          created.GetID(),
		State:       created.GetState(),
		CommitSHA:   created.GetCommitID(),
		Author:      created.GetUser().GetLogin(),
		URL:         created.GetHTMLURL(),
		SubmittedAt: created.GetSubmittedAt().Time,
		Dropped:     len(dropped),
	}, nil
}

// Reviews returns the non-pending reviews submitted on id.CommitSHA.
func (g *GitHub) Reviews(ctx context.Context, id session.Identity) ([]SubmittedReview, error) {
	var query struct {
		Repository struct {
			PullRequest struct {
				Reviews struct {
					Nodes []struct {
						DatabaseID  int64
						State       string
						URL         string
						SubmittedAt *githubv4.DateTime
						Author      struct {
							Login string
						}
						Commit struct {
							Oid string
						}
					}
				} `graphql:"reviews(last: 50)"`
			} `graphql:"pullRequest(number: $number)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	variables := map[string]any{
		"owner":  githubv4.String(id.Owner),
		"repo":   githubv4.String(id.Repo),
		"number": githubv4.Int(id.PRNumber),
	}

	if _, err := retry.RetryWithBackoff(ctx, g.retry, "query reviews", isTransient, func() (struct{}, error) {
		return struct{}{}, g.gql.Query(ctx, &query, variables)
	}); err != nil {
		return nil, fmt.Errorf("querying reviews of %s#%d: %w", id.Repository(), id.PRNumber, err)
	}

	var out []SubmittedReview
	for _, n := range query.Repository.PullRequest.Reviews.Nodes {
		if n.State == "PENDING" || !sameCommit(n.Commit.Oid, id.CommitSHA) {
			continue
		}
		sr := SubmittedReview{
			ID:        n.DatabaseID,
			State:     n.State,
			CommitSHA: n.Commit.Oid,
			Author:    n.Author.Login,
			URL:       n.URL,
		}
		if n.SubmittedAt != nil {
			sr.SubmittedAt = n.SubmittedAt.Time
		}
		out = append(out, sr)
	}
	return out, nil
}

// Comment posts body as a pull request conversation comment.
func (g *GitHub) Comment(ctx context.Context, id session.Identity, body string) error {
	_, err := retry.RetryWithBackoff(ctx, g.retry, "create comment", isRateLimited, func() (*github.IssueComment, error) {
		c, _, err := g.rest.Issues.CreateComment(ctx, id.Owner, id.Repo, id.PRNumber, &github.IssueComment{Body: github.Ptr(body)})
		return c, err
	})
	if err != nil {
		return fmt.Errorf("commenting on %s#%d: %w", id.Repository(), id.PRNumber, err)
	}
	return nil
}

// sameCommit compares SHAs allowing either side to be abbreviated.
func sameCommit(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

type paged[T any] struct {
	items []T
	resp  *github.Response
}

func isRateLimited(err error) bool {
	var rl *github.RateLimitError
	var abuse *github.AbuseRateLimitError
	return errors.As(err, &rl) || errors.As(err, &abuse)
}

func isTransient(err error) bool {
	if isRateLimited(err) {
		return true
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return er.Response.StatusCode >= http.StatusInternalServerError
	}
	return false
}
