/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainguard.dev/reviewagent/retry"
	"chainguard.dev/reviewagent/session"
)

const testDiff = `diff --git a/main.go b/main.go
index 83db48f..bf269f4 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main
-import "fmt"
+import "os"
+import "fmt"
 func main() {}
`

var testID = session.Identity{Owner: "acme", Repo: "widgets", PRNumber: 7, CommitSHA: "abc123"}

type fakeGitHub struct {
	*httptest.Server
	mu           sync.Mutex
	reviews      []map[string]any
	comments     []string
	filesCalls   atomic.Int32
	failFilesFor int32
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	f := &fakeGitHub{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/acme/widgets/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
		n := f.filesCalls.Add(1)
		if n <= f.failFilesFor {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, `{"message":"bad gateway"}`)
			return
		}
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"filename":"README.md","status":"modified","additions":1,"deletions":1}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/pulls/7/files?page=2>; rel="next"`, f.URL))
		fmt.Fprint(w, `[{"filename":"main.go","status":"modified","additions":2,"deletions":1}]`)
	})
	mux.HandleFunc("GET /repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/vnd.github.v3.diff" {
			http.Error(w, "want diff media type", http.StatusNotAcceptable)
			return
		}
		fmt.Fprint(w, testDiff)
	})
	mux.HandleFunc("POST /repos/acme/widgets/pulls/7/reviews", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.reviews = append(f.reviews, body)
		f.mu.Unlock()
		fmt.Fprint(w, `{"id":99,"state":"APPROVED","commit_id":"abc123","user":{"login":"review-bot"},"html_url":"https://github.com/acme/widgets/pull/7#pullrequestreview-99"}`)
	})
	mux.HandleFunc("POST /repos/acme/widgets/issues/7/comments", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.comments = append(f.comments, body.Body)
		f.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":1}`)
	})
	mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		_ = json.Unmarshal(b, &req)
		if req.Variables["owner"] != "acme" || req.Variables["number"] != float64(7) {
			http.Error(w, "unexpected variables", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"data":{"repository":{"pullRequest":{"reviews":{"nodes":[
			{"databaseId":1,"state":"COMMENTED","url":"u1","author":{"login":"alice"},"commit":{"oid":"0000000"}},
			{"databaseId":2,"state":"PENDING","url":"u2","author":{"login":"review-bot"},"commit":{"oid":"abc123def"}},
			{"databaseId":3,"state":"APPROVED","url":"u3","submittedAt":"2026-03-01T12:00:00Z","author":{"login":"review-bot"},"commit":{"oid":"abc123def"}}
		]}}}}}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGitHub) client(t *testing.T) *GitHub {
	t.Helper()
	g, err := NewGitHub(context.Background(), "test-token",
		WithBaseURLs(f.URL+"/", f.URL+"/graphql"),
		WithRetry(retry.RetryConfig{MaxRetries: 2}),
	)
	require.NoError(t, err)
	return g
}

func TestChangedFiles(t *testing.T) {
	f := newFakeGitHub(t)
	files, err := f.client(t).ChangedFiles(context.Background(), testID)
	require.NoError(t, err)

	want := []File{
		{Filename: "main.go", Status: "modified", Additions: 2, Deletions: 1},
		{Filename: "README.md", Status: "modified", Additions: 1, Deletions: 1},
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("ChangedFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestChangedFilesRetriesServerErrors(t *testing.T) {
	f := newFakeGitHub(t)
	f.failFilesFor = 1
	files, err := f.client(t).ChangedFiles(context.Background(), testID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, int32(3), f.filesCalls.Load())
}

func TestDiff(t *testing.T) {
	f := newFakeGitHub(t)
	diff, err := f.client(t).Diff(context.Background(), testID)
	require.NoError(t, err)
	assert.Equal(t, testDiff, diff)
}

func TestSubmitReview(t *testing.T) {
	f := newFakeGitHub(t)
	got, err := f.client(t).SubmitReview(context.Background(), testID, Review{
		Verdict: session.VerdictApprove,
		Body:    "Looks good",
		Comments: []InlineComment{
			{Path: "main.go", Line: 2, Side: SideRight, Body: "os is unused"},
			{Path: "main.go", Line: 40, Side: SideRight, Body: "outside the diff"},
			{Path: "main.go", Line: 2, Side: SideLeft, Body: "why drop fmt?"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(99), got.ID)
	assert.Equal(t, "review-bot", got.Author)
	assert.Equal(t, 1, got.Dropped)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.reviews, 1)
	body := f.reviews[0]
	assert.Equal(t, "APPROVE", body["event"])
	assert.Equal(t, "abc123", body["commit_id"])
	comments, ok := body["comments"].([]any)
	require.True(t, ok)
	assert.Len(t, comments, 2)
}

func TestSubmitReviewRejectsAborted(t *testing.T) {
	f := newFakeGitHub(t)
	_, err := f.client(t).SubmitReview(context.Background(), testID, Review{Verdict: session.VerdictAborted})
	assert.Error(t, err)
	assert.Empty(t, f.reviews)
}

func TestReviews(t *testing.T) {
	f := newFakeGitHub(t)
	got, err := f.client(t).Reviews(context.Background(), testID)
	require.NoError(t, err)

	want := []SubmittedReview{{
		ID:          3,
		State:       "APPROVED",
		CommitSHA:   "abc123def",
		Author:      "review-bot",
		URL:         "u3",
		SubmittedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Reviews() mismatch (-want +got):\n%s", diff)
	}
}

func TestComment(t *testing.T) {
	f := newFakeGitHub(t)
	require.NoError(t, f.client(t).Comment(context.Background(), testID, "Review aborted: turn limit reached"))
	assert.Equal(t, []string{"Review aborted: turn limit reached"}, f.comments)
}

func TestNewGitHubRequiresToken(t *testing.T) {
	_, err := NewGitHub(context.Background(), "")
	assert.Error(t, err)
}

func TestAnchorsFilter(t *testing.T) {
	idx, err := parseAnchors(testDiff)
	require.NoError(t, err)

	kept, dropped := idx.filter([]InlineComment{
		{Path: "main.go", Line: 4},
		{Path: "main.go", Line: 3, Side: SideLeft},
		{Path: "main.go", Line: 4, Side: SideLeft},
		{Path: "other.go", Line: 1},
	})
	assert.Len(t, kept, 2)
	assert.Len(t, dropped, 2)
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"before": SideLeft, "LEFT": SideLeft, "after": SideRight, "": SideRight} {
		got, err := ParseSide(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseSide("middle")
	assert.Error(t, err)
}

func TestSameCommit(t *testing.T) {
	assert.True(t, sameCommit("ABC123", "abc"))
	assert.True(t, sameCommit("abc", "abc123"))
	assert.False(t, sameCommit("abd", "abc123"))
	assert.False(t, sameCommit("", "abc"))
}
