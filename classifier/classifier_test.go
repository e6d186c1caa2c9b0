/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"

	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/session"
)

func scenario() []event.Event {
	return []event.Event{
		event.SystemInit{Model: "m1", Tools: []string{"Bash", "Read"}, MCPServers: []string{}},
		event.Assistant{Segments: []event.Segment{
			event.Text{Body: "Checking diff"},
			event.ToolInvocation{Name: "Bash", Input: json.RawMessage(`{"cmd": "gh api repos/acme/widgets/pulls/7/files"}`)},
		}},
		event.Result{
			Subtype:    event.ResultSuccess,
			DurationMs: 4200,
			TurnCount:  3,
			CostUSD:    0.12,
			ResultText: "Approved, no issues",
		},
	}
}

func TestScenario(t *testing.T) {
	c := New()
	var terminal []bool
	for _, ev := range scenario() {
		terminal = append(terminal, c.Observe(ev))
	}
	if diff := cmp.Diff([]bool{false, false, true}, terminal); diff != "" {
		t.Errorf("Observe() terminal flags (-want +got):\n%s", diff)
	}

	want := Diagnostics{{
		Seq:     1,
		Kind:    EntrySystemInit,
		Summary: "model=m1 cwd= tools=[Bash,Read] mcp_servers=[]",
	}, {
		Seq:     2,
		Kind:    EntryAssistant,
		Summary: "segments=2",
		Details: []string{
			"text: Checking diff",
			`tool_use Bash {"cmd":"gh api repos/acme/widgets/pulls/7/files"}`,
		},
	}, {
		Seq:     3,
		Kind:    EntryResult,
		Summary: "subtype=success is_error=false duration_ms=4200 turns=3 cost_usd=0.1200 permission_denials=0",
		Details: []string{"result: Approved, no issues"},
	}}
	if diff := cmp.Diff(want, c.Diagnostics()); diff != "" {
		t.Errorf("Diagnostics() mismatch (-want +got):\n%s", diff)
	}

	res, ok := c.Terminal()
	if !ok || res.DurationMs != 4200 || res.TurnCount != 3 {
		t.Errorf("Terminal() = %+v, %v", res, ok)
	}
	if got := c.ToolCalls(); got["Bash"] != 1 {
		t.Errorf("ToolCalls() = %v", got)
	}
	// Reading files is not a review submission.
	if _, ok := c.LastReviewAction(); ok {
		t.Error("LastReviewAction() found an action in a read-only session")
	}
}

func TestEmptyAssistantIsNoop(t *testing.T) {
	c := New()
	if c.Observe(event.Assistant{}) {
		t.Error("Observe(Assistant{}) reported terminal")
	}
	if n := len(c.Diagnostics()); n != 0 {
		t.Errorf("len(Diagnostics()) = %d, want 0", n)
	}
}

func TestSkipAndNote(t *testing.T) {
	c := New()
	_, err := event.Decode([]byte(`{"type":"assistant"}`))
	c.Skip(err)
	c.Skip(errors.New("plain"))
	c.Note("turn limit reached")

	d := c.Diagnostics()
	if got := d.Count(EntryDecodeError); got != 2 {
		t.Errorf("decode_error entries = %d, want 2", got)
	}
	if c.DecodeErrors() != 2 {
		t.Errorf("DecodeErrors() = %d, want 2", c.DecodeErrors())
	}
	if d[0].Details[0] != `line: {"type":"assistant"}` {
		t.Errorf("Details = %v", d[0].Details)
	}
	if d[2].Kind != EntryNote || d[2].Summary != "turn limit reached" {
		t.Errorf("last entry = %+v", d[2])
	}
}

func TestFirstResultIsTerminal(t *testing.T) {
	c := New()
	c.Observe(event.Result{Subtype: event.ResultErrorMaxTurns})
	c.Observe(event.Result{Subtype: event.ResultSuccess})

	res, _ := c.Terminal()
	if res.Subtype != event.ResultErrorMaxTurns {
		t.Errorf("Terminal().Subtype = %s, want %s", res.Subtype, event.ResultErrorMaxTurns)
	}
	if got := c.Diagnostics().Count(EntryResult); got != 2 {
		t.Errorf("result entries = %d, want 2", got)
	}
}

func TestDiagnosticsString(t *testing.T) {
	c := New()
	c.Observe(event.Assistant{Segments: []event.Segment{event.Text{Body: "line one\nline two"}}})
	want := "[1] assistant segments=1\n      text: line one\n      line two\n"
	if got := c.Diagnostics().String(); got != want {
		t.Errorf("String() =\n%q\nwant\n%q", got, want)
	}
}

func TestWriteJSONL(t *testing.T) {
	c := New()
	for _, ev := range scenario() {
		c.Observe(ev)
	}
	var buf bytes.Buffer
	if err := c.Diagnostics().WriteJSONL(&buf); err != nil {
		t.Fatalf("WriteJSONL() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	var e Entry
	if err := json.Unmarshal([]byte(lines[1]), &e); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if e.Seq != 2 || e.Kind != EntryAssistant {
		t.Errorf("entry = %+v", e)
	}
}

func TestSnapshotInvalidJSON(t *testing.T) {
	if got := snapshot(json.RawMessage(`{not json`)); got != `"{not json"` {
		t.Errorf("snapshot() = %s", got)
	}
	if got := snapshot(nil); got != "{}" {
		t.Errorf("snapshot(nil) = %s", got)
	}
}

func TestDiagnosticsIsACopy(t *testing.T) {
	c := New()
	c.Note("a")
	d := c.Diagnostics()
	d[0].Summary = "mutated"
	if c.Diagnostics()[0].Summary != "a" {
		t.Error("Diagnostics() exposed internal state")
	}
}

// genEvent draws an arbitrary session event.
func genEvent(t *rapid.T, label string) event.Event {
	switch rapid.IntRange(0, 2).Draw(t, label+".kind") {
	case 0:
		return event.SystemInit{
			Model:      rapid.String().Draw(t, label+".model"),
			Tools:      rapid.SliceOfN(rapid.StringMatching(`[A-Z][a-z]{0,6}`), 0, 4).Draw(t, label+".tools"),
			MCPServers: rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 0, 3).Draw(t, label+".mcp"),
		}
	case 1:
		n := rapid.IntRange(0, 4).Draw(t, label+".segments")
		segs := make([]event.Segment, 0, n)
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, label+".isText") {
				segs = append(segs, event.Text{Body: rapid.String().Draw(t, label+".body")})
				continue
			}
			cmd := rapid.SampledFrom([]string{
				"ls",
				"gh pr review 7 --approve",
				"gh pr review 7 --request-changes -b nope",
				"gh api repos/a/b/pulls/7/reviews -f event=COMMENT",
			}).Draw(t, label+".cmd")
			input, _ := json.Marshal(map[string]string{"command": cmd})
			segs = append(segs, event.ToolInvocation{Name: "Bash", Input: input})
		}
		return event.Assistant{Segments: segs}
	default:
		return event.Result{
			Subtype:    rapid.SampledFrom([]event.ResultSubtype{event.ResultSuccess, event.ResultErrorMaxTurns, event.ResultErrorDuringExecution, event.ResultOther}).Draw(t, label+".subtype"),
			DurationMs: rapid.Int64Range(0, 1e7).Draw(t, label+".duration"),
			TurnCount:  rapid.IntRange(0, 500).Draw(t, label+".turns"),
			CostUSD:    rapid.Float64Range(0, 100).Draw(t, label+".cost"),
			ResultText: rapid.String().Draw(t, label+".text"),
		}
	}
}

func fold(evs []event.Event) (string, string, []ReviewAction) {
	c := New()
	for _, ev := range evs {
		c.Observe(ev)
	}
	var buf bytes.Buffer
	_ = c.Diagnostics().WriteJSONL(&buf)
	return c.Diagnostics().String(), buf.String(), c.ReviewActions()
}

func TestFoldIsDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n")
		evs := make([]event.Event, 0, n)
		for i := 0; i < n; i++ {
			evs = append(evs, genEvent(t, "event"))
		}

		text1, jsonl1, actions1 := fold(evs)
		text2, jsonl2, actions2 := fold(evs)
		if text1 != text2 {
			t.Fatalf("String() differs between replays:\n%s\n---\n%s", text1, text2)
		}
		if jsonl1 != jsonl2 {
			t.Fatalf("WriteJSONL() differs between replays")
		}
		if diff := cmp.Diff(actions1, actions2); diff != "" {
			t.Fatalf("ReviewActions() differ (-first +second):\n%s", diff)
		}
	})
}

func TestReviewActionsInOrder(t *testing.T) {
	c := New()
	bash := func(cmd string) event.ToolInvocation {
		input, _ := json.Marshal(map[string]string{"command": cmd})
		return event.ToolInvocation{Name: "Bash", Input: input}
	}
	c.Observe(event.Assistant{Segments: []event.Segment{bash("gh pr review 7 --comment -b 'first pass'")}})
	c.Observe(event.Assistant{Segments: []event.Segment{
		event.Text{Body: "Found a real bug"},
		bash("gh pr review 7 --request-changes -b 'nil deref'"),
	}})

	want := []ReviewAction{
		{Seq: 1, Tool: "Bash", Verdict: session.VerdictComment},
		{Seq: 2, Tool: "Bash", Verdict: session.VerdictRequestChanges},
	}
	if diff := cmp.Diff(want, c.ReviewActions()); diff != "" {
		t.Errorf("ReviewActions() mismatch (-want +got):\n%s", diff)
	}
	last, ok := c.LastReviewAction()
	if !ok || last.Verdict != session.VerdictRequestChanges {
		t.Errorf("LastReviewAction() = %+v, %v", last, ok)
	}
}

func TestRejectedReviewActions(t *testing.T) {
	submit := func(id, verdict string) event.ToolInvocation {
		input, _ := json.Marshal(map[string]string{"event": verdict})
		return event.ToolInvocation{ID: id, Name: SubmitReviewTool, Input: input}
	}

	tests := []struct {
		name     string
		result   event.Result
		wantLast session.Verdict // empty when no action stands
	}{{
		name:     "all accepted",
		result:   event.Result{Subtype: event.ResultSuccess},
		wantLast: session.VerdictApprove,
	}, {
		name:     "last denied",
		result:   event.Result{Subtype: event.ResultSuccess, PermissionDenials: 1, DeniedToolUses: []string{"toolu_2"}},
		wantLast: session.VerdictComment,
	}, {
		name:     "last failed",
		result:   event.Result{Subtype: event.ResultSuccess, FailedToolUses: []string{"toolu_2"}},
		wantLast: session.VerdictComment,
	}, {
		name:   "both rejected",
		result: event.Result{Subtype: event.ResultSuccess, PermissionDenials: 1, DeniedToolUses: []string{"toolu_1"}, FailedToolUses: []string{"toolu_2"}},
	}, {
		name:   "unattributed denial",
		result: event.Result{Subtype: event.ResultSuccess, PermissionDenials: 1},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New()
			c.Observe(event.Assistant{Segments: []event.Segment{submit("toolu_1", "COMMENT")}})
			c.Observe(event.Assistant{Segments: []event.Segment{submit("toolu_2", "APPROVE")}})
			c.Observe(tt.result)

			last, ok := c.LastReviewAction()
			if tt.wantLast == "" {
				if ok {
					t.Errorf("LastReviewAction() = %+v, want none", last)
				}
			} else if !ok || last.Verdict != tt.wantLast {
				t.Errorf("LastReviewAction() = %+v, %v; want %s", last, ok, tt.wantLast)
			}
			if got := len(c.ReviewActions()); got != 2 {
				t.Errorf("len(ReviewActions()) = %d, want 2", got)
			}
		})
	}
}

func TestResultEntryListsRejectedToolUses(t *testing.T) {
	c := New()
	c.Observe(event.Result{
		Subtype:           event.ResultSuccess,
		PermissionDenials: 1,
		DeniedToolUses:    []string{"toolu_1"},
		FailedToolUses:    []string{"toolu_2", "toolu_3"},
	})
	got := c.Diagnostics()[0].Details
	want := []string{"denied tool uses: toolu_1", "failed tool uses: toolu_2,toolu_3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Details mismatch (-want +got):\n%s", diff)
	}
}
