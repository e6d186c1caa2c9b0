/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package classifier folds a session's event stream into an audit log.
//
// The fold is pure: each event is handled on its own, in arrival order,
// with the diagnostics log as the only accumulated state. Feeding the same
// events to a fresh Classifier yields byte-identical output from
// Diagnostics().String() and Diagnostics().WriteJSONL.
package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chainguard.dev/reviewagent/event"
)

// Classifier accumulates diagnostics for one session. It is not safe for
// concurrent use; the supervisor feeds it from a single goroutine.
type Classifier struct {
	entries  Diagnostics
	actions  []ReviewAction
	terminal *event.Result

	toolCalls    map[string]int
	decodeErrors int
}

var _ event.Handler = (*Classifier)(nil)

// New returns an empty Classifier.
func New() *Classifier {
	return &Classifier{toolCalls: map[string]int{}}
}

// Observe records ev and reports whether it is the terminal Result.
// Events observed after the terminal Result are still recorded, but the
// first Result stays the terminal one.
func (c *Classifier) Observe(ev event.Event) bool {
	event.Dispatch(ev, c)
	return ev.Kind() == event.KindResult
}

// OnSystemInit implements event.Handler.
func (c *Classifier) OnSystemInit(e event.SystemInit) {
	c.add(EntrySystemInit, fmt.Sprintf("model=%s cwd=%s tools=[%s] mcp_servers=[%s]",
		e.Model, e.WorkingDirectory,
		strings.Join(event.ToolSet(e.Tools...), ","),
		strings.Join(e.MCPServers, ",")), nil)
}

// OnAssistant implements event.Handler. A turn without segments is legal
// and leaves the log untouched.
func (c *Classifier) OnAssistant(e event.Assistant) {
	if len(e.Segments) == 0 {
		return
	}
	seq := len(c.entries) + 1
	details := make([]string, 0, len(e.Segments))
	for _, seg := range e.Segments {
		switch s := seg.(type) {
		case event.Text:
			details = append(details, "text: "+s.Body)
		case event.ToolInvocation:
			c.toolCalls[s.Name]++
			details = append(details, fmt.Sprintf("tool_use %s %s", s.Name, snapshot(s.Input)))
			if v, ok := reviewAction(s); ok {
				c.actions = append(c.actions, ReviewAction{Seq: seq, ToolUseID: s.ID, Tool: s.Name, Verdict: v})
			}
		}
	}
	c.add(EntryAssistant, "segments="+strconv.Itoa(len(e.Segments)), details)
}

// OnResult implements event.Handler.
func (c *Classifier) OnResult(e event.Result) {
	summary := fmt.Sprintf("subtype=%s is_error=%t duration_ms=%d turns=%d cost_usd=%s permission_denials=%d",
		e.Subtype, e.IsError, e.DurationMs, e.TurnCount,
		strconv.FormatFloat(e.CostUSD, 'f', 4, 64), e.PermissionDenials)
	var details []string
	if e.ResultText != "" {
		details = append(details, "result: "+e.ResultText)
	}
	if len(e.DeniedToolUses) > 0 {
		details = append(details, "denied tool uses: "+strings.Join(e.DeniedToolUses, ","))
	}
	if len(e.FailedToolUses) > 0 {
		details = append(details, "failed tool uses: "+strings.Join(e.FailedToolUses, ","))
	}
	c.add(EntryResult, summary, details)
	if c.terminal == nil {
		r := e
		c.terminal = &r
		c.rejectActions(e)
	}
}

// rejectActions marks the review actions the Result reports as denied or
// failed. Denials the runtime could not attribute to an invocation reject
// every review action, since any of them may have been the one denied.
func (c *Classifier) rejectActions(e event.Result) {
	rejected := make(map[string]bool, len(e.DeniedToolUses)+len(e.FailedToolUses))
	for _, id := range e.DeniedToolUses {
		rejected[id] = true
	}
	for _, id := range e.FailedToolUses {
		rejected[id] = true
	}
	unattributed := e.PermissionDenials > len(e.DeniedToolUses)
	for i := range c.actions {
		if unattributed || rejected[c.actions[i].ToolUseID] {
			c.actions[i].Rejected = true
		}
	}
}

// Skip records an event that could not be decoded.
func (c *Classifier) Skip(err error) {
	c.decodeErrors++
	var de *event.DecodeError
	if errors.As(err, &de) && de.Line != "" {
		c.add(EntryDecodeError, err.Error(), []string{"line: " + de.Line})
		return
	}
	c.add(EntryDecodeError, err.Error(), nil)
}

// Note appends an operator-facing note, such as the reason a session was
// aborted.
func (c *Classifier) Note(text string) {
	c.add(EntryNote, text, nil)
}

// Diagnostics returns a copy of the log so far.
func (c *Classifier) Diagnostics() Diagnostics {
	out := make(Diagnostics, len(c.entries))
	copy(out, c.entries)
	return out
}

// Terminal returns the first Result observed.
func (c *Classifier) Terminal() (event.Result, bool) {
	if c.terminal == nil {
		return event.Result{}, false
	}
	return *c.terminal, true
}

// ReviewActions returns the review submissions seen in tool invocations,
// in order.
func (c *Classifier) ReviewActions() []ReviewAction {
	out := make([]ReviewAction, len(c.actions))
	copy(out, c.actions)
	return out
}

// LastReviewAction returns the most recent review submission that was not
// rejected.
func (c *Classifier) LastReviewAction() (ReviewAction, bool) {
	for i := len(c.actions) - 1; i >= 0; i-- {
		if !c.actions[i].Rejected {
			return c.actions[i], true
		}
	}
	return ReviewAction{}, false
}

// ToolCalls returns invocation counts per tool name.
func (c *Classifier) ToolCalls() map[string]int {
	out := make(map[string]int, len(c.toolCalls))
	for k, v := range c.toolCalls {
		out[k] = v
	}
	return out
}

// DecodeErrors returns how many events were skipped.
func (c *Classifier) DecodeErrors() int {
	return c.decodeErrors
}

func (c *Classifier) add(kind EntryKind, summary string, details []string) {
	c.entries = append(c.entries, Entry{
		Seq:     len(c.entries) + 1,
		Kind:    kind,
		Summary: summary,
		Details: details,
	})
}

// snapshot renders tool input compactly. Input that is not valid JSON is
// quoted as-is.
func snapshot(input json.RawMessage) string {
	if len(input) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return strconv.Quote(string(input))
	}
	return buf.String()
}
