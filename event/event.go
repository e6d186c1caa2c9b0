/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package event defines the session events an agent runtime emits:
// SystemInit once at start, one Assistant per model turn, and a terminal
// Result. Event and Segment are closed sum types; consumers that must
// handle every kind implement Handler and go through Dispatch.
//
// Runtimes hand events to consumers through a Stream. Decode turns one
// line of the claude CLI stream-json output into an Event.
package event

import (
	"encoding/json"
	"slices"
)

// Kind identifies one of the event kinds an agent session emits.
type Kind string

const (
	KindSystemInit Kind = "system_init"
	KindAssistant  Kind = "assistant"
	KindResult     Kind = "result"
)

// Event is a single session event. The set of implementations is closed:
// SystemInit, Assistant and Result.
type Event interface {
	Kind() Kind
	dispatch(Handler)
}

// Handler receives events by kind. Adding an event kind adds a method here,
// so every handler has to be extended before the module builds again.
type Handler interface {
	OnSystemInit(SystemInit)
	OnAssistant(Assistant)
	OnResult(Result)
}

// Dispatch routes e to the handler method for its kind.
func Dispatch(e Event, h Handler) {
	e.dispatch(h)
}

// SystemInit is emitted once the runtime has set up the session.
type SystemInit struct {
	SessionID        string
	Model            string
	WorkingDirectory string
	// Tools is a sorted set of tool names; see ToolSet.
	Tools      []string
	MCPServers []string
}

func (SystemInit) Kind() Kind           { return KindSystemInit }
func (e SystemInit) dispatch(h Handler) { h.OnSystemInit(e) }

// Assistant is one model turn: an ordered sequence of text and tool invocations.
type Assistant struct {
	Segments []Segment
}

func (Assistant) Kind() Kind           { return KindAssistant }
func (e Assistant) dispatch(h Handler) { h.OnAssistant(e) }

// ResultSubtype classifies how a session terminated.
type ResultSubtype string

const (
	ResultSuccess              ResultSubtype = "success"
	ResultErrorMaxTurns        ResultSubtype = "error_max_turns"
	ResultErrorDuringExecution ResultSubtype = "error_during_execution"
	ResultOther                ResultSubtype = "other"
)

// ParseResultSubtype maps a wire subtype onto the known set. Anything the
// orchestrator has no dedicated handling for becomes ResultOther.
func ParseResultSubtype(s string) ResultSubtype {
	switch ResultSubtype(s) {
	case ResultSuccess, ResultErrorMaxTurns, ResultErrorDuringExecution:
		return ResultSubtype(s)
	default:
		return ResultOther
	}
}

// Result is the terminal event of a session.
type Result struct {
	SessionID         string
	Subtype           ResultSubtype
	IsError           bool
	DurationMs        int64
	TurnCount         int
	CostUSD           float64
	ResultText        string // empty when the runtime reported none
	PermissionDenials int
	// DeniedToolUses holds the ToolInvocation IDs behind PermissionDenials,
	// as far as the runtime reports them.
	DeniedToolUses []string
	// FailedToolUses holds the IDs of invocations whose tool result was an
	// error.
	FailedToolUses []string
}

func (Result) Kind() Kind           { return KindResult }
func (e Result) dispatch(h Handler) { h.OnResult(e) }

// Segment is one piece of an Assistant turn: Text or ToolInvocation.
type Segment interface {
	isSegment()
}

// Text is free-form model output.
type Text struct {
	Body string
}

func (Text) isSegment() {}

// ToolInvocation is a tool call requested by the model. The orchestrator
// only records it; execution happens inside the runtime.
type ToolInvocation struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolInvocation) isSegment() {}

// Params decodes the invocation input as a JSON object.
func (t ToolInvocation) Params() (map[string]any, error) {
	params := map[string]any{}
	if len(t.Input) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(t.Input, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// ToolSet returns the sorted, de-duplicated set of tool names.
func ToolSet(names ...string) []string {
	set := slices.Clone(names)
	slices.Sort(set)
	return slices.Compact(set)
}
