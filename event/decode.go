/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// ErrIgnored is returned by Decode for well-formed lines that carry no
// session event (tool results echoed back as "user" messages, partial
// stream deltas, non-init system notices).
var ErrIgnored = errors.New("line carries no session event")

// maxLineSize bounds a single stream-json line. Tool inputs and outputs
// embedding whole files can be large.
const maxLineSize = 4 * 1024 * 1024

// DecodeError reports a single malformed event. The stream it came from
// remains usable.
type DecodeError struct {
	// Line is the offending input, truncated for logging.
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding session event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func newDecodeError(line []byte, err error) *DecodeError {
	const limit = 200
	s := string(line)
	if len(s) > limit {
		s = s[:limit-3] + "..."
	}
	return &DecodeError{Line: s, Err: err}
}

type envelope struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
}

type wireInit struct {
	SessionID  string   `json:"session_id"`
	Model      string   `json:"model"`
	CWD        string   `json:"cwd"`
	Tools      []string `json:"tools"`
	MCPServers []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
	} `json:"mcp_servers"`
}

type wireBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type wireAssistant struct {
	SessionID string `json:"session_id"`
	Message   *struct {
		Content []wireBlock `json:"content"`
	} `json:"message"`
}

type wireResult struct {
	Subtype           string            `json:"subtype"`
	SessionID         string            `json:"session_id"`
	IsError           bool              `json:"is_error"`
	DurationMs        int64             `json:"duration_ms"`
	NumTurns          int               `json:"num_turns"`
	Result            string            `json:"result"`
	TotalCostUSD      *float64          `json:"total_cost_usd"`
	CostUSD           *float64          `json:"cost_usd"`
	PermissionDenials []json.RawMessage `json:"permission_denials"`
}

type wireDenial struct {
	ToolName  string `json:"tool_name"`
	ToolUseID string `json:"tool_use_id"`
}

// wireUser is the echo of tool results back to the model. Content is a
// plain string for prompts, so it is decoded leniently.
type wireUser struct {
	Message struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

type wireToolResult struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error"`
}

// Decode parses one line of the agent runtime's stream-json output.
// Malformed lines yield a *DecodeError; lines without a session event
// yield ErrIgnored. Decode keeps no state between lines; use a Decoder to
// have the Result name the tool uses that failed.
func Decode(line []byte) (Event, error) {
	return new(Decoder).Decode(line)
}

// Decoder decodes the lines of one stream in order. It remembers the tool
// results that reported an error and lists them in the Result.
type Decoder struct {
	failed []string
}

// Decode parses the next line of the stream. See the package-level Decode.
func (d *Decoder) Decode(line []byte) (Event, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, ErrIgnored
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, newDecodeError(line, fmt.Errorf("parsing envelope: %w", err))
	}

	switch env.Type {
	case "system":
		if env.Subtype != "init" {
			return nil, ErrIgnored
		}
		return decodeInit(line)
	case "assistant":
		return decodeAssistant(line)
	case "result":
		return decodeResult(line, d.failed)
	case "user":
		d.observeToolResults(line)
		return nil, ErrIgnored
	case "":
		return nil, newDecodeError(line, errors.New("missing event type"))
	default:
		return nil, ErrIgnored
	}
}

func decodeInit(line []byte) (Event, error) {
	var w wireInit
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, newDecodeError(line, fmt.Errorf("parsing system init: %w", err))
	}
	servers := make([]string, 0, len(w.MCPServers))
	for _, s := range w.MCPServers {
		servers = append(servers, s.Name)
	}
	return SystemInit{
		SessionID:        w.SessionID,
		Model:            w.Model,
		WorkingDirectory: w.CWD,
		Tools:            ToolSet(w.Tools...),
		MCPServers:       servers,
	}, nil
}

func decodeAssistant(line []byte) (Event, error) {
	var w wireAssistant
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, newDecodeError(line, fmt.Errorf("parsing assistant message: %w", err))
	}
	if w.Message == nil {
		return nil, newDecodeError(line, errors.New("assistant event without message"))
	}

	segments := make([]Segment, 0, len(w.Message.Content))
	for i, block := range w.Message.Content {
		switch block.Type {
		case "text":
			segments = append(segments, Text{Body: block.Text})
		case "tool_use":
			if block.Name == "" {
				return nil, newDecodeError(line, fmt.Errorf("content block %d: tool_use without name", i))
			}
			segments = append(segments, ToolInvocation{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		default:
			// thinking, redacted_thinking and server-side blocks are not part
			// of the session record.
		}
	}
	return Assistant{Segments: segments}, nil
}

// observeToolResults records the tool results in a user line that carry
// is_error. Lines of any other shape are not session events and are
// passed over.
func (d *Decoder) observeToolResults(line []byte) {
	var w wireUser
	if err := json.Unmarshal(line, &w); err != nil {
		return
	}
	var blocks []wireToolResult
	if err := json.Unmarshal(w.Message.Content, &blocks); err != nil {
		return
	}
	for _, b := range blocks {
		if b.Type == "tool_result" && b.IsError && b.ToolUseID != "" {
			d.failed = append(d.failed, b.ToolUseID)
		}
	}
}

func decodeResult(line []byte, failed []string) (Event, error) {
	var w wireResult
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, newDecodeError(line, fmt.Errorf("parsing result: %w", err))
	}
	if w.Subtype == "" {
		return nil, newDecodeError(line, errors.New("result event without subtype"))
	}

	var cost float64
	switch {
	case w.TotalCostUSD != nil:
		cost = *w.TotalCostUSD
	case w.CostUSD != nil:
		cost = *w.CostUSD
	}

	return Result{
		SessionID:         w.SessionID,
		Subtype:           ParseResultSubtype(w.Subtype),
		IsError:           w.IsError,
		DurationMs:        w.DurationMs,
		TurnCount:         w.NumTurns,
		CostUSD:           cost,
		ResultText:        w.Result,
		PermissionDenials: len(w.PermissionDenials),
		DeniedToolUses:    deniedToolUses(w.PermissionDenials),
		FailedToolUses:    slices.Clone(failed),
	}, nil
}

func deniedToolUses(denials []json.RawMessage) []string {
	var ids []string
	for _, raw := range denials {
		var d wireDenial
		if err := json.Unmarshal(raw, &d); err == nil && d.ToolUseID != "" {
			ids = append(ids, d.ToolUseID)
		}
	}
	return ids
}

// Scan decodes newline-delimited stream-json from r and hands every session
// event or *DecodeError to emit, in input order. Ignored lines are skipped.
// A line longer than the size limit is discarded up to its newline and
// reported as a *DecodeError. Scan returns when r is exhausted, when emit
// returns false, or with the read error that stopped it.
func Scan(r io.Reader, emit func(Event, error) bool) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		dec Decoder
		ln  lineBuffer
	)
	for {
		chunk, err := br.ReadSlice('\n')
		ln.add(chunk)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if !ln.empty() {
			ev, derr := ln.decode(&dec)
			ln = lineBuffer{}
			if !errors.Is(derr, ErrIgnored) && !emit(ev, derr) {
				return nil
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("reading event stream: %w", err)
		}
	}
}

// lineBuffer assembles one line from reader chunks. Past maxLineSize it
// keeps only a prefix for the error report and counts the rest.
type lineBuffer struct {
	data     []byte
	size     int
	oversize bool
}

func (b *lineBuffer) add(chunk []byte) {
	b.size += len(chunk)
	if b.oversize {
		return
	}
	if b.size > maxLineSize {
		b.oversize = true
		b.data = b.data[:min(len(b.data), 256)]
		return
	}
	b.data = append(b.data, chunk...)
}

func (b *lineBuffer) empty() bool {
	return b.size == 0
}

func (b *lineBuffer) decode(dec *Decoder) (Event, error) {
	if b.oversize {
		return nil, newDecodeError(b.data, fmt.Errorf("line of %d bytes exceeds the %d byte limit", b.size, maxLineSize))
	}
	return dec.Decode(b.data)
}
