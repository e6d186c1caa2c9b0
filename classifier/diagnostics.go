/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EntryKind labels a diagnostics entry.
type EntryKind string

const (
	EntrySystemInit  EntryKind = "system_init"
	EntryAssistant   EntryKind = "assistant"
	EntryResult      EntryKind = "result"
	EntryDecodeError EntryKind = "decode_error"
	EntryNote        EntryKind = "note"
)

// Entry is one line of the session audit log.
type Entry struct {
	Seq     int       `json:"seq"`
	Kind    EntryKind `json:"kind"`
	Summary string    `json:"summary"`
	// Details holds one item per assistant segment, verbatim.
	Details []string `json:"details,omitempty"`
}

// Diagnostics is the ordered audit log of a session.
type Diagnostics []Entry

// String renders the log for operators. Multi-line details are indented
// under their entry.
func (d Diagnostics) String() string {
	var sb strings.Builder
	for _, e := range d {
		fmt.Fprintf(&sb, "[%d] %s %s\n", e.Seq, e.Kind, e.Summary)
		for _, detail := range e.Details {
			sb.WriteString("      ")
			sb.WriteString(strings.ReplaceAll(detail, "\n", "\n      "))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// WriteJSONL writes one JSON object per entry.
func (d Diagnostics) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, e := range d {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("writing diagnostics entry %d: %w", e.Seq, err)
		}
	}
	return nil
}

// Count returns the number of entries of kind k.
func (d Diagnostics) Count(k EntryKind) int {
	n := 0
	for _, e := range d {
		if e.Kind == k {
			n++
		}
	}
	return n
}
