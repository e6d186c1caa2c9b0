/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package platform

import (
	"fmt"

	"github.com/waigani/diffparser"
)

type anchor struct {
	path string
	side Side
	line int
}

// anchors indexes the lines of a unified diff that accept inline comments.
type anchors map[anchor]struct{}

func parseAnchors(diff string) (anchors, error) {
	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	idx := anchors{}
	for _, f := range parsed.Files {
		name := f.NewName
		if name == "" {
			name = f.OrigName
		}
		for _, h := range f.Hunks {
			for _, l := range h.NewRange.Lines {
				if l.Mode != diffparser.REMOVED {
					idx[anchor{path: name, side: SideRight, line: l.Number}] = struct{}{}
				}
			}
			for _, l := range h.OrigRange.Lines {
				if l.Mode != diffparser.ADDED {
					idx[anchor{path: name, side: SideLeft, line: l.Number}] = struct{}{}
				}
			}
		}
	}
	return idx, nil
}

// filter splits comments into those GitHub will accept and those it would
// reject with a 422 for pointing outside the diff.
func (a anchors) filter(comments []InlineComment) (kept, dropped []InlineComment) {
	for _, c := range comments {
		side := c.Side
		if side == "" {
			side = SideRight
		}
		if _, ok := a[anchor{path: c.Path, side: side, line: c.Line}]; ok {
			kept = append(kept, c)
		} else {
			dropped = append(dropped, c)
		}
	}
	return kept, dropped
}
