/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package messages

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainguard.dev/reviewagent/platform/platformtest"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"short", "abc", 5, "abc"},
		{"exact", "abc", 3, "abc"},
		{"ascii", "abcdef", 4, "abcd"},
		{"inside two byte rune", "aé", 2, "a"},
		{"after two byte rune", "aéb", 3, "aé"},
		{"inside four byte rune", "x🙂y", 3, "x"},
		{"first rune", "🙂", 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateUTF8(tt.s, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestDiffTruncationKeepsRunes(t *testing.T) {
	// A three byte rune straddles the limit.
	d := strings.Repeat("a", maxDiffBytes-1) + "€" + "tail"
	rt := newRuntime(t, &fakeAPI{}, &platformtest.Fake{DiffText: d})

	got, err := rt.diff(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(got), "truncated diff must stay valid UTF-8")
	body, note, ok := strings.Cut(got, "\n... diff truncated")
	require.True(t, ok, "truncation note missing")
	assert.Equal(t, maxDiffBytes-1, len(body))
	assert.Contains(t, note, "get_changed_files")
}
