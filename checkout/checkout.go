/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package checkout inspects the local clone the agent will review.
package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
)

// minPrefix is the shortest commit SHA prefix accepted as a match.
const minPrefix = 7

// MismatchError reports a working tree checked out at a different commit
// than the one under review.
type MismatchError struct {
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("working tree is at %s, want %s", e.Got, e.Want)
}

// State describes the working tree.
type State struct {
	Head   string
	Branch string // empty on a detached HEAD
	Clean  bool
}

// Inspect opens the repository containing dir and reports its HEAD.
func Inspect(dir string) (*State, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", dir, err)
	}
	ref, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	st := &State{Head: ref.Hash().String()}
	if ref.Name().IsBranch() {
		st.Branch = ref.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}
	st.Clean = status.IsClean()
	return st, nil
}

// Verify checks that the repository at dir has sha checked out. sha may
// be abbreviated to no fewer than seven characters.
func Verify(dir, sha string) (*State, error) {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if len(sha) < minPrefix {
		return nil, errors.New("commit SHA must have at least 7 characters")
	}
	st, err := Inspect(dir)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(st.Head, sha) {
		return st, &MismatchError{Want: sha, Got: st.Head}
	}
	return st, nil
}
