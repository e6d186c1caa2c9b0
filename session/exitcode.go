/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package session

// ExitCode is the process exit status of a review run.
type ExitCode int

const (
	ExitSuccess      ExitCode = 0
	ExitAborted      ExitCode = 1
	ExitConfig       ExitCode = 2
	ExitRuntimeStart ExitCode = 3
	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted ExitCode = 130
)

func (c ExitCode) Int() int {
	return int(c)
}
