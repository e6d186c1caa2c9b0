/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package messages runs review sessions in process against the Anthropic
// Messages API.
//
// The runtime streams each model response, turns it into one Assistant
// event and executes the requested tools against a platform.Client:
//
//   - get_changed_files lists the pull request files, minus the paths the
//     review guidelines ignore.
//   - get_diff returns the unified diff.
//   - submit_review posts the review. It mutates the pull request, so it is
//     denied (and counted as a permission denial) unless the session runs
//     with session.AutoApprove.
//
// The session ends with a Result: success once the model stops calling
// tools, error_max_turns when the turn bound is reached with tool calls
// still pending, and error_during_execution when the API fails with a
// non-retryable error. Rate limits and overloads are retried with
// exponential backoff first.
//
// Example:
//
//	client := anthropic.NewClient(option.WithAPIKey(key))
//	rt, err := messages.New(client, gh, req.Identity(),
//		messages.WithGuidelines(req.Guidelines()))
//	if err != nil {
//		return err
//	}
//	stream, err := rt.Start(ctx, req.Instructions(), agentruntime.ConfigFor(req))
package messages
