/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"chainguard.dev/reviewagent/agentruntime"
	"chainguard.dev/reviewagent/event"
	"chainguard.dev/reviewagent/metrics"
	"chainguard.dev/reviewagent/platform"
	"chainguard.dev/reviewagent/retry"
	"chainguard.dev/reviewagent/session"
)

// Runtime implements agentruntime.Runtime with an in-process conversation
// loop over the Messages streaming API.
type Runtime struct {
	client     anthropic.Client
	platform   platform.Client
	identity   session.Identity
	maxTokens  int64
	retry      retry.RetryConfig
	metrics    *metrics.Session
	guidelines *session.Guidelines
}

var _ agentruntime.Runtime = (*Runtime)(nil)

// New creates a runtime whose tools act on the pull request at id through pc.
func New(client anthropic.Client, pc platform.Client, id session.Identity, opts ...Option) (*Runtime, error) {
	if pc == nil {
		return nil, errors.New("platform client cannot be nil")
	}
	r := &Runtime{
		client:    client,
		platform:  pc,
		identity:  id,
		maxTokens: 8192,
		retry:     retry.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return r, nil
}

// Start implements agentruntime.Runtime. The conversation runs on its own
// goroutine until a Result is emitted or the stream is closed.
func (r *Runtime) Start(ctx context.Context, instructions string, cfg agentruntime.Config) (event.Stream, error) {
	if cfg.MaxTurns <= 0 {
		return nil, fmt.Errorf("max turns must be positive, got %d", cfg.MaxTurns)
	}
	if cfg.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	convCtx, cancel := context.WithCancel(ctx)
	items := make(chan event.Item)
	done := make(chan struct{})

	c := &conversation{
		Runtime:   r,
		cfg:       cfg.Clone(),
		tools:     r.newToolbox(),
		sessionID: uuid.NewString(),
		items:     items,
		started:   time.Now(),
	}

	clog.FromContext(ctx).With("session_id", c.sessionID).
		With("model", cfg.Model).
		With("max_turns", cfg.MaxTurns).
		Info("Starting in-process review session")

	go func() {
		defer close(done)
		defer close(items)
		c.run(convCtx, instructions)
	}()

	return event.NewChanStream(items, func() error {
		cancel()
		<-done
		return nil
	}), nil
}

// conversation is the state of one running session.
type conversation struct {
	*Runtime
	cfg       agentruntime.Config
	tools     toolbox
	sessionID string
	items     chan<- event.Item
	started   time.Time

	turns        int
	inputTokens  int64
	outputTokens int64
	// Tool use IDs denied by the permission policy and those that failed.
	denied []string
	failed []string
}

func (c *conversation) send(ctx context.Context, ev event.Event) bool {
	select {
	case c.items <- event.Item{Event: ev}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *conversation) result(subtype event.ResultSubtype, text string) event.Result {
	return event.Result{
		SessionID:         c.sessionID,
		Subtype:           subtype,
		IsError:           subtype != event.ResultSuccess,
		DurationMs:        time.Since(c.started).Milliseconds(),
		TurnCount:         c.turns,
		CostUSD:           estimateCost(c.cfg.Model, c.inputTokens, c.outputTokens),
		ResultText:        text,
		PermissionDenials: len(c.denied),
		DeniedToolUses:    slices.Clone(c.denied),
		FailedToolUses:    slices.Clone(c.failed),
	}
}

func (c *conversation) run(ctx context.Context, instructions string) {
	log := clog.FromContext(ctx).With("session_id", c.sessionID)

	if !c.send(ctx, event.SystemInit{
		SessionID:        c.sessionID,
		Model:            c.cfg.Model,
		WorkingDirectory: c.cfg.WorkingDirectory,
		Tools:            c.tools.names(),
	}) {
		return
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(instructions)},
		}},
		Tools: c.tools.definitions(),
	}

	for {
		message, err := retry.RetryWithBackoff(ctx, c.retry, "stream_message", isRetryableClaudeError, func() (anthropic.Message, error) {
			stream := c.client.Messages.NewStreaming(ctx, params)
			defer stream.Close()
			var msg anthropic.Message
			for stream.Next() {
				if err := msg.Accumulate(stream.Current()); err != nil {
					return msg, fmt.Errorf("failed to accumulate event: %w", err)
				}
			}
			return msg, stream.Err()
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.With("error", err).Error("Messages API call failed")
			c.send(ctx, c.result(event.ResultErrorDuringExecution, err.Error()))
			return
		}
		c.turns++

		if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
			c.inputTokens += message.Usage.InputTokens
			c.outputTokens += message.Usage.OutputTokens
			if c.metrics != nil {
				c.metrics.RecordTokens(ctx, c.cfg.Model, message.Usage.InputTokens, message.Usage.OutputTokens)
			}
		}

		turn, toolUses, lastText := segments(message)
		if !c.send(ctx, turn) {
			return
		}

		if len(toolUses) == 0 {
			if message.StopReason == anthropic.StopReasonMaxTokens {
				log.Warn("Model response truncated at max tokens")
			}
			c.send(ctx, c.result(event.ResultSuccess, lastText))
			return
		}
		if c.turns >= c.cfg.MaxTurns {
			log.With("turns", c.turns).Warn("Turn limit reached with tool calls pending")
			c.send(ctx, c.result(event.ResultErrorMaxTurns, ""))
			return
		}

		results := make([]anthropic.ContentBlockParamUnion, 0, len(toolUses))
		for _, use := range toolUses {
			results = append(results, c.invoke(ctx, use))
		}
		params.Messages = append(params.Messages, message.ToParam(), anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: results,
		})
	}
}

// segments converts a model response into an Assistant event, the tool
// calls it requests and its last text block.
func segments(message anthropic.Message) (event.Assistant, []anthropic.ToolUseBlock, string) {
	turn := event.Assistant{Segments: []event.Segment{}}
	var uses []anthropic.ToolUseBlock
	var lastText string
	for _, content := range message.Content {
		switch content.Type {
		case "text":
			lastText = content.Text
			turn.Segments = append(turn.Segments, event.Text{Body: content.Text})
		case "tool_use":
			input := content.Input
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			uses = append(uses, anthropic.ToolUseBlock{ID: content.ID, Name: content.Name, Input: input})
			turn.Segments = append(turn.Segments, event.ToolInvocation{ID: content.ID, Name: content.Name, Input: input})
		}
	}
	return turn, uses, lastText
}

// invoke runs one tool call and returns its tool_result block. Tool
// failures are reported back to the model rather than ending the session.
func (c *conversation) invoke(ctx context.Context, use anthropic.ToolUseBlock) anthropic.ContentBlockParamUnion {
	log := clog.FromContext(ctx).With("tool", use.Name).With("id", use.ID)
	log.Info("Executing tool call")

	t, ok := c.tools[use.Name]
	if !ok {
		log.Error("Unknown tool requested")
		c.failed = append(c.failed, use.ID)
		return anthropic.NewToolResultBlock(use.ID, fmt.Sprintf("unknown tool: %q", use.Name), true)
	}
	if t.mutating && c.cfg.Permission != session.AutoApprove {
		c.denied = append(c.denied, use.ID)
		log.Warn("Tool call denied by permission policy")
		return anthropic.NewToolResultBlock(use.ID,
			fmt.Sprintf("permission to use %s was denied: the session runs with the %s permission policy", use.Name, c.cfg.Permission), true)
	}

	out, err := t.run(ctx, use.Input)
	if err != nil {
		log.With("error", err).Warn("Tool call failed")
		c.failed = append(c.failed, use.ID)
		return anthropic.NewToolResultBlock(use.ID, err.Error(), true)
	}
	return anthropic.NewToolResultBlock(use.ID, out, false)
}

// isRetryableClaudeError reports rate limit, overloaded and transient
// gateway errors.
func isRetryableClaudeError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 503, 504, 529:
			return true
		}
	}
	return false
}
