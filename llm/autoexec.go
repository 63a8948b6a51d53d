package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
)

// runAutoLoop drives the tool loop for the response started by Send and
// returns the text blocks of the final turn.
//
// Each turn is collected in full. A turn without tool calls ends the loop.
// Otherwise the calls are run one by one, their results appended to the
// history, and the conversation continued with an empty prompt. Once the
// number of tool turns exceeds MaxToolIterations the loop stops without
// running the last turn's calls.
func (c *Client) runAutoLoop(ctx context.Context) ([]ContentBlock, error) {
	if c.interrupted.Load() {
		c.logger.Debug("interrupt observed before auto-execution")
		c.closeStream()
		return nil, nil
	}

	iterations := 0
	for {
		blocks, err := c.collectTurn()
		if err != nil {
			return nil, err
		}

		var texts, toolUses []ContentBlock
		for _, b := range blocks {
			switch b.(type) {
			case TextBlock:
				texts = append(texts, b)
			case ToolUseBlock:
				toolUses = append(toolUses, b)
			}
		}

		if len(toolUses) == 0 {
			if len(texts) > 0 {
				c.history = append(c.history, Message{Role: RoleAssistant, Content: texts})
			}
			return texts, nil
		}

		iterations++
		turn := make([]ContentBlock, 0, len(texts)+len(toolUses))
		turn = append(turn, texts...)
		turn = append(turn, toolUses...)
		c.history = append(c.history, Message{Role: RoleAssistant, Content: turn})

		if iterations > c.opts.MaxToolIterations {
			c.logger.Debug("tool iteration limit reached",
				"max_tool_iterations", c.opts.MaxToolIterations,
				"unexecuted_calls", len(toolUses),
			)
			return texts, nil
		}

		for _, b := range toolUses {
			call := b.(ToolUseBlock)
			result := c.runTool(ctx, call)
			c.history = append(c.history, ToolResultMessage(call.ID, result))
		}

		if c.interrupted.Load() {
			c.logger.Debug("interrupt observed after tool round")
			return nil, ErrInterrupted
		}

		if err := c.send(ctx, ""); err != nil {
			return nil, err
		}
	}
}

// collectTurn drains the active stream.
func (c *Client) collectTurn() ([]ContentBlock, error) {
	var blocks []ContentBlock
	for {
		if c.interrupted.Load() {
			c.closeStream()
			return nil, ErrInterrupted
		}
		if c.stream == nil {
			return blocks, nil
		}

		block, err := c.stream.Next()
		if errors.Is(err, io.EOF) {
			c.closeStream()
			return blocks, nil
		}
		if err != nil {
			c.closeStream()
			return nil, err
		}
		blocks = append(blocks, block)
	}
}

// runTool executes one tool call through the tool hooks. Failures never
// escape: they become a JSON error object handed back to the model.
func (c *Client) runTool(ctx context.Context, call ToolUseBlock) json.RawMessage {
	input := slices.Clone(call.Input)
	var result json.RawMessage

	d := c.opts.Hooks.RunPreToolUse(ctx, PreToolUseEvent{
		ToolName:  call.Name,
		ToolInput: input,
		ToolUseID: call.ID,
		History:   c.History(),
	})
	switch {
	case d != nil && !d.Continue:
		c.logger.Debug("tool call blocked by hook", "tool", call.Name, "id", call.ID, "reason", d.Reason)
		result = toolErrorResult(call, "Tool execution blocked by hook", d.Reason)
	default:
		if d != nil && d.ModifiedInput != nil {
			c.logger.Debug("tool input modified by hook", "tool", call.Name, "id", call.ID, "reason", d.Reason)
			input = d.ModifiedInput
		}

		out, err := c.tools.Execute(ctx, call.Name, input)
		if err != nil {
			c.logger.Debug("tool call failed", "tool", call.Name, "id", call.ID, "err", err)
			result = toolErrorResult(call, err.Error(), "")
		} else {
			c.logger.Debug("tool call executed", "tool", call.Name, "id", call.ID)
			result = out
		}
	}

	if d := c.opts.Hooks.RunPostToolUse(ctx, PostToolUseEvent{
		ToolName:   call.Name,
		ToolInput:  input,
		ToolUseID:  call.ID,
		ToolResult: result,
		History:    c.History(),
	}); d != nil && d.ModifiedInput != nil {
		c.logger.Debug("tool result modified by hook", "tool", call.Name, "id", call.ID, "reason", d.Reason)
		result = d.ModifiedInput
	}

	return result
}

type toolErrorPayload struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Tool   string `json:"tool"`
	ID     string `json:"id"`
}

func toolErrorResult(call ToolUseBlock, msg, reason string) json.RawMessage {
	raw, _ := json.Marshal(toolErrorPayload{
		Error:  msg,
		Reason: reason,
		Tool:   call.Name,
		ID:     call.ID,
	})
	return raw
}
