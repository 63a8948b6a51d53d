package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/i2y/openagent/provider"
)

// Client is a multi-turn conversation with an OpenAI-compatible server.
//
// A Client runs one request at a time: Send, Receive and the history
// methods must not be called concurrently. Interrupt is the exception and
// may be called from any goroutine.
//
// Example:
//
//	client, err := llm.NewClient(
//	    llm.WithModel("qwen2.5-32b-instruct"),
//	    llm.WithServer("lmstudio"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Send(ctx, "What's the capital of France?"); err != nil {
//	    return err
//	}
//	for block, err := range client.Blocks(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    if text, ok := block.(llm.TextBlock); ok {
//	        fmt.Println(text.Text)
//	    }
//	}
type Client struct {
	opts     *AgentOptions
	provider provider.Provider
	tools    *ToolRegistry
	logger   *slog.Logger

	history     []Message
	stream      provider.Stream
	interrupted atomic.Bool

	// Auto-execution state: pending is set by Send and consumed by the
	// first Receive, which runs the loop and fills buffer.
	pending bool
	buffer  []ContentBlock
}

// NewClient creates a client from options.
func NewClient(opts ...Option) (*Client, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return NewClientWithOptions(o)
}

// NewClientWithOptions creates a client from options, typically built with
// NewOptions. The options are validated again and must not be changed
// afterwards.
func NewClientWithOptions(o *AgentOptions) (*Client, error) {
	if o == nil {
		return nil, &ConfigError{Field: "options", Reason: "nil"}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	p, err := o.newProvider()
	if err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		opts:     o,
		provider: p,
		tools:    NewToolRegistry(o.Tools...),
		logger:   logger,
	}, nil
}

// Send submits a prompt and starts streaming the response. It returns once
// the server has accepted the request; use Receive or Blocks to read it.
//
// The prompt is appended to the history before the request is made, so the
// history reflects the attempt even if the request fails. An empty prompt
// continues the conversation, e.g. after AddToolResult.
func (c *Client) Send(ctx context.Context, prompt string) error {
	c.interrupted.Store(false)
	c.pending = false
	c.buffer = nil
	c.closeStream()

	if err := c.send(ctx, prompt); err != nil {
		return err
	}
	c.pending = c.opts.AutoExecute
	return nil
}

// send runs the prompt hooks, records the prompt and opens a new stream.
// It leaves the interrupt flag alone so the auto loop can continue a
// conversation without losing an Interrupt.
func (c *Client) send(ctx context.Context, prompt string) error {
	if d := c.opts.Hooks.RunUserPromptSubmit(ctx, UserPromptSubmitEvent{
		Prompt:  prompt,
		History: c.History(),
	}); d != nil {
		if !d.Continue {
			c.logger.Debug("prompt blocked by hook", "reason", d.Reason)
			return &BlockedError{Hook: HookUserPromptSubmit, Reason: d.Reason}
		}
		if d.ModifiedPrompt != nil {
			c.logger.Debug("prompt modified by hook", "reason", d.Reason)
			prompt = *d.ModifiedPrompt
		}
	}

	c.history = append(c.history, UserMessage(prompt))
	c.closeStream()

	req, err := c.opts.request(c.History())
	if err != nil {
		return err
	}

	stream, err := c.provider.Stream(ctx, req)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	c.stream = stream
	return nil
}

// Receive returns the next content block of the current response, or
// (nil, nil) when there are no more blocks.
//
// With auto-execution enabled, the first Receive after Send runs the tool
// loop to completion and only the final text blocks are returned.
func (c *Client) Receive(ctx context.Context) (ContentBlock, error) {
	if c.opts.AutoExecute {
		if c.pending {
			c.pending = false
			blocks, err := c.runAutoLoop(ctx)
			if err != nil {
				return nil, err
			}
			c.buffer = blocks
		}
		if len(c.buffer) == 0 {
			return nil, nil
		}
		block := c.buffer[0]
		c.buffer = c.buffer[1:]
		return block, nil
	}

	return c.next()
}

// next pulls one block from the active stream.
func (c *Client) next() (ContentBlock, error) {
	if c.interrupted.Load() {
		if c.stream != nil {
			c.logger.Debug("interrupt observed, dropping stream")
		}
		c.closeStream()
		return nil, nil
	}
	if c.stream == nil {
		return nil, nil
	}

	block, err := c.stream.Next()
	if errors.Is(err, io.EOF) {
		c.closeStream()
		return nil, nil
	}
	if err != nil {
		c.closeStream()
		return nil, err
	}
	return block, nil
}

// Blocks returns an iterator over the remaining blocks of the current
// response. Iteration stops after the first error.
func (c *Client) Blocks(ctx context.Context) iter.Seq2[ContentBlock, error] {
	return func(yield func(ContentBlock, error) bool) {
		for {
			block, err := c.Receive(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if block == nil {
				return
			}
			if !yield(block, nil) {
				return
			}
		}
	}
}

// Interrupt stops delivery of the current response at the next Receive.
// In-flight network reads are not aborted. It is safe to call from any
// goroutine and more than once.
func (c *Client) Interrupt() {
	c.interrupted.Store(true)
}

// Interrupted reports whether Interrupt was called since the last Send.
func (c *Client) Interrupted() bool {
	return c.interrupted.Load()
}

// AddToolResult records the result of a tool call in manual mode. Send an
// empty prompt afterwards to let the model continue.
func (c *Client) AddToolResult(toolUseID string, result any) error {
	content, err := EncodeResult(result)
	if err != nil {
		return fmt.Errorf("encoding result for %q: %w", toolUseID, err)
	}
	c.history = append(c.history, ToolResultMessage(toolUseID, content))
	return nil
}

// History returns a copy of the conversation history. Changes to the copy,
// including to message content, are not seen by the client.
func (c *Client) History() []Message {
	return cloneMessages(c.history)
}

// SetHistory replaces the conversation history, e.g. with the result of
// TruncateMessages.
func (c *Client) SetHistory(messages []Message) {
	c.history = cloneMessages(messages)
}

// ClearHistory empties the conversation history.
func (c *Client) ClearHistory() {
	c.history = nil
}

// GetTool looks up a registered tool by name.
func (c *Client) GetTool(name string) (Tool, bool) {
	return c.tools.Get(name)
}

// Tools returns the registered tools in registration order.
func (c *Client) Tools() []Tool {
	return c.tools.All()
}

// Options returns a copy of the client configuration.
func (c *Client) Options() AgentOptions {
	return *c.opts
}

// Close releases the active stream, if any.
func (c *Client) Close() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	return err
}

func (c *Client) closeStream() {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
}
