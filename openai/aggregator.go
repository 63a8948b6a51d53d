package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/i2y/openagent/provider"
)

// aggregator reassembles streamed deltas into complete content blocks.
// It is single-use: one aggregator per request.
//
// Text is buffered and emitted as a single block when the turn finishes.
// Tool-call fragments are merged by their positional index and emitted in
// index order at the same point.
type aggregator struct {
	text      strings.Builder
	toolCalls map[int]*partialToolCall
}

// partialToolCall accumulates the fragments of one tool call.
type partialToolCall struct {
	id        string
	name      string
	arguments strings.Builder
}

func newAggregator() *aggregator {
	return &aggregator{toolCalls: make(map[int]*partialToolCall)}
}

// process folds one chunk into the aggregator and returns the blocks
// completed by it, if any.
func (a *aggregator) process(chunk *streamChunk) ([]provider.ContentBlock, error) {
	var blocks []provider.ContentBlock

	for _, choice := range chunk.Choices {
		a.text.WriteString(choice.Delta.Content)

		for _, tc := range choice.Delta.ToolCalls {
			partial, ok := a.toolCalls[tc.Index]
			if !ok {
				partial = &partialToolCall{}
				a.toolCalls[tc.Index] = partial
			}
			if tc.ID != "" {
				partial.id = tc.ID
			}
			if tc.Function.Name != "" {
				partial.name = tc.Function.Name
			}
			partial.arguments.WriteString(tc.Function.Arguments)
		}

		if choice.FinishReason != nil {
			flushed, err := a.flush()
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, flushed...)
		}
	}

	return blocks, nil
}

// flush drains everything buffered so far. Tool calls missing an id or a
// name are dropped; an empty argument buffer becomes an empty object.
func (a *aggregator) flush() ([]provider.ContentBlock, error) {
	var blocks []provider.ContentBlock

	if a.text.Len() > 0 {
		blocks = append(blocks, provider.TextBlock{Text: a.text.String()})
		a.text.Reset()
	}

	indices := slices.Sorted(maps.Keys(a.toolCalls))
	pending := a.toolCalls
	a.toolCalls = make(map[int]*partialToolCall)

	for _, idx := range indices {
		partial := pending[idx]
		if partial.id == "" || partial.name == "" {
			continue
		}

		input, err := parseArguments(partial.arguments.String())
		if err != nil {
			return nil, &StreamError{
				Op:    fmt.Sprintf("parsing arguments of tool call %q (%s)", partial.id, partial.name),
				Cause: err,
			}
		}

		blocks = append(blocks, provider.ToolUseBlock{
			ID:    partial.id,
			Name:  partial.name,
			Input: input,
		})
	}

	return blocks, nil
}

func parseArguments(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return json.RawMessage(`{}`), nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
