package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/i2y/openagent/provider"
)

// Query sends a single prompt without history or hooks and returns the
// response stream. Tool calls are returned as blocks, not executed.
//
// Example:
//
//	stream, err := llm.Query(ctx, "Recommend a fantasy book",
//	    llm.WithModel("llama3.1"),
//	    llm.WithServer("ollama"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	text, err := stream.Text()
func Query(ctx context.Context, prompt string, opts ...Option) (*Stream, error) {
	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}

	p, err := o.newProvider()
	if err != nil {
		return nil, err
	}

	req, err := o.request([]Message{UserMessage(prompt)})
	if err != nil {
		return nil, err
	}

	s, err := p.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	return &Stream{stream: s}, nil
}

// Stream is the response of a Query.
type Stream struct {
	stream provider.Stream
	done   bool
}

// Next returns the next block, or (nil, nil) once the response is complete.
func (s *Stream) Next() (ContentBlock, error) {
	if s.done {
		return nil, nil
	}

	block, err := s.stream.Next()
	if errors.Is(err, io.EOF) {
		s.done = true
		_ = s.stream.Close()
		return nil, nil
	}
	if err != nil {
		s.done = true
		_ = s.stream.Close()
		return nil, err
	}
	return block, nil
}

// Blocks returns an iterator over the remaining blocks.
// Iteration stops after the first error.
//
// Example:
//
//	for block, err := range stream.Blocks() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(block)
//	}
func (s *Stream) Blocks() iter.Seq2[ContentBlock, error] {
	return func(yield func(ContentBlock, error) bool) {
		for {
			block, err := s.Next()
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

// Text drains the stream and returns its text blocks joined by newlines.
func (s *Stream) Text() (string, error) {
	var parts []string
	for block, err := range s.Blocks() {
		if err != nil {
			return strings.Join(parts, "\n"), err
		}
		if t, ok := block.(TextBlock); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	s.done = true
	return s.stream.Close()
}
