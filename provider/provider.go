// Package provider defines the wire-agnostic conversation model and the
// interface implemented by chat-completion backends.
package provider

import "context"

// Provider is the core abstraction for chat-completion backends.
type Provider interface {
	// Name returns the provider identifier (e.g., "ollama", "lmstudio").
	Name() string

	// Stream issues a streaming request and returns once the server has
	// accepted it. Blocks are delivered lazily through the returned Stream.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream is a live sequence of completed content blocks for one request.
// It is consumed exactly once.
type Stream interface {
	// Next returns the next completed block, or io.EOF once the turn is over.
	Next() (ContentBlock, error)

	// Close releases the underlying response body.
	Close() error
}
