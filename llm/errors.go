package llm

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrInvalidInput is returned for malformed caller input such as an
	// unsupported image URL.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInterrupted is returned by the auto-execution loop when Interrupt
	// is observed while a turn is being collected.
	ErrInterrupted = errors.New("interrupted")
)

// ConfigError reports a missing or invalid option.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// BlockedError is returned when a hook vetoes an operation.
type BlockedError struct {
	Hook   HookEvent
	Reason string
}

func (e *BlockedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("blocked by %s hook", e.Hook)
	}
	return fmt.Sprintf("blocked by %s hook: %s", e.Hook, e.Reason)
}

// ToolError represents an error during tool execution.
type ToolError struct {
	ToolName string
	Cause    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.ToolName, e.Cause)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// ToolNotFoundError is returned when a tool is not found.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %q", e.Name)
}
