package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/i2y/openagent/llm"
)

// WriteInput defines the input for the Write tool.
type WriteInput struct {
	Path    string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Content string `json:"content" jsonschema:"required,description=Content to write to the file"`
	Append  bool   `json:"append,omitempty" jsonschema:"description=Append to the file instead of replacing it"`
}

// WriteOutput defines the output of the Write tool.
type WriteOutput struct {
	Success bool   `json:"success"`
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
}

// WriteTool returns the write tool.
func (w *Workspace) WriteTool() llm.Tool {
	return llm.MustNewTool(
		"write",
		"Write content to a file. Creates parent directories if needed.",
		w.write,
	)
}

func (w *Workspace) write(ctx context.Context, input WriteInput) (WriteOutput, error) {
	if w.readOnly {
		return WriteOutput{}, errors.New("workspace is read-only")
	}
	if input.Path == "" {
		return WriteOutput{}, errors.New("path is required")
	}

	path, err := w.resolve(input.Path)
	if err != nil {
		return WriteOutput{}, err
	}
	if path == w.root {
		return WriteOutput{}, errors.New("cannot write to the workspace root")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WriteOutput{}, fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if input.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return WriteOutput{}, fmt.Errorf("failed to open file: %w", err)
	}

	n, err := file.WriteString(input.Content)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return WriteOutput{}, fmt.Errorf("failed to write file: %w", err)
	}

	return WriteOutput{
		Success: true,
		Path:    w.display(path),
		Bytes:   n,
	}, nil
}
