package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/i2y/openagent/llm"
)

// ReadInput defines the input for the Read tool.
type ReadInput struct {
	Path   string `json:"path" jsonschema:"required,description=File path relative to the workspace root"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=Line offset to start from (0-based)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Max lines to read (default: 0 = all)"`
}

// ReadOutput defines the output of the Read tool.
type ReadOutput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Lines     int    `json:"lines"`
	Truncated bool   `json:"truncated"`
}

// ReadTool returns the read tool.
func (w *Workspace) ReadTool() llm.Tool {
	return llm.MustNewTool(
		"read",
		"Read the contents of a file. Supports reading specific line ranges.",
		w.read,
	)
}

func (w *Workspace) read(ctx context.Context, input ReadInput) (ReadOutput, error) {
	if input.Offset < 0 || input.Limit < 0 {
		return ReadOutput{}, fmt.Errorf("offset and limit must not be negative")
	}

	path, err := w.resolve(input.Path)
	if err != nil {
		return ReadOutput{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return ReadOutput{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), w.maxReadBytes)

	var (
		lines     []string
		size      int
		lineNum   int
		truncated bool
	)
	for scanner.Scan() {
		if lineNum < input.Offset {
			lineNum++
			continue
		}
		if input.Limit > 0 && len(lines) >= input.Limit {
			truncated = true
			break
		}

		line := scanner.Text()
		if size+len(line) > w.maxReadBytes {
			truncated = true
			break
		}
		size += len(line) + 1
		lines = append(lines, line)
		lineNum++
	}
	if err := scanner.Err(); err != nil {
		return ReadOutput{}, fmt.Errorf("failed to read file: %w", err)
	}

	return ReadOutput{
		Path:      w.display(path),
		Content:   strings.Join(lines, "\n"),
		Lines:     len(lines),
		Truncated: truncated,
	}, nil
}
