package tools

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/i2y/openagent/llm"
)

// GlobInput defines the input for the Glob tool.
type GlobInput struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Glob pattern (e.g. **/*.go for all Go files)"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search from, relative to the workspace root (default: root)"`
}

// GlobOutput defines the output of the Glob tool.
type GlobOutput struct {
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// GlobTool returns the glob tool.
func (w *Workspace) GlobTool() llm.Tool {
	return llm.MustNewTool(
		"glob",
		"Find files matching a glob pattern. Supports ** for recursive matching.",
		w.glob,
	)
}

func (w *Workspace) glob(ctx context.Context, input GlobInput) (GlobOutput, error) {
	if !doublestar.ValidatePattern(input.Pattern) {
		return GlobOutput{}, fmt.Errorf("invalid glob pattern %q", input.Pattern)
	}

	base, err := w.resolve(input.Path)
	if err != nil {
		return GlobOutput{}, err
	}

	matches, err := doublestar.Glob(os.DirFS(base), input.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return GlobOutput{}, err
	}

	prefix := w.display(base)
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		if prefix != "." {
			m = path.Join(prefix, m)
		}
		files = append(files, m)
	}

	return GlobOutput{
		Files: files,
		Count: len(files),
	}, nil
}
