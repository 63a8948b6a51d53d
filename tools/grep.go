package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/i2y/openagent/llm"
)

var errBinary = errors.New("binary file")

// GrepInput defines the input for the Grep tool.
type GrepInput struct {
	Pattern    string `json:"pattern" jsonschema:"required,description=Regular expression pattern to search for"`
	Path       string `json:"path,omitempty" jsonschema:"description=File or directory to search in, relative to the workspace root (default: root)"`
	Glob       string `json:"glob,omitempty" jsonschema:"description=File pattern filter (e.g. **/*.go)"`
	MaxMatches int    `json:"max_matches,omitempty" jsonschema:"description=Maximum number of matches to return (default: 100)"`
}

// GrepOutput defines the output of the Grep tool.
type GrepOutput struct {
	Matches   []GrepMatch `json:"matches"`
	Count     int         `json:"count"`
	Truncated bool        `json:"truncated"`
}

// GrepMatch represents a single match.
type GrepMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// GrepTool returns the grep tool.
func (w *Workspace) GrepTool() llm.Tool {
	return llm.MustNewTool(
		"grep",
		"Search for a regular expression pattern in files. Returns matching lines with file and line number.",
		w.grep,
	)
}

func (w *Workspace) grep(ctx context.Context, input GrepInput) (GrepOutput, error) {
	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return GrepOutput{}, err
	}

	base, err := w.resolve(input.Path)
	if err != nil {
		return GrepOutput{}, err
	}

	maxMatches := input.MaxMatches
	if maxMatches <= 0 {
		maxMatches = defaultMaxMatches
	}

	files, err := w.grepFiles(base, input.Glob)
	if err != nil {
		return GrepOutput{}, err
	}

	out := GrepOutput{Matches: []GrepMatch{}}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return GrepOutput{}, err
		}

		// Unreadable and binary files are skipped.
		matches, more, err := w.searchFile(file, re, maxMatches-len(out.Matches))
		if err != nil {
			continue
		}
		out.Matches = append(out.Matches, matches...)
		if more {
			out.Truncated = true
			break
		}
	}
	out.Count = len(out.Matches)
	return out, nil
}

// grepFiles lists the files to search under base, filtered by pattern.
func (w *Workspace) grepFiles(base, pattern string) ([]string, error) {
	info, err := os.Stat(base)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{base}, nil
	}

	if pattern == "" {
		pattern = "**"
	}
	matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	files := make([]string, len(matches))
	for i, m := range matches {
		files[i] = filepath.Join(base, filepath.FromSlash(m))
	}
	return files, nil
}

// searchFile returns up to limit matching lines and whether more remain.
// With limit zero it only reports whether the file has any match.
func (w *Workspace) searchFile(path string, re *regexp.Regexp, limit int) ([]GrepMatch, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = file.Close() }()

	reader := bufio.NewReader(file)
	if head, _ := reader.Peek(512); bytes.IndexByte(head, 0) >= 0 {
		return nil, false, errBinary
	}

	var matches []GrepMatch
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), w.maxReadBytes)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if !re.MatchString(line) {
			continue
		}
		if len(matches) >= limit {
			return matches, true, nil
		}
		matches = append(matches, GrepMatch{
			File:    w.display(path),
			Line:    lineNum,
			Content: line,
		})
	}

	return matches, false, scanner.Err()
}
