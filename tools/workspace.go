// Package tools provides built-in filesystem tools for agents. Every tool
// is bound to a Workspace and cannot reach files outside its root.
//
// Example:
//
//	ws, err := tools.NewWorkspace("./project")
//	if err != nil {
//	    return err
//	}
//	client, err := llm.NewClient(
//	    llm.WithModel("qwen2.5-coder"),
//	    llm.WithServer("ollama"),
//	    llm.WithTools(ws.ReadOnlyTools()...),
//	    llm.WithAutoExecute(true),
//	)
package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/i2y/openagent/llm"
)

// ErrOutsideWorkspace is returned for paths that resolve outside the root.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

const (
	defaultMaxMatches   = 100
	defaultMaxReadBytes = 1 << 20
)

// Workspace is a directory the tools operate in.
type Workspace struct {
	root         string
	maxReadBytes int
	readOnly     bool
}

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithMaxReadBytes caps how much of a file the read tool returns.
func WithMaxReadBytes(n int) WorkspaceOption {
	return func(w *Workspace) {
		if n > 0 {
			w.maxReadBytes = n
		}
	}
}

// WithReadOnly makes the write tool refuse every call.
func WithReadOnly() WorkspaceOption {
	return func(w *Workspace) {
		w.readOnly = true
	}
}

// NewWorkspace returns a workspace rooted at dir, which must exist.
func NewWorkspace(dir string, opts ...WorkspaceOption) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %q is not a directory", dir)
	}

	w := &Workspace{root: abs, maxReadBytes: defaultMaxReadBytes}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Tools returns the read, write, glob and grep tools.
func (w *Workspace) Tools() []llm.Tool {
	return []llm.Tool{w.ReadTool(), w.WriteTool(), w.GlobTool(), w.GrepTool()}
}

// ReadOnlyTools returns the tools that don't modify the filesystem.
func (w *Workspace) ReadOnlyTools() []llm.Tool {
	return []llm.Tool{w.ReadTool(), w.GlobTool(), w.GrepTool()}
}

// resolve maps a tool-supplied path to an absolute path inside the root.
// Relative paths are taken from the root; absolute paths must lie under it.
func (w *Workspace) resolve(p string) (string, error) {
	if p == "" {
		p = "."
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.root, p)
	}
	p = filepath.Clean(p)

	// Resolve symlinks on the longest existing prefix so links can't escape.
	check := p
	for {
		if resolved, err := filepath.EvalSymlinks(check); err == nil {
			rest, _ := filepath.Rel(check, p)
			check = filepath.Join(resolved, rest)
			break
		}
		parent := filepath.Dir(check)
		if parent == check {
			break
		}
		check = parent
	}

	rel, err := filepath.Rel(w.root, check)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}
	return p, nil
}

// display returns p relative to the root, with forward slashes.
func (w *Workspace) display(p string) string {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}
