// Package mcp exposes the tools of a Model Context Protocol server as
// llm.Tool values, so a Client can call them from its auto-execution loop.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/i2y/openagent/llm"
	"github.com/i2y/openagent/schema"
)

// DefaultTimeout bounds a single tool call.
const DefaultTimeout = 30 * time.Second

// Client is a connected MCP client session.
type Client struct {
	session *mcp.ClientSession
	timeout time.Duration
}

// Option configures the MCP client.
type Option func(*clientConfig)

type clientConfig struct {
	name    string
	version string
	timeout time.Duration
}

// WithTimeout sets the timeout for each tool call.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithImplementation sets the client name and version sent during the
// MCP handshake.
func WithImplementation(name, version string) Option {
	return func(c *clientConfig) {
		c.name = name
		c.version = version
	}
}

// Connect opens a session over transport.
func Connect(ctx context.Context, transport mcp.Transport, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		name:    "openagent",
		version: "0.1.0",
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    cfg.name,
		Version: cfg.version,
	}, nil)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to MCP server: %w", err)
	}

	return &Client{
		session: session,
		timeout: cfg.timeout,
	}, nil
}

// NewStdioClient starts command as a subprocess and talks MCP over its
// stdin and stdout.
//
// Example:
//
//	client, err := mcp.NewStdioClient(ctx, "npx", []string{"-y", "@modelcontextprotocol/server-filesystem", "/tmp"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	tools, err := client.Tools(ctx)
func NewStdioClient(ctx context.Context, command string, args []string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("mcp: command is empty")
	}
	return Connect(ctx, &mcp.CommandTransport{Command: exec.Command(command, args...)}, opts...)
}

// NewHTTPClient connects to a streamable HTTP MCP endpoint.
func NewHTTPClient(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("mcp: endpoint must be an http(s) URL, got %q", endpoint)
	}
	return Connect(ctx, &mcp.StreamableClientTransport{Endpoint: endpoint}, opts...)
}

// Tools lists the server's tools as llm tools.
//
// Example:
//
//	tools, err := client.Tools(ctx)
//	if err != nil {
//	    return err
//	}
//
//	agent, err := llm.NewClient(
//	    llm.WithModel("qwen2.5-32b-instruct"),
//	    llm.WithServer("lmstudio"),
//	    llm.WithTools(tools...),
//	    llm.WithAutoExecute(true),
//	)
func (c *Client) Tools(ctx context.Context) ([]llm.Tool, error) {
	var tools []llm.Tool
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing MCP tools: %w", err)
		}
		tools = append(tools, &remoteTool{
			client: c,
			tool:   tool,
			params: inputSchema(tool.InputSchema),
		})
	}
	return tools, nil
}

// Close ends the session.
func (c *Client) Close() error {
	return c.session.Close()
}

// remoteTool adapts an MCP tool to llm.Tool.
type remoteTool struct {
	client *Client
	tool   *mcp.Tool
	params *jsonschema.Schema
}

func (t *remoteTool) Name() string                   { return t.tool.Name }
func (t *remoteTool) Description() string            { return t.tool.Description }
func (t *remoteTool) Parameters() *jsonschema.Schema { return t.params }

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, t.client.timeout)
	defer cancel()

	arguments := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return nil, fmt.Errorf("parsing arguments: %w", err)
		}
	}

	result, err := t.client.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.tool.Name,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("calling MCP tool %q: %w", t.tool.Name, err)
	}

	text := resultText(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("MCP tool error: %s", text)
	}
	return text, nil
}

// inputSchema decodes an MCP input schema, falling back to an empty
// object schema when it is missing or unreadable.
func inputSchema(v any) *jsonschema.Schema {
	if v == nil {
		return schema.Object()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return schema.Object()
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil || s.Type == "" {
		return schema.Object()
	}
	return &s
}

// resultText flattens tool result content into text, one line per item.
// Non-text items are summarized.
func resultText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		switch item := c.(type) {
		case *mcp.TextContent:
			parts = append(parts, item.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Image: %s, %d bytes]", item.MIMEType, len(item.Data)))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[Audio: %s, %d bytes]", item.MIMEType, len(item.Data)))
		case *mcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[Resource: %s]", item.URI))
		case *mcp.EmbeddedResource:
			if item.Resource != nil {
				parts = append(parts, fmt.Sprintf("[Resource: %s]", item.Resource.URI))
			} else {
				parts = append(parts, "[Resource: embedded]")
			}
		}
	}
	return strings.Join(parts, "\n")
}

// ToolsFromCommand starts an MCP server subprocess and returns its tools
// together with a function that stops it.
//
// Example:
//
//	tools, cleanup, err := mcp.ToolsFromCommand(ctx, "./my-mcp-server", nil)
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
func ToolsFromCommand(ctx context.Context, command string, args []string, opts ...Option) ([]llm.Tool, func() error, error) {
	client, err := NewStdioClient(ctx, command, args, opts...)
	if err != nil {
		return nil, nil, err
	}

	tools, err := client.Tools(ctx)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return tools, client.Close, nil
}
