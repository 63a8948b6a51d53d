package provider

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/i2y/openagent/retry"
)

// Request represents a provider-agnostic chat request.
type Request struct {
	Model       string
	System      string // Sent as a leading system message when non-empty
	Messages    []Message
	Tools       []ToolDef
	Temperature *float64
	MaxTokens   *int
}

// Message represents a single message in the conversation.
// A message is never mutated once it is part of a history.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// Role represents the message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates the ContentBlock variants.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is a closed union of TextBlock, ImageBlock, ToolUseBlock and
// ToolResultBlock. Use a type switch to inspect it.
type ContentBlock interface {
	Type() BlockType
	contentBlock()
}

// TextBlock is plain text content.
type TextBlock struct {
	Text string
}

func (TextBlock) Type() BlockType { return BlockText }
func (TextBlock) contentBlock()   {}

// ImageDetail is the resolution hint sent alongside an image.
type ImageDetail string

const (
	ImageDetailAuto ImageDetail = "auto"
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
)

// ImageBlock references an image by http(s) URL or data URI.
type ImageBlock struct {
	URL    string
	Detail ImageDetail
}

func (ImageBlock) Type() BlockType { return BlockImage }
func (ImageBlock) contentBlock()   {}

// WithDetail returns a copy of the block with the given detail hint.
func (b ImageBlock) WithDetail(detail ImageDetail) ImageBlock {
	b.Detail = detail
	return b
}

// ToolUseBlock is a tool invocation requested by the model.
// ID correlates the call with its ToolResultBlock.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolUseBlock) Type() BlockType { return BlockToolUse }
func (ToolUseBlock) contentBlock()   {}

// ToolResultBlock carries the JSON result of a tool call.
type ToolResultBlock struct {
	ToolUseID string
	Content   json.RawMessage
}

func (ToolResultBlock) Type() BlockType { return BlockToolResult }
func (ToolResultBlock) contentBlock()   {}

// ToolDef defines a tool the model can use.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON Schema
}

// Config carries the connection settings handed to a provider factory.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // Applies to the whole request, including the streamed body
	HTTPClient *http.Client
	Retry      retry.Config
	Limiter    *rate.Limiter // Optional client-side request limiter
	Logger     *slog.Logger
}
