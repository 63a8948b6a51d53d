package llm

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/i2y/openagent/provider"
)

// Message is an alias for provider.Message for convenience.
type Message = provider.Message

// Role is an alias for provider.Role for convenience.
type Role = provider.Role

// Role constants.
const (
	RoleSystem    = provider.RoleSystem
	RoleUser      = provider.RoleUser
	RoleAssistant = provider.RoleAssistant
	RoleTool      = provider.RoleTool
)

// Content block aliases.
type (
	ContentBlock    = provider.ContentBlock
	TextBlock       = provider.TextBlock
	ImageBlock      = provider.ImageBlock
	ToolUseBlock    = provider.ToolUseBlock
	ToolResultBlock = provider.ToolResultBlock
	ImageDetail     = provider.ImageDetail
)

// Image detail levels.
const (
	ImageDetailAuto = provider.ImageDetailAuto
	ImageDetailLow  = provider.ImageDetailLow
	ImageDetailHigh = provider.ImageDetailHigh
)

// SystemMessage creates a system message.
func SystemMessage(text string) Message {
	return Message{
		Role:    RoleSystem,
		Content: []ContentBlock{TextBlock{Text: text}},
	}
}

// UserMessage creates a user message.
func UserMessage(text string) Message {
	return Message{
		Role:    RoleUser,
		Content: []ContentBlock{TextBlock{Text: text}},
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(text string) Message {
	return Message{
		Role:    RoleAssistant,
		Content: []ContentBlock{TextBlock{Text: text}},
	}
}

// UserMessageWithImage creates a user message with text followed by an image.
// Empty text is omitted.
func UserMessageWithImage(text string, image ImageBlock) Message {
	msg := Message{Role: RoleUser}
	if text != "" {
		msg.Content = append(msg.Content, TextBlock{Text: text})
	}
	msg.Content = append(msg.Content, image)
	return msg
}

// ToolResultMessage creates the Tool-role message that answers a tool call.
func ToolResultMessage(toolUseID string, content json.RawMessage) Message {
	return Message{
		Role:    RoleTool,
		Content: []ContentBlock{ToolResultBlock{ToolUseID: toolUseID, Content: content}},
	}
}

// cloneMessages copies messages down to their content blocks and raw JSON,
// so the copy shares no memory with the original.
func cloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = m
		if m.Content == nil {
			continue
		}
		out[i].Content = make([]ContentBlock, len(m.Content))
		for j, block := range m.Content {
			switch b := block.(type) {
			case ToolUseBlock:
				b.Input = slices.Clone(b.Input)
				block = b
			case ToolResultBlock:
				b.Content = slices.Clone(b.Content)
				block = b
			}
			out[i].Content[j] = block
		}
	}
	return out
}

// NewImageURL creates an image block from an http(s) URL or a data URI with
// an image/* MIME type. Detail defaults to auto.
func NewImageURL(url string) (ImageBlock, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return ImageBlock{}, fmt.Errorf("%w: empty image URL", ErrInvalidInput)
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
	case strings.HasPrefix(url, "data:"):
		if err := validateDataURI(url); err != nil {
			return ImageBlock{}, err
		}
	default:
		return ImageBlock{}, fmt.Errorf("%w: image URL must be http(s) or a data URI, got %q", ErrInvalidInput, truncate(url, 40))
	}
	return ImageBlock{URL: url, Detail: ImageDetailAuto}, nil
}

// NewImageBase64 creates an image block from base64 data and a MIME type
// such as image/png.
func NewImageBase64(data, mimeType string) (ImageBlock, error) {
	if data == "" {
		return ImageBlock{}, fmt.Errorf("%w: empty image data", ErrInvalidInput)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return ImageBlock{}, fmt.Errorf("%w: MIME type must start with image/, got %q", ErrInvalidInput, mimeType)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return ImageBlock{}, fmt.Errorf("%w: image data is not valid base64: %v", ErrInvalidInput, err)
	}
	return NewImageURL("data:" + mimeType + ";base64," + data)
}

func validateDataURI(uri string) error {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok || payload == "" {
		return fmt.Errorf("%w: malformed data URI", ErrInvalidInput)
	}
	mime, _, _ := strings.Cut(meta, ";")
	if !strings.HasPrefix(mime, "image/") {
		return fmt.Errorf("%w: data URI MIME type must start with image/, got %q", ErrInvalidInput, mime)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TextOf joins the text blocks of blocks with newlines.
func TextOf(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if t, ok := b.(TextBlock); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}
