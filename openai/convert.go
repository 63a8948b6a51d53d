package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/i2y/openagent/provider"
)

// errEmptyParts signals a multi-part message that produced no parts.
var errEmptyParts = errors.New("internal error: multi-part message has no content parts")

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// buildRequest converts a provider.Request into the wire request.
func buildRequest(req *provider.Request) (*chatCompletionRequest, error) {
	messages, err := convertMessages(req.System, req.Messages)
	if err != nil {
		return nil, err
	}

	apiReq := &chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	for _, tool := range req.Tools {
		params := tool.Parameters
		if len(params) == 0 {
			params = emptyObjectSchema
		}
		apiReq.Tools = append(apiReq.Tools, toolDef{
			Type: "function",
			Function: functionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	return apiReq, nil
}

// convertMessages translates the system prompt and history into wire messages.
func convertMessages(system string, history []provider.Message) ([]message, error) {
	out := make([]message, 0, len(history)+1)
	if system != "" {
		out = append(out, message{Role: string(provider.RoleSystem), Content: system})
	}

	for i, msg := range history {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("converting message %d: %w", i, err)
		}
		out = append(out, converted...)
	}
	return out, nil
}

// convertMessage maps one history message onto one or more wire messages.
// The block mix decides the shape, in priority order: tool results, tool
// calls, images, plain text.
func convertMessage(msg provider.Message) ([]message, error) {
	var (
		texts    []string
		toolUses []provider.ToolUseBlock
		results  []provider.ToolResultBlock
		hasImage bool
	)
	for _, block := range msg.Content {
		switch b := block.(type) {
		case provider.TextBlock:
			texts = append(texts, b.Text)
		case provider.ToolUseBlock:
			toolUses = append(toolUses, b)
		case provider.ToolResultBlock:
			results = append(results, b)
		case provider.ImageBlock:
			hasImage = true
		}
	}

	switch {
	case len(results) > 0:
		out := make([]message, 0, len(results))
		for _, r := range results {
			out = append(out, message{
				Role:       string(provider.RoleTool),
				Content:    toolResultText(r.Content),
				ToolCallID: r.ToolUseID,
			})
		}
		return out, nil

	case len(toolUses) > 0:
		calls := make([]toolCall, 0, len(toolUses))
		for _, tu := range toolUses {
			args := string(tu.Input)
			if args == "" {
				args = "{}"
			}
			calls = append(calls, toolCall{
				ID:   tu.ID,
				Type: "function",
				Function: functionCall{
					Name:      tu.Name,
					Arguments: args,
				},
			})
		}
		return []message{{
			Role:      string(provider.RoleAssistant),
			Content:   strings.Join(texts, "\n"),
			ToolCalls: calls,
		}}, nil

	case hasImage:
		parts := make([]contentPart, 0, len(msg.Content))
		for _, block := range msg.Content {
			switch b := block.(type) {
			case provider.TextBlock:
				parts = append(parts, contentPart{Type: "text", Text: b.Text})
			case provider.ImageBlock:
				detail := b.Detail
				if detail == "" {
					detail = provider.ImageDetailAuto
				}
				parts = append(parts, contentPart{
					Type:     "image_url",
					ImageURL: &imageURL{URL: b.URL, Detail: string(detail)},
				})
			}
		}
		if len(parts) == 0 {
			return nil, errEmptyParts
		}
		return []message{{Role: string(msg.Role), Content: parts}}, nil

	default:
		return []message{{Role: string(msg.Role), Content: strings.Join(texts, "\n")}}, nil
	}
}

// toolResultText renders a tool result for the wire. JSON strings are sent
// unquoted; anything else is sent as JSON text.
func toolResultText(content json.RawMessage) string {
	if len(content) == 0 {
		return "null"
	}
	var s string
	if err := json.Unmarshal(content, &s); err == nil {
		return s
	}
	return string(content)
}
