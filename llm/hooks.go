package llm

import (
	"context"
	"encoding/json"
)

// HookEvent names a lifecycle point where hooks run.
type HookEvent string

const (
	HookUserPromptSubmit HookEvent = "UserPromptSubmit"
	HookPreToolUse       HookEvent = "PreToolUse"
	HookPostToolUse      HookEvent = "PostToolUse"
)

// HookDecision is what a hook returns to influence the pending operation.
// A nil *HookDecision means the hook has no opinion.
type HookDecision struct {
	// Continue is false when the operation must be blocked.
	Continue bool

	// ModifiedInput replaces the tool input (PreToolUse) or the tool result
	// (PostToolUse).
	ModifiedInput json.RawMessage

	// ModifiedPrompt replaces the prompt (UserPromptSubmit).
	ModifiedPrompt *string

	Reason string
}

// Allow returns a decision that lets the operation proceed unchanged.
func Allow() *HookDecision {
	return &HookDecision{Continue: true}
}

// Block returns a decision that vetoes the operation.
func Block(reason string) *HookDecision {
	return &HookDecision{Continue: false, Reason: reason}
}

// ModifyInput returns a decision that proceeds with a replacement tool input
// or, from a PostToolUse hook, a replacement result.
func ModifyInput(input json.RawMessage, reason string) *HookDecision {
	return &HookDecision{Continue: true, ModifiedInput: input, Reason: reason}
}

// ModifyPrompt returns a decision that proceeds with a replacement prompt.
func ModifyPrompt(prompt, reason string) *HookDecision {
	return &HookDecision{Continue: true, ModifiedPrompt: &prompt, Reason: reason}
}

// UserPromptSubmitEvent is passed to hooks before a prompt is sent.
type UserPromptSubmitEvent struct {
	Prompt  string
	History []Message // Snapshot; changes are not seen by the client
}

// PreToolUseEvent is passed to hooks before a tool runs.
type PreToolUseEvent struct {
	ToolName  string
	ToolInput json.RawMessage
	ToolUseID string
	History   []Message
}

// PostToolUseEvent is passed to hooks after a tool has run.
type PostToolUseEvent struct {
	ToolName   string
	ToolInput  json.RawMessage // Input actually used
	ToolUseID  string
	ToolResult json.RawMessage
	History    []Message
}

// UserPromptSubmitHandler inspects a prompt before it is sent.
type UserPromptSubmitHandler interface {
	UserPromptSubmit(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision
}

// UserPromptSubmitFunc adapts a function to UserPromptSubmitHandler.
type UserPromptSubmitFunc func(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision

func (f UserPromptSubmitFunc) UserPromptSubmit(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision {
	return f(ctx, ev)
}

// PreToolUseHandler inspects a tool call before it runs.
type PreToolUseHandler interface {
	PreToolUse(ctx context.Context, ev PreToolUseEvent) *HookDecision
}

// PreToolUseFunc adapts a function to PreToolUseHandler.
type PreToolUseFunc func(ctx context.Context, ev PreToolUseEvent) *HookDecision

func (f PreToolUseFunc) PreToolUse(ctx context.Context, ev PreToolUseEvent) *HookDecision {
	return f(ctx, ev)
}

// PostToolUseHandler inspects a tool result.
type PostToolUseHandler interface {
	PostToolUse(ctx context.Context, ev PostToolUseEvent) *HookDecision
}

// PostToolUseFunc adapts a function to PostToolUseHandler.
type PostToolUseFunc func(ctx context.Context, ev PostToolUseEvent) *HookDecision

func (f PostToolUseFunc) PostToolUse(ctx context.Context, ev PostToolUseEvent) *HookDecision {
	return f(ctx, ev)
}

// Hooks holds three ordered handler chains. Handlers in a chain run one at a
// time in registration order; the first non-nil decision ends the chain.
// Register everything before the Hooks are handed to a client.
//
// Example:
//
//	hooks := llm.NewHooks().
//	    OnPreToolUse(func(ctx context.Context, ev llm.PreToolUseEvent) *llm.HookDecision {
//	        if ev.ToolName == "delete_file" {
//	            return llm.Block("deletes are not allowed")
//	        }
//	        return nil
//	    })
type Hooks struct {
	userPromptSubmit []UserPromptSubmitHandler
	preToolUse       []PreToolUseHandler
	postToolUse      []PostToolUseHandler
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// AddUserPromptSubmit appends handlers to the UserPromptSubmit chain.
func (h *Hooks) AddUserPromptSubmit(handlers ...UserPromptSubmitHandler) *Hooks {
	h.userPromptSubmit = append(h.userPromptSubmit, handlers...)
	return h
}

// AddPreToolUse appends handlers to the PreToolUse chain.
func (h *Hooks) AddPreToolUse(handlers ...PreToolUseHandler) *Hooks {
	h.preToolUse = append(h.preToolUse, handlers...)
	return h
}

// AddPostToolUse appends handlers to the PostToolUse chain.
func (h *Hooks) AddPostToolUse(handlers ...PostToolUseHandler) *Hooks {
	h.postToolUse = append(h.postToolUse, handlers...)
	return h
}

// OnUserPromptSubmit appends a function to the UserPromptSubmit chain.
func (h *Hooks) OnUserPromptSubmit(fn func(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision) *Hooks {
	return h.AddUserPromptSubmit(UserPromptSubmitFunc(fn))
}

// OnPreToolUse appends a function to the PreToolUse chain.
func (h *Hooks) OnPreToolUse(fn func(ctx context.Context, ev PreToolUseEvent) *HookDecision) *Hooks {
	return h.AddPreToolUse(PreToolUseFunc(fn))
}

// OnPostToolUse appends a function to the PostToolUse chain.
func (h *Hooks) OnPostToolUse(fn func(ctx context.Context, ev PostToolUseEvent) *HookDecision) *Hooks {
	return h.AddPostToolUse(PostToolUseFunc(fn))
}

// RunUserPromptSubmit runs the UserPromptSubmit chain. A nil registry has no
// handlers.
func (h *Hooks) RunUserPromptSubmit(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision {
	if h == nil {
		return nil
	}
	for _, handler := range h.userPromptSubmit {
		if d := handler.UserPromptSubmit(ctx, ev); d != nil {
			return d
		}
	}
	return nil
}

// RunPreToolUse runs the PreToolUse chain.
func (h *Hooks) RunPreToolUse(ctx context.Context, ev PreToolUseEvent) *HookDecision {
	if h == nil {
		return nil
	}
	for _, handler := range h.preToolUse {
		if d := handler.PreToolUse(ctx, ev); d != nil {
			return d
		}
	}
	return nil
}

// RunPostToolUse runs the PostToolUse chain.
func (h *Hooks) RunPostToolUse(ctx context.Context, ev PostToolUseEvent) *HookDecision {
	if h == nil {
		return nil
	}
	for _, handler := range h.postToolUse {
		if d := handler.PostToolUse(ctx, ev); d != nil {
			return d
		}
	}
	return nil
}
