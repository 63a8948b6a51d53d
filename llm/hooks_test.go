package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookDecisionConstructors(t *testing.T) {
	assert.Equal(t, &HookDecision{Continue: true}, Allow())
	assert.Equal(t, &HookDecision{Continue: false, Reason: "nope"}, Block("nope"))

	d := ModifyInput(json.RawMessage(`{"x":1}`), "clamp")
	assert.True(t, d.Continue)
	assert.JSONEq(t, `{"x":1}`, string(d.ModifiedInput))
	assert.Equal(t, "clamp", d.Reason)

	d = ModifyPrompt("", "strip")
	assert.True(t, d.Continue)
	require.NotNil(t, d.ModifiedPrompt)
	assert.Equal(t, "", *d.ModifiedPrompt)
}

func TestHooks_FirstDecisionWins(t *testing.T) {
	var calls [3]int
	hooks := NewHooks().
		OnPreToolUse(func(ctx context.Context, ev PreToolUseEvent) *HookDecision {
			calls[0]++
			return nil
		}).
		OnPreToolUse(func(ctx context.Context, ev PreToolUseEvent) *HookDecision {
			calls[1]++
			return Block("second says no")
		}).
		OnPreToolUse(func(ctx context.Context, ev PreToolUseEvent) *HookDecision {
			calls[2]++
			return Allow()
		})

	d := hooks.RunPreToolUse(context.Background(), PreToolUseEvent{ToolName: "rm"})

	require.NotNil(t, d)
	assert.False(t, d.Continue)
	assert.Equal(t, "second says no", d.Reason)
	assert.Equal(t, [3]int{1, 1, 0}, calls)
}

func TestHooks_NoDecision(t *testing.T) {
	calls := 0
	hooks := NewHooks()
	for range 3 {
		hooks.OnUserPromptSubmit(func(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision {
			calls++
			return nil
		})
	}

	assert.Nil(t, hooks.RunUserPromptSubmit(context.Background(), UserPromptSubmitEvent{Prompt: "hi"}))
	assert.Equal(t, 3, calls)
}

func TestHooks_NilRegistry(t *testing.T) {
	var hooks *Hooks
	ctx := context.Background()

	assert.Nil(t, hooks.RunUserPromptSubmit(ctx, UserPromptSubmitEvent{}))
	assert.Nil(t, hooks.RunPreToolUse(ctx, PreToolUseEvent{}))
	assert.Nil(t, hooks.RunPostToolUse(ctx, PostToolUseEvent{}))
}

func TestHooks_ChainsAreIndependent(t *testing.T) {
	hooks := NewHooks().
		OnUserPromptSubmit(func(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision {
			return Block("prompt")
		}).
		OnPostToolUse(func(ctx context.Context, ev PostToolUseEvent) *HookDecision {
			return ModifyInput(json.RawMessage(`"post"`), "")
		})
	ctx := context.Background()

	assert.Equal(t, "prompt", hooks.RunUserPromptSubmit(ctx, UserPromptSubmitEvent{}).Reason)
	assert.Nil(t, hooks.RunPreToolUse(ctx, PreToolUseEvent{}))
	assert.JSONEq(t, `"post"`, string(hooks.RunPostToolUse(ctx, PostToolUseEvent{}).ModifiedInput))
}

// auditHook implements all three handler interfaces.
type auditHook struct {
	events []HookEvent
}

func (a *auditHook) UserPromptSubmit(ctx context.Context, ev UserPromptSubmitEvent) *HookDecision {
	a.events = append(a.events, HookUserPromptSubmit)
	return nil
}

func (a *auditHook) PreToolUse(ctx context.Context, ev PreToolUseEvent) *HookDecision {
	a.events = append(a.events, HookPreToolUse)
	return nil
}

func (a *auditHook) PostToolUse(ctx context.Context, ev PostToolUseEvent) *HookDecision {
	a.events = append(a.events, HookPostToolUse)
	return nil
}

func TestHooks_HandlerInterfaces(t *testing.T) {
	audit := &auditHook{}
	hooks := NewHooks().
		AddUserPromptSubmit(audit).
		AddPreToolUse(audit).
		AddPostToolUse(audit)

	calls := 0
	p := &fakeProvider{turns: [][]ContentBlock{
		{toolUse("call_1", "add", `{"a":1,"b":1}`)},
		{TextBlock{Text: "2"}},
	}}
	c := newTestClient(t, p, WithTools(addTool(&calls)), WithHooks(hooks), WithAutoExecute(true))

	require.NoError(t, c.Send(context.Background(), "1+1"))
	receiveAll(t, c)

	assert.Equal(t, []HookEvent{
		HookUserPromptSubmit,
		HookPreToolUse,
		HookPostToolUse,
		HookUserPromptSubmit,
	}, audit.events)
}
