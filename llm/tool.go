package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/i2y/openagent/schema"
)

// Tool represents an executable tool that the LLM can call.
// This interface allows for heterogeneous collections of tools.
type Tool interface {
	// Name returns the tool's name as seen by the LLM.
	Name() string

	// Description returns the tool's description for the LLM.
	Description() string

	// Parameters returns the JSON schema for the tool's parameters.
	Parameters() *jsonschema.Schema

	// Execute runs the tool with the given JSON arguments.
	Execute(ctx context.Context, args json.RawMessage) (any, error)
}

// TypedTool provides type-safe tool creation with auto-generated schema.
// In is the input type, Out is the output type.
type TypedTool[In any, Out any] struct {
	name        string
	description string
	fn          func(ctx context.Context, in In) (Out, error)
	schema      *jsonschema.Schema
}

// NewTool creates a type-safe tool from a function.
// The input type In is used to generate the JSON schema automatically.
//
// Example:
//
//	type WeatherInput struct {
//	    City string `json:"city" jsonschema:"required,description=City name"`
//	}
//
//	type WeatherOutput struct {
//	    Temperature float64 `json:"temperature"`
//	    Conditions  string  `json:"conditions"`
//	}
//
//	weatherTool, err := llm.NewTool("get_weather", "Get weather for a city",
//	    func(ctx context.Context, in WeatherInput) (WeatherOutput, error) {
//	        return WeatherOutput{Temperature: 72.5, Conditions: "Sunny"}, nil
//	    },
//	)
func NewTool[In any, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
) (*TypedTool[In, Out], error) {
	if name == "" {
		return nil, &ConfigError{Field: "tool name", Reason: "required"}
	}
	if fn == nil {
		return nil, &ConfigError{Field: "tool " + name, Reason: "function is nil"}
	}

	return &TypedTool[In, Out]{
		name:        name,
		description: description,
		fn:          fn,
		schema:      schema.For[In](),
	}, nil
}

// MustNewTool is like NewTool but panics on error.
// Useful for package-level tool definitions.
func MustNewTool[In any, Out any](
	name, description string,
	fn func(ctx context.Context, in In) (Out, error),
) *TypedTool[In, Out] {
	t, err := NewTool(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the tool's name.
func (t *TypedTool[In, Out]) Name() string {
	return t.name
}

// Description returns the tool's description.
func (t *TypedTool[In, Out]) Description() string {
	return t.description
}

// Parameters returns the JSON schema for the tool's parameters.
func (t *TypedTool[In, Out]) Parameters() *jsonschema.Schema {
	return t.schema
}

// Execute runs the tool with the given JSON arguments.
// Implements the Tool interface.
func (t *TypedTool[In, Out]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var input In
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool arguments: %w", err)
	}
	return t.fn(ctx, input)
}

// TypedCall provides a type-safe way to call the tool directly.
// This bypasses JSON marshaling when you have the typed input.
func (t *TypedTool[In, Out]) TypedCall(ctx context.Context, input In) (Out, error) {
	return t.fn(ctx, input)
}

// FuncTool is a tool backed by a function over raw JSON arguments, for
// callers that already have a schema (for example one written by hand or
// obtained from another system).
type FuncTool struct {
	name        string
	description string
	schema      *jsonschema.Schema
	fn          func(ctx context.Context, args json.RawMessage) (any, error)
}

// NewFuncTool creates a tool from a raw-argument function. A nil schema is
// sent as an empty object schema.
func NewFuncTool(
	name, description string,
	params *jsonschema.Schema,
	fn func(ctx context.Context, args json.RawMessage) (any, error),
) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		schema:      params,
		fn:          fn,
	}
}

func (t *FuncTool) Name() string                   { return t.name }
func (t *FuncTool) Description() string            { return t.description }
func (t *FuncTool) Parameters() *jsonschema.Schema { return t.schema }

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	return t.fn(ctx, args)
}

// ToolRegistry manages a collection of tools, keeping registration order.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{
		tools: make(map[string]Tool),
	}
	r.Register(tools...)
	return r
}

// Register adds tools to the registry. A tool with an existing name
// replaces the earlier one in place.
func (r *ToolRegistry) Register(tools ...Tool) {
	for _, t := range tools {
		if _, ok := r.tools[t.Name()]; !ok {
			r.order = append(r.order, t.Name())
		}
		r.tools[t.Name()] = t
	}
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns all registered tools in registration order.
func (r *ToolRegistry) All() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	return len(r.order)
}

// Execute runs the named tool and returns its JSON-encoded result.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, &ToolNotFoundError{Name: name}
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		return nil, &ToolError{ToolName: name, Cause: err}
	}

	encoded, err := EncodeResult(result)
	if err != nil {
		return nil, &ToolError{ToolName: name, Cause: err}
	}
	return encoded, nil
}

// EncodeResult converts a tool result into JSON. Strings become JSON
// strings; json.RawMessage and []byte holding valid JSON are used as is.
// Nil and a nil json.RawMessage become null.
func EncodeResult(v any) (json.RawMessage, error) {
	switch r := v.(type) {
	case nil:
		return json.RawMessage(`null`), nil
	case json.RawMessage:
		if r == nil {
			return json.RawMessage(`null`), nil
		}
		if !json.Valid(r) {
			return nil, fmt.Errorf("result is not valid JSON")
		}
		return r, nil
	case []byte:
		if json.Valid(r) {
			return json.RawMessage(r), nil
		}
		return json.Marshal(string(r))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshaling result: %w", err)
		}
		return raw, nil
	}
}
