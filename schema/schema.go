// Package schema builds the JSON Schemas sent as tool parameters.
package schema

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
)

// Reflector is configured for tool schemas.
// DoNotReference inlines all definitions to avoid $ref.
var Reflector = &jsonschema.Reflector{
	DoNotReference: true,
}

// For reflects the schema of T. The $schema and $id keywords are dropped;
// chat servers expect a bare object schema.
//
// Example:
//
//	type WeatherInput struct {
//	    City  string `json:"city" jsonschema:"required,description=City name"`
//	    Units string `json:"units,omitempty" jsonschema:"enum=metric,enum=imperial"`
//	}
//
//	params := schema.For[WeatherInput]()
func For[T any]() *jsonschema.Schema {
	var zero T
	s := Reflector.Reflect(&zero)
	s.Version = ""
	s.ID = ""
	return s
}

// Generate returns the JSON encoding of For[T].
func Generate[T any]() (json.RawMessage, error) {
	return json.Marshal(For[T]())
}

// MustGenerate is like Generate but panics on error.
func MustGenerate[T any]() json.RawMessage {
	raw, err := Generate[T]()
	if err != nil {
		panic(err)
	}
	return raw
}

// Property describes one parameter for Object.
type Property struct {
	Name        string
	Type        string // JSON Schema type or a shorthand such as "int" or "bool"
	Description string
	Required    bool
	Enum        []any
}

// Object builds an object schema from properties, in order.
func Object(props ...Property) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: jsonschema.NewProperties(),
		Required:   []string{},
	}
	for _, p := range props {
		s.Properties.Set(p.Name, &jsonschema.Schema{
			Type:        TypeName(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		})
		if p.Required {
			s.Required = append(s.Required, p.Name)
		}
	}
	return s
}

// TypeName maps a type shorthand to its JSON Schema type. Unknown names
// map to "string".
func TypeName(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "str":
		return "string"
	case "number", "float", "float32", "float64", "f32", "f64":
		return "number"
	case "integer", "int", "int32", "int64", "i32", "i64":
		return "integer"
	case "boolean", "bool":
		return "boolean"
	case "array", "list", "slice", "vec":
		return "array"
	case "object", "dict", "map":
		return "object"
	default:
		return "string"
	}
}

// Convert turns a parameter description into a full object schema.
//
// A document that already has "type" and "properties" is used unchanged.
// Otherwise every key is a parameter whose value is either a type shorthand
// ({"city": "string"}, always required) or a property schema that may carry
// the non-standard flags "required" and "optional". A property with neither
// flag is required unless it has a default.
func Convert(raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return Object(), nil
	}

	if _, hasType := doc["type"]; hasType {
		if _, hasProps := doc["properties"]; hasProps {
			var s jsonschema.Schema
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("parsing schema: %w", err)
			}
			return &s, nil
		}
	}

	out := Object()
	for _, name := range slices.Sorted(maps.Keys(doc)) {
		var shorthand string
		if err := json.Unmarshal(doc[name], &shorthand); err == nil {
			out.Properties.Set(name, &jsonschema.Schema{Type: TypeName(shorthand)})
			out.Required = append(out.Required, name)
			continue
		}

		var prop map[string]any
		if err := json.Unmarshal(doc[name], &prop); err != nil || prop == nil {
			continue
		}

		optional, _ := prop["optional"].(bool)
		required, hasRequired := prop["required"].(bool)
		_, hasDefault := prop["default"]
		delete(prop, "optional")
		delete(prop, "required")

		cleaned, err := json.Marshal(prop)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		var ps jsonschema.Schema
		if err := json.Unmarshal(cleaned, &ps); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out.Properties.Set(name, &ps)

		switch {
		case hasRequired && required:
			out.Required = append(out.Required, name)
		case optional || hasRequired:
		case !hasDefault:
			out.Required = append(out.Required, name)
		}
	}
	return out, nil
}
