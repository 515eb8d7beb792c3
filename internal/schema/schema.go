// Package schema builds JSON Schemas for tool inputs and wire frames, and
// converts tool schemas reported by MCP servers into the Anthropic API shape.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
)

// Generate produces an anthropic.ToolInputSchemaParam from a Go struct type T.
// It uses struct tags (json, jsonschema) to derive the JSON Schema.
func Generate[T any]() anthropic.ToolInputSchemaParam {
	var zero T
	root := extractRoot(jsonschema.Reflect(&zero))

	return anthropic.ToolInputSchemaParam{
		Properties: schemaProperties(root),
		Required:   root.Required,
	}
}

// Object returns the input schema for T as a standalone JSON object schema
// with "type", "properties" and "required", suitable for an MCP tool listing.
func Object[T any]() json.RawMessage {
	param := Generate[T]()
	props, _ := param.Properties.(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	obj := map[string]any{"type": "object", "properties": props}
	if len(param.Required) > 0 {
		obj["required"] = param.Required
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return raw
}

// FromRaw converts a tool input schema as reported by an MCP server into the
// Anthropic tool input shape. An empty schema yields an object with no
// properties.
func FromRaw(raw json.RawMessage) (anthropic.ToolInputSchemaParam, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return anthropic.ToolInputSchemaParam{Properties: map[string]any{}}, nil
	}
	var s struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return anthropic.ToolInputSchemaParam{}, fmt.Errorf("decode input schema: %w", err)
	}
	if s.Type != "" && s.Type != "object" {
		return anthropic.ToolInputSchemaParam{}, fmt.Errorf("input schema type %q is not object", s.Type)
	}
	if s.Properties == nil {
		s.Properties = map[string]any{}
	}
	return anthropic.ToolInputSchemaParam{Properties: s.Properties, Required: s.Required}, nil
}

// Reflect returns the JSON Schema document for the type of v with nested
// types expanded in place.
func Reflect(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	return r.Reflect(v)
}

// extractRoot resolves the root schema, following $ref to $defs if needed.
func extractRoot(s *jsonschema.Schema) *jsonschema.Schema {
	if s.Ref != "" && s.Definitions != nil {
		// invopop/jsonschema puts the actual type under $defs with a ref like
		// "#/$defs/TypeName".
		for _, def := range s.Definitions {
			if def.Type == "object" {
				return def
			}
		}
	}
	return s
}

// schemaProperties converts an ordered map of properties into a plain
// map[string]any suitable for the Anthropic API.
func schemaProperties(s *jsonschema.Schema) map[string]any {
	if s.Properties == nil {
		return nil
	}
	props := make(map[string]any)
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		props[pair.Key] = propertySchema(pair.Value)
	}
	return props
}

// propertySchema converts a single property schema to a serializable map.
func propertySchema(s *jsonschema.Schema) map[string]any {
	m := make(map[string]any)

	if s.Type != "" {
		m["type"] = s.Type
	}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Default != nil {
		m["default"] = s.Default
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}

	// Pointer types come back as anyOf with a null branch.
	for _, sub := range s.AnyOf {
		if sub.Type != "null" && sub.Type != "" {
			m["type"] = sub.Type
			break
		}
	}

	if s.Properties != nil {
		m["type"] = "object"
		m["properties"] = schemaProperties(s)
		if len(s.Required) > 0 {
			m["required"] = s.Required
		}
	}

	if s.Items != nil {
		m["items"] = propertySchema(s.Items)
	}

	return m
}
