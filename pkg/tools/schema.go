package tools

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// ToolOutputSchema is a minimal JSON-schema-shaped description of a tool's
// declared output.
type ToolOutputSchema struct {
	Type       any            `json:"type,omitempty"`
	Ref        string         `json:"$ref,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Items      map[string]any `json:"items,omitempty"`
}

// ToOutputSchemaSchema builds a JSON-schema description of valueType.
func ToOutputSchemaSchema(valueType reflect.Type) (ToolOutputSchema, error) {
	seen := map[reflect.Type]bool{}

	schemaMap, err := toOutputSchemaSchema(valueType, seen)
	if err != nil {
		return ToolOutputSchema{}, err
	}

	schema := ToolOutputSchema{}
	if v := schemaMap["type"]; v != nil {
		schema.Type = v
	}
	if v, ok := schemaMap["$ref"].(string); ok {
		schema.Ref = v
	}
	if v, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = v
	}
	if v, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = v
	}

	return schema, nil
}

// ToOutputSchemaSchemaMust is like ToOutputSchemaSchema but panics on error.
// Meant for built-in types (string, []string, ...) known not to fail.
func ToOutputSchemaSchemaMust(valueType reflect.Type) ToolOutputSchema {
	schema, err := ToOutputSchemaSchema(valueType)
	if err != nil {
		panic(err)
	}
	return schema
}

func toOutputSchemaSchema(valueType reflect.Type, seen map[reflect.Type]bool) (map[string]any, error) {
	// TODO(dga): support more complicated references.
	if seen[valueType] {
		return map[string]any{"$ref": "#"}, nil
	}

	switch valueType.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float64, reflect.Float32:
		return map[string]any{"type": "number"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Slice, reflect.Array:
		items, err := toOutputSchemaSchema(valueType.Elem(), seen)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Pointer:
		inner, err := toOutputSchemaSchema(valueType.Elem(), seen)
		if err != nil {
			return nil, err
		}
		innerType, _ := inner["type"].(string)
		inner["type"] = []any{"null", innerType}
		return inner, nil
	case reflect.Struct:
		seen[valueType] = true

		properties := map[string]any{}
		for i := range valueType.NumField() {
			field := valueType.Field(i)
			if !field.IsExported() {
				continue
			}

			name := field.Name
			if jsonTag, ok := field.Tag.Lookup("json"); ok {
				if tagName, _, _ := strings.Cut(jsonTag, ","); tagName != "" {
					name = tagName
				}
			}

			fieldSchema, err := toOutputSchemaSchema(field.Type, seen)
			if err != nil {
				return nil, err
			}
			if fieldDesc, ok := field.Tag.Lookup("description"); ok {
				fieldSchema["description"] = fieldDesc
			} else if fieldDesc, ok := field.Tag.Lookup("jsonschema"); ok {
				fieldSchema["description"] = fieldDesc
			}

			properties[name] = fieldSchema
		}

		return map[string]any{
			"type":       "object",
			"properties": properties,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output schema type %s", valueType)
	}
}

// SchemaFor generates an input/output JSON schema for T from its Go struct
// tags, using the same "jsonschema" tag convention the MCP SDK's tool
// registration uses for free-text field descriptions.
func SchemaFor[T any]() (map[string]any, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("generating schema: %w", err)
	}
	return SchemaToMap(schema)
}

// MustSchemaFor is SchemaFor for call sites with a type known to be
// schema-representable (every tool parameter/result struct in this
// codebase).
func MustSchemaFor[T any]() map[string]any {
	schema, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return schema
}

// SchemaToMap round-trips any JSON-marshalable schema value (a
// *jsonschema.Schema or a hand-built map) into a plain map[string]any, which
// is what Tool.Parameters/Tool.OutputSchema expect so callers can mutate
// them (e.g. to inject the description parameter). A nil or empty schema,
// or an object schema without properties, comes back as an object schema
// with an empty properties map.
func SchemaToMap(v any) (map[string]any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling schema: %w", err)
	}

	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}

	if m == nil {
		m = map[string]any{}
	}
	if _, ok := m["type"]; !ok {
		m["type"] = "object"
	}
	if _, ok := m["properties"]; !ok && m["type"] == "object" {
		m["properties"] = map[string]any{}
	}
	return m, nil
}
