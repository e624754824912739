package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildPayloadJSONSchema returns the expected reply shape as a JSON-Schema map.
// It is shown to the model in the system prompt and used locally as an
// advisory check; coercion, not the schema, decides what survives.
func BuildPayloadJSONSchema() map[string]any {
	question := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content":            map[string]any{"type": "string"},
			"solution":           map[string]any{"type": "string"},
			"answer":             map[string]any{"type": "string"},
			"hints":              map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"topic":              map[string]any{"type": "string", "enum": constants.TopicsAsStringSlice()},
			"difficulty":         map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
			"confidence":         map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"questionNum":        map[string]any{"type": "string"},
			"hasDiagram":         map[string]any{"type": "boolean"},
			"diagramDescription": map[string]any{"type": "string"},
			"marks":              map[string]any{"type": "number", "minimum": 0},
		},
		"required": []string{"content"},
	}
	lesson := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       map[string]any{"type": "string"},
			"content":     map[string]any{"type": "string"},
			"contentType": map[string]any{"type": "string", "enum": constants.ContentTypesAsStringSlice()},
			"topic":       map[string]any{"type": "string", "enum": constants.TopicsAsStringSlice()},
			"order":       map[string]any{"type": "integer"},
			"confidence":  map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"content"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{"type": "array", "items": question},
			"lessons":   map[string]any{"type": "array", "items": lesson},
		},
	}
}

var payloadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return CompileSchema(BuildPayloadJSONSchema())
})

// CompileSchema compiles a schema map.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidatePayload checks a decoded reply against the payload schema.
func ValidatePayload(doc any) error {
	schema, err := payloadSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
