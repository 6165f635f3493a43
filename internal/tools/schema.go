package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// InputSchemaFor reflects an argument struct into the JSON Schema object the
// model APIs expect. Fields without omitempty are required; use jsonschema tags
// for descriptions and bounds.
func InputSchemaFor(args any) (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(args)

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// MustInputSchemaFor is InputSchemaFor for static argument types.
func MustInputSchemaFor(args any) map[string]any {
	s, err := InputSchemaFor(args)
	if err != nil {
		panic(err)
	}
	return s
}
