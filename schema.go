package copilot

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a JSON schema for T, for use as a Tool's ParametersSchema.
// Struct fields map to properties through their json tags; jsonschema tags
// add descriptions and constraints:
//
//	type ListFilesArgs struct {
//		Path  string `json:"path" jsonschema:"description=Directory to list"`
//		Limit int    `json:"limit,omitempty"`
//	}
//	tool := copilot.Tool{
//		Name:             "list_files",
//		ParametersSchema: copilot.MustSchemaFor[ListFilesArgs](),
//		...
//	}
func SchemaFor[T any]() (json.RawMessage, error) {
	r := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero T
	schema := r.Reflect(&zero)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("copilot: marshal schema: %w", err)
	}
	return data, nil
}

// MustSchemaFor is SchemaFor for types known valid at compile time; it panics
// on failure.
func MustSchemaFor[T any]() json.RawMessage {
	schema, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return schema
}
