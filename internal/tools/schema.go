package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaOf derives a JSON schema from an argument struct. Used by native
// tools so schemas stay in sync with their Go argument types.
func SchemaOf(v any) json.RawMessage {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		// Tool argument schemas permit only declared fields.
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflection over a plain struct cannot produce unmarshalable output.
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	return data
}

// ValidateArgs checks structured arguments against a tool's JSON schema.
func ValidateArgs(schema json.RawMessage, args map[string]any) error {
	compiled, err := santhosh.CompileString("tool-schema.json", string(schema))
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	// Round-trip so numeric types match what a JSON decoder would produce.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal args: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("arguments do not satisfy schema: %w", err)
	}
	return nil
}

// DecodeArgs unmarshals raw arguments into a tool's argument struct.
func DecodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
