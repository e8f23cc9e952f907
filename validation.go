package gemini

import (
	"bytes"
	"encoding/json"
	"reflect"

	jsv "github.com/santhosh-tekuri/jsonschema/v6"
)

// Validatable is implemented by argument structs that need custom business validation.
// Called after schema validation and unmarshaling.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a decoded JSON instance. *jsonschema.Schema from
// santhosh-tekuri/jsonschema implements it.
type schemaValidator interface {
	Validate(v any) error
}

// normalizeArgs treats absent and null arguments as an empty object.
func normalizeArgs(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}

// decodeArgs checks args against the schema, then decodes them into T.
func decodeArgs[T any](validator schemaValidator, args json.RawMessage) (T, error) {
	var zero T
	args = normalizeArgs(args)
	if err := validateArgs(validator, args); err != nil {
		return zero, err
	}
	var out T
	if err := json.Unmarshal(args, &out); err != nil {
		return zero, inputError(err)
	}
	if err := runCustomValidation(out); err != nil {
		if IsCallError(err) {
			return zero, err
		}
		return zero, inputError(err)
	}
	return out, nil
}

// validateArgs runs schema validation on raw JSON. Parse and schema failures are
// both reported as input deserialization failures.
func validateArgs(validator schemaValidator, args json.RawMessage) error {
	if validator == nil {
		return nil
	}
	inst, err := unmarshalInstance(args)
	if err != nil {
		return inputError(err)
	}
	if err := validator.Validate(inst); err != nil {
		return inputError(err)
	}
	return nil
}

// runCustomValidation calls Validate on args, or on &args for value types with
// a pointer receiver. Never calls Validate twice.
func runCustomValidation[T any](args T) error {
	if v, ok := any(args).(Validatable); ok {
		return v.Validate()
	}
	typ := reflect.TypeOf(args)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	if v, ok := any(&args).(Validatable); ok {
		return v.Validate()
	}
	return nil
}

func unmarshalInstance(data []byte) (any, error) {
	return jsv.UnmarshalJSON(bytes.NewReader(data))
}
