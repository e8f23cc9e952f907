package gemini

import (
	"encoding/json"
	"reflect"
)

// Extractor provides schema derivation and two-layer validation (schema + Validatable)
// for type T without binding to the Tool interface. Use it in custom orchestrators
// that decode function call arguments themselves.
type Extractor[T any] struct {
	schema *toolSchema
}

// NewExtractor creates an Extractor for type T. When strict is true, arguments
// carrying properties the schema does not declare are rejected.
func NewExtractor[T any](strict bool) (*Extractor[T], error) {
	s, err := deriveInputSchema(reflect.TypeFor[T](), strict)
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{schema: s}, nil
}

// Schema returns a deep copy of the declared schema.
func (e *Extractor[T]) Schema() map[string]any {
	out, _ := deepCopy(e.schema.declared).(map[string]any)
	return out
}

// Parameters returns the schema in declaration form, or nil when T has no properties.
func (e *Extractor[T]) Parameters() map[string]any {
	p := e.schema.parameters()
	if p == nil {
		return nil
	}
	out, _ := deepCopy(p).(map[string]any)
	return out
}

// ParseAndValidate decodes args into T after schema validation, then runs
// Validatable. Failures are *CallError values carrying ErrInputDeserialization.
func (e *Extractor[T]) ParseAndValidate(args json.RawMessage) (T, error) {
	return decodeArgs[T](e.schema.validator, args)
}

// ParseCall decodes the arguments of a function call.
func (e *Extractor[T]) ParseCall(call FunctionCall) (T, error) {
	return e.ParseAndValidate(call.Args)
}
