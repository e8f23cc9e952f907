package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaKeys is the schema subset the generation API understands. Everything
// else produced by reflection is dropped from declarations.
var schemaKeys = [...]string{"type", "format", "description", "nullable", "enum"}

const validatorURL = "tool.json"

var rawMessageType = reflect.TypeFor[json.RawMessage]()

type customType struct {
	jsonType string
	format   string
}

var (
	customTypesMu sync.RWMutex
	customTypes   = make(map[reflect.Type]customType)
)

// RegisterType maps a Go type to a JSON Schema type/format in generated schemas.
// emptyInstance is a value of the type to register (e.g. uuid.UUID{}); it must not be nil.
// jsonType must not be empty. Pointer fields (*T) use the same mapping as T.
// Call RegisterType at startup before the first NewTool or NewExtractor.
func RegisterType(emptyInstance any, jsonType, format string) {
	if emptyInstance == nil {
		panic("gemini: RegisterType emptyInstance must not be nil")
	}
	if jsonType == "" {
		panic("gemini: RegisterType jsonType must not be empty")
	}
	customTypesMu.Lock()
	defer customTypesMu.Unlock()
	customTypes[reflect.TypeOf(emptyInstance)] = customType{jsonType: jsonType, format: format}
}

func lookupCustomType(t reflect.Type) (customType, bool) {
	customTypesMu.RLock()
	defer customTypesMu.RUnlock()
	ct, ok := customTypes[t]
	return ct, ok
}

// toolSchema is the result of deriving a schema once per tool: the declared
// subset and the compiled validator used on every call.
type toolSchema struct {
	declared  map[string]any
	validator *jsv.Schema
}

// parameters returns the declaration form: nil when the shape has no properties.
func (s *toolSchema) parameters() map[string]any {
	if s == nil {
		return nil
	}
	if props, ok := s.declared["properties"].(map[string]any); !ok || len(props) == 0 {
		return nil
	}
	return s.declared
}

// deriveInputSchema builds the schema for a tool input type. Inputs must be
// object-shaped: a struct, a map, an interface or json.RawMessage.
func deriveInputSchema(t reflect.Type, strict bool) (*toolSchema, error) {
	var declared map[string]any
	switch {
	case isFreeformObject(t):
		declared = map[string]any{"type": "object"}
	case indirect(t).Kind() == reflect.Struct:
		var err error
		if declared, err = reflectSchema(t); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: tool input %s must be a struct, map or interface", ErrSchemaGeneration, t)
	}
	validator, err := compileValidator(declared, strict)
	if err != nil {
		return nil, err
	}
	return &toolSchema{declared: declared, validator: validator}, nil
}

// ResponseSchemaFor derives a response schema for T in the same subset used for
// function declarations. Use it with GenerationConfig.ResponseSchema.
func ResponseSchemaFor[T any]() (map[string]any, error) {
	t := reflect.TypeFor[T]()
	if isFreeformObject(t) {
		return map[string]any{"type": "object"}, nil
	}
	return reflectSchema(t)
}

func isFreeformObject(t reflect.Type) bool {
	if t == nil || t == rawMessageType {
		return true
	}
	switch indirect(t).Kind() {
	case reflect.Interface, reflect.Map:
		return true
	default:
		return false
	}
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// reflectSchema runs reflection, then reduces the result to the supported subset.
func reflectSchema(t reflect.Type) (schemaMap map[string]any, err error) {
	if err := checkType(t, nil); err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			schemaMap, err = nil, fmt.Errorf("%w: %v", ErrSchemaGeneration, p)
		}
	}()
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Mapper:         mapCustomType,
	}
	data, err := json.Marshal(r.ReflectFromType(t))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	annotate(raw, t)
	return reduceSchema(raw), nil
}

func mapCustomType(t reflect.Type) *jsonschema.Schema {
	if ct, ok := lookupCustomType(t); ok {
		return &jsonschema.Schema{Type: ct.jsonType, Format: ct.format}
	}
	return nil
}

// checkType rejects shapes that cannot be expressed: channels, funcs, complex
// numbers and recursive types. path holds the struct types being visited.
func checkType(t reflect.Type, path []reflect.Type) error {
	t = indirect(t)
	if t == nil {
		return nil
	}
	if _, ok := lookupCustomType(t); ok {
		return nil
	}
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return fmt.Errorf("%w: unsupported type %s", ErrSchemaGeneration, t)
	case reflect.Slice, reflect.Array:
		return checkType(t.Elem(), path)
	case reflect.Map:
		return checkType(t.Elem(), path)
	case reflect.Struct:
		for _, seen := range path {
			if seen == t {
				return fmt.Errorf("%w: recursive type %s", ErrSchemaGeneration, t)
			}
		}
		path = append(path, t)
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() && !f.Anonymous {
				continue
			}
			if f.Tag.Get("json") == "-" {
				continue
			}
			if err := checkType(f.Type, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// jsonFields maps JSON property names to struct fields, flattening untagged
// embedded structs the same way encoding/json does.
func jsonFields(t reflect.Type, out map[string]reflect.StructField) {
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			if ft := indirect(f.Type); ft.Kind() == reflect.Struct {
				jsonFields(ft, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		out[name] = f
	}
}

// annotate walks the reflected schema alongside the Go type. Pointer fields
// become nullable and optional; plain description and enum struct tags are
// applied on every level.
func annotate(node map[string]any, t reflect.Type) {
	t = indirect(t)
	if t == nil {
		return
	}
	if _, ok := lookupCustomType(t); ok {
		return
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		if items, ok := node["items"].(map[string]any); ok {
			annotate(items, t.Elem())
		}
	case reflect.Struct:
		props, ok := node["properties"].(map[string]any)
		if !ok {
			return
		}
		fields := make(map[string]reflect.StructField)
		jsonFields(t, fields)
		optional := make(map[string]bool)
		for name, raw := range props {
			prop, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			f, ok := fields[name]
			if !ok {
				continue
			}
			if f.Type.Kind() == reflect.Pointer {
				prop["nullable"] = true
				optional[name] = true
			}
			if desc := f.Tag.Get("description"); desc != "" {
				prop["description"] = desc
			}
			if enumStr := f.Tag.Get("enum"); enumStr != "" {
				parts := strings.Split(enumStr, ",")
				enum := make([]any, len(parts))
				for i, p := range parts {
					enum[i] = strings.TrimSpace(p)
				}
				prop["enum"] = enum
			}
			annotate(prop, f.Type)
		}
		if len(optional) == 0 {
			return
		}
		req, _ := node["required"].([]any)
		kept := make([]any, 0, len(req))
		for _, name := range req {
			if s, ok := name.(string); ok && optional[s] {
				continue
			}
			kept = append(kept, name)
		}
		if len(kept) == 0 {
			delete(node, "required")
		} else {
			node["required"] = kept
		}
	}
}

// reduceSchema keeps {type, format, description, nullable, enum, properties,
// required, items} on every node.
func reduceSchema(node map[string]any) map[string]any {
	out := make(map[string]any)
	for _, k := range schemaKeys {
		if v, ok := node[k]; ok {
			out[k] = v
		}
	}
	if props, ok := node["properties"].(map[string]any); ok && len(props) > 0 {
		reduced := make(map[string]any, len(props))
		for name, raw := range props {
			m, _ := raw.(map[string]any)
			reduced[name] = reduceSchema(m)
		}
		out["properties"] = reduced
		if req, ok := node["required"].([]any); ok && len(req) > 0 {
			out["required"] = req
		}
	}
	if items, ok := node["items"].(map[string]any); ok {
		out["items"] = reduceSchema(items)
	}
	return out
}

// walkSchema visits every map node in the schema tree.
func walkSchema(schemaMap map[string]any, visit func(map[string]any)) {
	if schemaMap == nil {
		return
	}
	visit(schemaMap)
	for _, val := range schemaMap {
		switch v := val.(type) {
		case map[string]any:
			walkSchema(v, visit)
		case []any:
			for _, item := range v {
				if m2, ok := item.(map[string]any); ok {
					walkSchema(m2, visit)
				}
			}
		}
	}
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// compileValidator turns a declared schema into a draft 2020-12 validator.
// nullable is rewritten into a type union; strict forbids unknown properties.
func compileValidator(declared map[string]any, strict bool) (*jsv.Schema, error) {
	doc, _ := deepCopy(declared).(map[string]any)
	walkSchema(doc, func(n map[string]any) {
		if nullable, _ := n["nullable"].(bool); nullable {
			if typ, ok := n["type"].(string); ok {
				n["type"] = []any{typ, "null"}
			}
			if enum, ok := n["enum"].([]any); ok {
				n["enum"] = append(enum, nil)
			}
		}
		delete(n, "nullable")
		if strict && n["type"] == "object" {
			if _, ok := n["properties"]; ok {
				n["additionalProperties"] = false
			}
		}
	})
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	inst, err := jsv.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	c := jsv.NewCompiler()
	if err := c.AddResource(validatorURL, inst); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	sch, err := c.Compile(validatorURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	return sch, nil
}

// compileDynamicSchema reduces a caller-supplied schema map and compiles it.
func compileDynamicSchema(schemaMap map[string]any, strict bool) (*toolSchema, error) {
	if schemaMap == nil {
		schemaMap = map[string]any{"type": "object"}
	}
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaGeneration, err)
	}
	if typ, ok := raw["type"]; ok && typ != "object" {
		return nil, fmt.Errorf("%w: tool parameters must be an object schema, got %v", ErrSchemaGeneration, typ)
	}
	declared := reduceSchema(raw)
	declared["type"] = "object"
	validator, err := compileValidator(declared, strict)
	if err != nil {
		return nil, err
	}
	return &toolSchema{declared: declared, validator: validator}, nil
}
